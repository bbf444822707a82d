// internal/pkg/clock/clock.go
package clock

import "time"

// Clock 抽象当前时间，便于在测试中冻结时钟。
type Clock interface {
	Now() time.Time
}

// System 使用真实的系统时间。
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed 始终返回同一个时间点，测试用。
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
