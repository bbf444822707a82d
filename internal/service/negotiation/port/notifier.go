// internal/service/negotiation/port/notifier.go
package port

import "context"

// Notifier 把渲染好的议价结果文案交给外部的消息投递服务
// （短信/邮件等渠道由对方决定）。投递失败只记日志，不影响议价主流程。
type Notifier interface {
	NotifyDecision(ctx context.Context, userID, sku, message string) error
}
