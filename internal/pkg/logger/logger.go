// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的结构化日志实例，在 Init 之前也可以安全使用。
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 在服务启动时调用，为所有日志打上服务名标签。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个附带了追踪上下文（trace_id / span_id）的日志实例。
// 业务代码统一通过 logger.Ctx(ctx) 打日志，方便在 Jaeger 和日志之间互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
