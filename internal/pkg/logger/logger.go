// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// base 是全局基础 logger，所有日志都从它派生。
var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 初始化全局 logger，附加服务名字段。
// 各服务在启动时调用一次。
func Init(serviceName string) {
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Logger 返回全局基础 logger。
func Logger() *zerolog.Logger {
	return &base
}

// Ctx 返回一个绑定了当前链路 TraceID 的 logger。
// 如果上下文中没有有效的 Span，则退化为基础 logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &base
	}
	l := base.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &l
}
