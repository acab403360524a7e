package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions customises the tracing middleware.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	// SkipPaths are matched as prefixes and produce no spans.
	SkipPaths []string
}

// Tracing starts a server span per request. Nil providers fall back to the otel globals.
func Tracing(serviceName string, opts TracingOptions) gin.HandlerFunc {
	options := make([]otelgin.Option, 0, 3)
	if opts.TracerProvider != nil {
		options = append(options, otelgin.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgin.WithPropagators(opts.Propagators))
	}
	if len(opts.SkipPaths) > 0 {
		skip := append([]string(nil), opts.SkipPaths...)
		options = append(options, otelgin.WithFilter(func(r *http.Request) bool {
			for _, prefix := range skip {
				if strings.HasPrefix(r.URL.Path, prefix) {
					return false
				}
			}
			return true
		}))
	}
	return otelgin.Middleware(serviceName, options...)
}
