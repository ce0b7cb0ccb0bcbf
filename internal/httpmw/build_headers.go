package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BuildInfo identifies the running binary.
type BuildInfo interface {
	Component() string
	Version() string
}

// BuildHeaders adds X-App-Component and X-App-Version to every response so a
// rollout can be followed from curl, and tags the request span with both.
func BuildHeaders(info BuildInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				c, v := info.Component(), info.Version()
				if c != "" {
					w.Header().Set("X-App-Component", c)
				}
				if v != "" {
					w.Header().Set("X-App-Version", v)
				}
				if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
					span.SetAttributes(
						attribute.String("app.component", c),
						attribute.String("app.version", v),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
