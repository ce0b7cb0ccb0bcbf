// Package httpserver builds and runs the app listener: chi routing wrapped
// in the httpmw middleware stack, OTel tracing and metrics.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/k8sdemo/internal/health"
	"github.com/keithlinneman/k8sdemo/internal/httpmw"
	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/xerrors"
)

// DefaultPort is used when Options.Port is 0.
const DefaultPort = 3000

// maxBodyBytes bounds request bodies; no app route reads one.
const maxBodyBytes = 1024

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	quiet := make(map[string]bool, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = true
	}

	r := chi.NewRouter()

	// echoed files can reach the 1 MiB ConfigMap limit
	r.Use(middleware.Compress(5, "text/plain"))

	// name the span after the chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog(opts.QuietPaths...))

	r.Use(httpmw.MaxBody(maxBodyBytes))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.Routes != nil {
		opts.Routes(r)
	}

	// tracing is skipped for quiet paths, kubelet polls them every few seconds
	traced := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !quiet[r.URL.Path]
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// AnnotateHTTPRoute renames the span to the route pattern later
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
		)
	}

	var recoverMW, buildMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	if opts.BuildInfo != nil {
		buildMW = httpmw.BuildHeaders(opts.BuildInfo)
	}

	// outermost first; nil entries are skipped
	h := httpmw.Chain(r,
		// security headers outermost so every response carries them
		httpmw.SecurityHeaders,
		recoverMW,
		// request id before anything logs
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		// rate limiting after client ip so it keys on the resolved address
		opts.RateLimitMW,
		traced,
		buildMW,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		// request-scoped logger innermost so it sees trace_id
		httpmw.WithLogger(L),
	)

	return h
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start the app HTTP server. The listener is bound before Start returns, so
// a port conflict is reported to the caller.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		// keep the full stack so the startup failure log shows who asked
		return nil, xerrors.EnsureTrace(xerrors.Wrapf(err, "listen on %s", addr))
	}

	go func() {
		L.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			retErr = srv.Shutdown(sctx)
		})
		return retErr
	}
	return stop, nil
}
