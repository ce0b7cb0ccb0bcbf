package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/health"
	"github.com/keithlinneman/k8sdemo/internal/httpmw"
	"github.com/keithlinneman/k8sdemo/internal/httpserver"
	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/metrics"
	"github.com/keithlinneman/k8sdemo/internal/opshttp"
	"github.com/keithlinneman/k8sdemo/internal/otelx"
	"github.com/keithlinneman/k8sdemo/internal/prof"
	"github.com/keithlinneman/k8sdemo/internal/ratelimit"
	v "github.com/keithlinneman/k8sdemo/internal/version"
	"github.com/keithlinneman/k8sdemo/internal/xerrors"
)

// ProbePaths are polled by the kubelet every few seconds. They are never
// rate limited, traced or access logged.
var ProbePaths = []string{"/healthz", "/ready", "/-/healthy", "/-/ready"}

type Options struct {
	Component string
	Conf      cfg.App
	Logger    log.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.ServerMetrics

	// Routes mounts the app endpoints on the app listener.
	Routes func(chi.Router)

	// Liveness backs /-/healthy on both listeners. nil always passes.
	Liveness health.Probe
	// Readiness is ANDed with the shutdown gate on /-/ready.
	Readiness health.Probe

	// ExemptPaths are app routes the rate limiter must never reject, on top
	// of ProbePaths.
	ExemptPaths []string

	// Banner is logged once both listeners are up.
	// Defaults to "App running on port <http-port>".
	Banner string
}

type buildInfo struct{ component, version string }

func (b buildInfo) Component() string { return b.component }
func (b buildInfo) Version() string   { return b.version }

// Run starts profiling, tracing and both listeners, then blocks until ctx is
// done. Shutdown closes the readiness gate, waits Conf.DrainDelay so
// endpoints controllers stop routing to the pod (a second SIGINT or SIGTERM
// skips the wait) and stops everything within Conf.ShutdownTimeout.
func Run(ctx context.Context, opts Options) error {
	conf := opts.Conf
	L := opts.Logger
	if L == nil {
		L = log.FromContext(ctx)
	}
	ctx = log.WithContext(ctx, L)
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	vi := v.Get()

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.Dirty(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"trace_sample", conf.TraceSample,
		"rate_limit", conf.RateLimit,
		"rate_burst", conf.RateBurst,
		"trusted_hops", conf.TrustedHops,
		"drain_delay", conf.DrainDelay,
	)

	// background work outlives the signal context until shutdown completes
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	stopProf, err := prof.Start(runCtx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName + "." + opts.Component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": opts.Component,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
		OnState: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure: the collector is a node-local agent
	shutdownOTEL, err := otelx.Init(runCtx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: opts.Component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m.SetBuildInfoFromVersion(v.AppName, opts.Component, vi)

	var gate health.ShutdownGate
	liveness := opts.Liveness
	if liveness == nil {
		liveness = health.Fixed(true, "")
	}
	readiness := health.All(gate.Probe(), opts.Readiness)

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimit > 0 {
		limiter := ratelimit.New(runCtx,
			ratelimit.WithRate(conf.RateLimit, conf.RateBurst),
			ratelimit.WithExemptPaths(ProbePaths...),
			ratelimit.WithExemptPaths(opts.ExemptPaths...),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			// only the first denial per visitor is logged until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	appStop, err := httpserver.Start(runCtx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Routes:       opts.Routes,
		Health:       liveness,
		Readiness:    readiness,
		QuietPaths:   ProbePaths,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		BuildInfo:    buildInfo{component: opts.Component, version: vi.Version},
	})
	if err != nil {
		return xerrors.Wrap(err, "start app http listener")
	}
	defer func() { _ = appStop(context.Background()) }()

	opsStop, err := opshttp.Start(runCtx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       liveness,
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		return xerrors.Wrap(err, "start ops http listener")
	}
	defer func() { _ = opsStop(context.Background()) }()

	banner := opts.Banner
	if banner == "" {
		banner = fmt.Sprintf("App running on port %d", conf.HTTPPort)
	}
	L.Info(ctx, banner)

	<-ctx.Done()

	// fresh contexts from here on, ctx is already cancelled
	bg := log.WithContext(context.Background(), L)
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, waiting for endpoints to drain", "drain_delay", conf.DrainDelay)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := appStop(shutdownCtx); err != nil {
		L.Error(bg, err, "app http server shutdown")
		errs = append(errs, err)
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
		errs = append(errs, err)
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
		errs = append(errs, err)
	}

	L.Info(bg, "shutdown complete")
	return errors.Join(errs...)
}
