package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/k8sdemo/internal/health"
	"github.com/keithlinneman/k8sdemo/internal/httpmw"
	"github.com/keithlinneman/k8sdemo/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Routes mounts the app's own endpoints.
	Routes func(chi.Router)

	// Health and Readiness are served at /-/healthy and /-/ready when set.
	Health    health.Probe
	Readiness health.Probe

	// QuietPaths are served but neither traced nor access logged.
	QuietPaths []string

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	BuildInfo    httpmw.BuildInfo // X-App-Component and X-App-Version headers
}
