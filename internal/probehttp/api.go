package probehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/k8sdemo/internal/httpmw"
	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/probestate"
)

// Flags is the probe state the endpoints read and flip.
type Flags interface {
	Liveness() probestate.Outcome
	Readiness() probestate.Outcome
	ToggleReadiness() probestate.Outcome
	Crash() probestate.Outcome
}

// API serves the probes demo endpoints.
type API struct {
	flags  Flags
	logger log.Logger
}

func NewAPI(flags Flags, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{flags: flags, logger: logger}
}

// Paths are the routes RegisterRoutes mounts. Every operation always
// succeeds, so none of them may be rate limited.
var Paths = []string{"/healthz", "/ready", "/toggle", "/crash"}

// RegisterRoutes attaches /healthz, /ready, /toggle and /crash to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Scope("probes"))
		r.Get("/healthz", api.HandleLiveness)
		r.Get("/ready", api.HandleReadiness)
		r.Post("/toggle", api.HandleToggle)
		r.Post("/crash", api.HandleCrash)
	})
}

// events logs flag changes on the service logger, tagged with the request
// that caused them.
func (api *API) events(r *http.Request) log.Logger {
	return api.logger.With("request_id", httpmw.RequestIDFromContext(r.Context()))
}

func (api *API) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, api.flags.Liveness())
}

func (api *API) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, api.flags.Readiness())
}

func (api *API) HandleToggle(w http.ResponseWriter, r *http.Request) {
	out := api.flags.ToggleReadiness()
	api.events(r).Info(r.Context(), "readiness toggled", "result", out.Message)
	writeOutcome(w, out)
}

func (api *API) HandleCrash(w http.ResponseWriter, r *http.Request) {
	out := api.flags.Crash()
	// liveness probes fail from here on until the orchestrator restarts us
	api.events(r).Warn(r.Context(), "liveness flag cleared, process reports crashed")
	writeOutcome(w, out)
}

// writeOutcome maps OK to 200 and the failure signal to 500.
func writeOutcome(w http.ResponseWriter, out probestate.Outcome) {
	code := http.StatusOK
	if !out.OK {
		code = http.StatusInternalServerError
	}
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(out.Message))
}
