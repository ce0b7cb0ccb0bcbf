// Package echohttp serves the configuration echo page used by the configmap,
// secrets and multienv demos: one "Label: value" line per field.
package echohttp

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/k8sdemo/internal/configsource"
)

// Field is one line of the page.
type Field struct {
	// Label is written verbatim before the value, e.g. "ENV: ".
	Label    string
	Source   configsource.Source
	Fallback configsource.Fallback
}

// Page renders its fields on GET /.
type Page struct {
	fields []Field
}

func NewPage(fields ...Field) *Page {
	return &Page{fields: fields}
}

// Options describes the two-line env + file page every echo demo serves.
type Options struct {
	EnvLabel    string
	EnvVar      string
	EnvFallback string

	FileLabel string
	File      string
	// FilePerRequest re-reads File on every request instead of once at startup.
	FilePerRequest bool

	Resolver *configsource.Resolver
	// OnLookup is told about every underlying lookup, for metrics.
	OnLookup func(kind, result string)
}

// New builds the env + file page. The env var is read once, like a value
// captured at process start.
func New(opts Options) *Page {
	if opts.Resolver == nil {
		opts.Resolver = configsource.NewResolver(configsource.ResolverOptions{})
	}
	env := configsource.Once(configsource.Observed(configsource.Env{Name: opts.EnvVar}, opts.OnLookup))
	file := configsource.Observed(opts.Resolver.File(opts.File), opts.OnLookup)
	if !opts.FilePerRequest {
		file = configsource.Once(file)
	}
	return NewPage(
		Field{Label: opts.EnvLabel, Source: env, Fallback: configsource.Static(opts.EnvFallback)},
		Field{Label: opts.FileLabel, Source: file, Fallback: configsource.ReadError()},
	)
}

func (p *Page) RegisterRoutes(r chi.Router) {
	r.Get("/", p.ServeHTTP)
}

// Warm resolves every field once so startup-only values are read before the
// first request arrives.
func (p *Page) Warm(ctx context.Context) {
	_ = p.Render(ctx)
}

// Render returns the page body.
func (p *Page) Render(ctx context.Context) string {
	lines := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		lines = append(lines, f.Label+configsource.Resolve(ctx, f.Source, f.Fallback))
	}
	return strings.Join(lines, "\n")
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := p.Render(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
