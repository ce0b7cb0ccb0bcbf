package configsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/xerrors"
)

// ErrUnavailable matches every lookup failure: unset variable, missing or
// unreadable file, failed remote read.
var ErrUnavailable = errors.New("config unavailable")

// UnavailableError keeps the underlying cause as its message so fallbacks can
// show it verbatim.
type UnavailableError struct {
	Ref string
	Err error
}

func (e *UnavailableError) Error() string        { return e.Err.Error() }
func (e *UnavailableError) Unwrap() error        { return e.Err }
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(ref string, err error) error {
	return &UnavailableError{Ref: ref, Err: err}
}

// Source yields one configuration value.
type Source interface {
	// Kind is a short label for logs and metrics: env, file, ssm, s3.
	Kind() string
	// Ref is the variable name, path or URI being read.
	Ref() string
	Lookup(ctx context.Context) (string, error)
}

// Env reads an environment variable. Unset and empty are both unavailable.
type Env struct{ Name string }

func (e Env) Kind() string { return "env" }
func (e Env) Ref() string  { return e.Name }

func (e Env) Lookup(context.Context) (string, error) {
	v, ok := os.LookupEnv(e.Name)
	if !ok {
		return "", unavailable(e.Name, xerrors.Newf("environment variable %s is not set", e.Name))
	}
	if v == "" {
		return "", unavailable(e.Name, xerrors.Newf("environment variable %s is empty", e.Name))
	}
	return v, nil
}

// Fallback turns a lookup failure into the string shown instead.
type Fallback func(err error) string

// Static always falls back to s.
func Static(s string) Fallback {
	return func(error) string { return s }
}

// ReadError falls back to "Error reading file: <cause>".
func ReadError() Fallback {
	return func(err error) string { return fmt.Sprintf("Error reading file: %s", err.Error()) }
}

// repeatedFailure is implemented by sources that hand out a cached error.
// It reports whether this failure was already returned before.
type repeatedFailure interface {
	repeated() bool
}

// Resolve looks src up and never fails: on error it returns fb(err). The
// first failure is logged as a warning, cached repeats of it at debug.
func Resolve(ctx context.Context, src Source, fb Fallback) string {
	v, err := src.Lookup(ctx)
	if err == nil {
		return v
	}
	L := log.FromContext(ctx)
	logf := L.Warn
	if r, ok := src.(repeatedFailure); ok && r.repeated() {
		logf = L.Debug
	}
	logf(ctx, "config value unavailable, using fallback",
		"kind", src.Kind(),
		"ref", src.Ref(),
		"reason", err.Error(),
	)
	if fb == nil {
		return ""
	}
	return fb(err)
}

// Once caches the first lookup of src, success or failure, for the life of
// the process. Used for values read once at startup.
func Once(src Source) Source {
	return &onceSource{src: src}
}

type onceSource struct {
	src    Source
	once   sync.Once
	val    string
	err    error
	warned atomic.Bool
}

func (o *onceSource) Kind() string { return o.src.Kind() }
func (o *onceSource) Ref() string  { return o.src.Ref() }

func (o *onceSource) Lookup(ctx context.Context) (string, error) {
	o.once.Do(func() { o.val, o.err = o.src.Lookup(ctx) })
	return o.val, o.err
}

// repeated is false exactly once, for the first caller to see the cached
// failure.
func (o *onceSource) repeated() bool { return !o.warned.CompareAndSwap(false, true) }

// Observed reports each lookup of src to fn as (kind, "ok"|"unavailable").
func Observed(src Source, fn func(kind, result string)) Source {
	if fn == nil {
		return src
	}
	return &observedSource{src: src, fn: fn}
}

type observedSource struct {
	src Source
	fn  func(kind, result string)
}

func (o *observedSource) Kind() string { return o.src.Kind() }
func (o *observedSource) Ref() string  { return o.src.Ref() }

func (o *observedSource) Lookup(ctx context.Context) (string, error) {
	v, err := o.src.Lookup(ctx)
	result := "ok"
	if err != nil {
		result = "unavailable"
	}
	o.fn(o.src.Kind(), result)
	return v, err
}
