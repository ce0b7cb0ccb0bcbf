// Package service is the process lifecycle shared by the demo binaries:
// flag and config loading, logger construction, the app and ops listeners,
// and graceful shutdown.
package service

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/log"
	v "github.com/keithlinneman/k8sdemo/internal/version"
)

// ErrVersion is returned by Setup after -V printed the build information.
var ErrVersion = errors.New("version requested")

// Setup registers the common flags on fs, parses args and fills conf from
// env files, the environment and the optional config file, in that order of
// increasing precedence below the CLI. App specific flags must be registered
// on fs before calling Setup.
func Setup(fs *flag.FlagSet, args []string, component string, conf *cfg.App, stdout io.Writer) (log.Logger, error) {
	var showVersion bool
	cfg.Register(fs, conf)
	fs.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if showVersion {
		fmt.Fprintf(stdout, "%s-%s %s\n", v.AppName, component, v.Get())
		return nil, ErrVersion
	}

	logf := func(format string, args ...any) {
		fmt.Fprintf(fs.Output(), format+"\n", args...)
	}

	if err := cfg.LoadEnvFiles(conf.EnvFile, logf); err != nil {
		return nil, err
	}
	cfg.FillFromEnv(fs, cfg.EnvPrefix, logf)
	if err := cfg.FillFromFile(fs, conf.ConfigFile, logf); err != nil {
		return nil, err
	}

	if err := cfg.Validate(*conf); err != nil {
		return nil, err
	}

	return newLogger(component, *conf, stdout)
}

func newLogger(component string, conf cfg.App, w io.Writer) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			return nil, err
		}
	}
	vi := v.Get()
	return log.New(log.Options{
		App:               v.AppName,
		Component:         component,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
		Writer:            w,
	})
}
