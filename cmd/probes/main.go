// Command probes serves liveness and readiness flags that can be flipped over
// HTTP, to watch how the kubelet reacts to failing probes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/metrics"
	"github.com/keithlinneman/k8sdemo/internal/probehttp"
	"github.com/keithlinneman/k8sdemo/internal/probestate"
	"github.com/keithlinneman/k8sdemo/internal/service"
)

const component = "probes"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conf cfg.App
	L, err := service.Setup(flag.CommandLine, os.Args[1:], component, &conf, os.Stdout)
	if errors.Is(err, service.ErrVersion) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	m := metrics.New()

	// both flags start true; probe_flag reads them at scrape time
	state := probestate.New(probestate.WithObserver(func(c probestate.Change) {
		m.IncProbeTransition(c.Flag, c.Value)
	}))
	m.WatchProbeFlags(state.Alive, state.Ready)

	api := probehttp.NewAPI(state, L)

	if err := service.Run(ctx, service.Options{
		Component: component,
		Conf:      conf,
		Logger:    L,
		Metrics:   m,
		Routes:    api.RegisterRoutes,
		Liveness:  state.LivenessProbe(),
		Readiness: state.ReadinessProbe(),
		// toggle and crash must always go through
		ExemptPaths: probehttp.Paths,
	}); err != nil {
		L.Error(context.Background(), err, "probes app exited with error")
		os.Exit(1)
	}
}
