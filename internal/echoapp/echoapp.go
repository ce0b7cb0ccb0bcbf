// Package echoapp is the main of the configmap, secrets and multienv demos.
// They differ only in labels, defaults and banner.
package echoapp

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/k8sdemo/internal/cfg"
	"github.com/keithlinneman/k8sdemo/internal/configsource"
	"github.com/keithlinneman/k8sdemo/internal/echohttp"
	"github.com/keithlinneman/k8sdemo/internal/log"
	"github.com/keithlinneman/k8sdemo/internal/metrics"
	"github.com/keithlinneman/k8sdemo/internal/service"
	"github.com/keithlinneman/k8sdemo/internal/xerrors"
)

type App struct {
	Component string
	EnvLabel  string
	FileLabel string
	Defaults  cfg.Echo
	// Banner is a format taking the HTTP port, replacing the default
	// "App running on port N" line.
	Banner string
}

// Main runs the app and exits the process.
func (a App) Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conf cfg.App
	var echo cfg.Echo
	cfg.RegisterEcho(flag.CommandLine, &echo, a.Defaults)

	L, err := service.Setup(flag.CommandLine, os.Args[1:], a.Component, &conf, os.Stdout)
	if errors.Is(err, service.ErrVersion) {
		return
	}
	if err == nil {
		err = cfg.ValidateEcho(echo)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	m := metrics.New()

	page, err := a.NewPage(ctx, echo, m.IncConfigLookup)
	if err != nil {
		L.Error(ctx, err, "failed to build echo page")
		os.Exit(1)
	}
	// startup-only values are read now, as a container would see them at start
	page.Warm(ctx)

	banner := a.Banner
	if banner != "" {
		banner = fmt.Sprintf(banner, conf.HTTPPort)
	}
	if err := service.Run(ctx, service.Options{
		Component: a.Component,
		Conf:      conf,
		Logger:    L,
		Metrics:   m,
		Routes:    page.RegisterRoutes,
		Banner:    banner,
	}); err != nil {
		L.Error(context.Background(), err, "app exited with error", "component", a.Component)
		os.Exit(1)
	}
}

// NewPage builds the echo page for echo. AWS clients are only created when the
// file is an ssm:// or s3:// reference.
func (a App) NewPage(ctx context.Context, echo cfg.Echo, onLookup func(kind, result string)) (*echohttp.Page, error) {
	var ropts configsource.ResolverOptions
	if configsource.NeedsAWS(echo.File) {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		ropts.SSM = ssm.NewFromConfig(awsCfg)
		ropts.S3 = s3.NewFromConfig(awsCfg)
		log.FromContext(ctx).Info(ctx, "reading file from AWS", "file", echo.File, "region", awsCfg.Region)
	}

	return echohttp.New(echohttp.Options{
		EnvLabel:       a.EnvLabel,
		EnvVar:         echo.EnvVar,
		EnvFallback:    echo.EnvFallback,
		FileLabel:      a.FileLabel,
		File:           echo.File,
		FilePerRequest: echo.FilePerRequest,
		Resolver:       configsource.NewResolver(ropts),
		OnLookup:       onLookup,
	}), nil
}
