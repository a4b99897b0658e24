package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/wudi/rxverify/app"
	"github.com/wudi/rxverify/config"
	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/server"
)

type options struct {
	configPath string
	listen     string
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "rxverify: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: rxverify [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	flag.StringVar(&opts.listen, "listen", "", "Listen address (overrides server.listen)")
	flag.Parse()
	return opts
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath, true)
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	logger := observability.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("close stores", observability.Error("error", err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(a.Verifier,
		server.WithHistory(a.History),
		server.WithHistoryLimit(cfg.Registry.HistoryLimit),
		server.WithDoctorWriter(a.Doctors),
		server.WithFindingWriter(a.Findings),
		server.WithLogger(logger),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		server.WithSentry(sentryEnabled),
	)
	return srv.Run(ctx, cfg.Server.Listen)
}
