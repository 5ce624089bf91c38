package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cexll/clawbridge/pkg/config"
	"github.com/cexll/clawbridge/pkg/server"
	"github.com/cexll/clawbridge/pkg/telemetry"
)

func serveCommand(ctx context.Context, argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("serve", flag.ContinueOnError)
	set.SetOutput(streams.err)
	host := set.String("host", "", "Bind address (overrides the config value).")
	port := set.Int("port", -1, "Port number (overrides the config value, 0 picks a free port).")
	backend := set.String("backend", "", "Agent backend: cli or anthropic (overrides the config value).")
	configFlag := set.String("config", cfgPath, "Path to config file.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: clawbridge serve [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nRoutes:")
		fmt.Fprintln(streams.err, "  POST /v1/chat/completions  Chat completions (JSON or SSE)")
		fmt.Fprintln(streams.err, "  GET  /v1/models            Known model identifiers")
		fmt.Fprintln(streams.err, "  GET  /health               Health probe")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Listen.Host = *host
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *port >= 0 {
		if *port > 65535 {
			return fmt.Errorf("invalid port %d", *port)
		}
		cfg.Listen.Port = *port
	}

	logger, err := newLogger(streams.err, cfg.LogLevel)
	if err != nil {
		return err
	}
	stopTelemetry, err := setupTelemetry(cfg)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	b, cleanup, err := buildBridge(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := server.New(b, logger)
	listener, err := net.Listen("tcp", cfg.Listen.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer listener.Close()
	srv := &http.Server{Handler: handler}
	addr := listener.Addr().String()
	if streams.out != nil {
		fmt.Fprintf(streams.out, "clawbridge serve listening on http://%s\n", addr)
	}
	logger.Info("server started", "addr", addr, "backend", cfg.Backend)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// setupTelemetry installs the OTLP manager when exporting is enabled.
// The returned func flushes and uninstalls it.
func setupTelemetry(cfg *config.Config) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}
	manager, err := telemetry.NewManager(telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry setup: %w", err)
	}
	telemetry.SetDefault(manager)
	return func() {
		telemetry.SetDefault(nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	}, nil
}
