package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/vango-go/carelive/pkg/agent"
	"github.com/vango-go/carelive/pkg/core/providers/geminilive"
	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
	gatewayserver "github.com/vango-go/carelive/pkg/gateway/server"
	"github.com/vango-go/carelive/pkg/tools"
	"github.com/vango-go/carelive/pkg/warehouse"
)

// gateway is a wired server plus whatever must be released after shutdown.
type gateway struct {
	server *gatewayserver.Server
	close  func()
}

func (g *gateway) Close() {
	if g != nil && g.close != nil {
		g.close()
	}
}

// buildGateway wires the agent profile, warehouse, tools and Gemini Live
// backend into a server. Without a database url only the date tool is
// offered.
func buildGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gateway, error) {
	profile, err := agent.Load(cfg.AgentProfile)
	if err != nil {
		return nil, err
	}
	profile = profile.WithOverrides(cfg.Model, cfg.Voice)

	deps := gatewayserver.Dependencies{}
	var (
		wh      tools.Warehouse
		closeFn func()
	)
	if cfg.DatabaseURL != "" {
		store, err := warehouse.Open(ctx, cfg.DatabaseURL, warehouse.Options{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open warehouse: %w", err)
		}
		wh = store
		deps.Warehouse = store
		closeFn = store.Close
	} else {
		logger.Warn("CARELIVE_DATABASE_URL not set; customer lookup tools disabled")
	}

	all := tools.NewRegistry(tools.Options{Timeout: cfg.ToolTimeout, Logger: logger}, tools.CareTools(wh, time.Now)...)
	enabled, missing := all.Select(profile.Tools)
	if len(missing) > 0 {
		logger.Warn("agent profile names unavailable tools", "tools", missing)
	}

	client, err := geminilive.NewClient(ctx, geminilive.ClientConfig{
		APIKey:   cfg.GeminiAPIKey,
		Project:  cfg.GCPProject,
		Location: cfg.GCPLocation,
	})
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, err
	}
	runner, err := geminilive.New(client,
		geminilive.WithProfile(profile),
		geminilive.WithTools(enabled),
		geminilive.WithLogger(logger),
	)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, err
	}
	deps.Runner = runner

	logger.Info("agent ready", "profile", profile.Name, "model", profile.Model, "voice", profile.Voice, "tools", enabled.Names())
	return &gateway{server: gatewayserver.New(cfg, logger, deps), close: closeFn}, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServe(ctx context.Context, stderr io.Writer, deps cliDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireBackend(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg.LogLevel)

	gw, err := deps.newGateway(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	defer gw.Close()

	httpSrv := buildHTTPServer(cfg, gw.server.Handler())
	logger.Info("starting gateway", "addr", cfg.Addr, "app", cfg.AppName)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context done, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	return drain(logger, cfg, gw.server, httpSrv, listenErrCh)
}

// drain refuses new sockets, tells live clients, then waits up to the grace
// period before cancelling whatever is still connected.
func drain(logger *slog.Logger, cfg config.Config, srv *gatewayserver.Server, httpSrv *http.Server, listenErrCh <-chan error) error {
	srv.Lifecycle().StartDraining(time.Now())
	notified := srv.Connections().NotifyAll(protocol.StatusDraining)
	logger.Info("draining", "connections", srv.Connections().Count(), "notified", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.Connections().Wait(waitCtx) {
		canceled := srv.Connections().CancelAll()
		logger.Warn("grace period elapsed; cancelled live connections", "count", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
