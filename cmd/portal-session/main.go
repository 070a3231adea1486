package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hotspotlabs/go-portal-session/fingerprint"
	"github.com/hotspotlabs/go-portal-session/internal/config"
	"github.com/hotspotlabs/go-portal-session/monitor"
	"github.com/hotspotlabs/go-portal-session/refresh"
	"github.com/hotspotlabs/go-portal-session/session"
	"github.com/hotspotlabs/go-portal-session/session/snapshotrepo"
	"github.com/hotspotlabs/go-portal-session/transport"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running portal session agent: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Portal session agent stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := newLogger(c)
	fs := afero.NewOsFs()

	fpStore, err := fingerprint.NewStore(fs, c.GetDataFolder())
	if err != nil {
		return fmt.Errorf("fingerprint.NewStore: %w", err)
	}
	deviceID, err := fpStore.Get()
	if err != nil {
		return fmt.Errorf("fingerprint.Get: %w", err)
	}

	repo, err := snapshotrepo.NewFileRepo(fs, c.GetDataFolder(), c.GetSnapshotName())
	if err != nil {
		return fmt.Errorf("snapshotrepo.NewFileRepo: %w", err)
	}

	client, err := transport.NewClient(c.GetBaseURL(), transport.WithClientLogger(logger))
	if err != nil {
		return fmt.Errorf("transport.NewClient: %w", err)
	}

	store, err := session.NewStore(client, repo,
		session.WithIdleWindow(c.GetIdleWindow()),
		session.WithFallbackLifetime(c.GetFallbackTokenLifetime()),
		session.WithSuperAdminRole(c.GetSuperAdminRole()),
		session.WithFingerprint(deviceID),
		session.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("session.NewStore: %w", err)
	}
	client.BindSession(store)

	manager, err := refresh.NewManager(store,
		func(reason string) { store.Logout(context.Background(), reason) },
		refresh.WithCadence(c.GetRefreshInterval(), c.GetRefreshSafetyBuffer()),
		refresh.WithRetryBudget(c.GetRefreshRetryBudget()),
		refresh.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("refresh.NewManager: %w", err)
	}
	if store.IsSessionValid() {
		manager.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := monitor.New(c.GetMonitorURL(), store, monitor.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("monitor.New: %w", err)
	}
	go func() {
		if err := feed.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("session feed stopped")
		}
	}()
	go logUpdates(ctx, logger, feed.Updates())

	metricsServer := &http.Server{Addr: config.GetEnv("METRICS_ADDR", ":9190"), Handler: promhttp.Handler()}
	go listenAndServe(logger, metricsServer)

	waitForStopSignal()
	manager.Stop()
	cancel()
	returnError = shutdown(metricsServer)
	return returnError
}

func newLogger(c config.Config) zerolog.Logger {
	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(c.GetDataFolder(), "portal-session.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	var out io.Writer = fileWriter
	if c.GetEnv() == "DEV" {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr}, fileWriter)
	}
	return zerolog.New(out).With().Timestamp().Str("app", c.GetAppName()).Logger()
}

func logUpdates(ctx context.Context, logger zerolog.Logger, updates <-chan monitor.SessionUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			logger.Info().
				Str("session_id", update.SessionID).
				Str("status", update.Status).
				Str("router_id", update.RouterID).
				Msg("session update")
		}
	}
}

func listenAndServe(logger zerolog.Logger, server *http.Server) {
	logger.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
