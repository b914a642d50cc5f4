package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/automations"
	"github.com/micro-ha/deck-automations/plugin/internal/config"
	"github.com/micro-ha/deck-automations/plugin/internal/controller"
	"github.com/micro-ha/deck-automations/plugin/internal/credential"
	"github.com/micro-ha/deck-automations/plugin/internal/events"
	httpapi "github.com/micro-ha/deck-automations/plugin/internal/http"
	"github.com/micro-ha/deck-automations/plugin/internal/http/handlers"
	"github.com/micro-ha/deck-automations/plugin/internal/logging"
	"github.com/micro-ha/deck-automations/plugin/internal/storage"
	"github.com/micro-ha/deck-automations/plugin/internal/streamdeck"
	"github.com/micro-ha/deck-automations/plugin/internal/timeouts"
)

const historyPruneInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	args, err := streamdeck.ParseLaunchArgs(os.Args[1:])
	if err != nil {
		logger.Error("invalid launch arguments", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, args, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("plugin terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("plugin stopped")
}

func run(ctx context.Context, cfg config.Config, args streamdeck.LaunchArgs, logger *slog.Logger) error {
	var (
		history     controller.HistoryRecorder
		historyRepo *storage.Repository
	)
	if cfg.HistoryEnabled() {
		repo, err := openHistory(ctx, cfg.HistoryDBPath, logging.Component(logger, "storage"))
		if err != nil {
			logger.Warn("trigger history disabled", "err", err)
		} else {
			defer repo.Close()
			historyRepo = repo
			history = repo
			go runHistoryPrune(ctx, repo, cfg.HistoryRetention, logger)
		}
	}

	var publisher interface {
		controller.EventPublisher
		Close() error
	} = events.Nop{}
	if cfg.MQTT.Enabled() {
		p, err := events.Connect(cfg.MQTT, logging.Component(logger, "events"))
		if err != nil {
			logger.Warn("trigger events disabled", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	session, err := streamdeck.Dial(ctx, args, logging.Component(logger, "streamdeck"))
	if err != nil {
		return err
	}
	defer session.Close()

	store := credential.NewHostStore(session, logging.Component(logger, "credential")).WithLoadWait(cfg.CredentialLoadWait)
	client := automations.NewClient(cfg.Service).WithLogger(logging.Component(logger, "automations"))

	clock := timeouts.SystemClock{}
	ctrl := controller.New(controller.Dependencies{
		Credentials:       store,
		Service:           client,
		Surface:           session,
		Resets:            timeouts.NewRegistry(clock),
		History:           history,
		Events:            publisher,
		Clock:             clock,
		Logger:            logging.Component(logger, "controller"),
		DefaultDeviceName: cfg.DefaultDeviceName,
	})
	defer ctrl.Close()

	for _, device := range args.Info.Devices {
		ctrl.DeviceConnected(device.ID, device.Name)
	}

	router := streamdeck.NewRouter(ctrl, store, streamdeck.NewDispatcher(), logging.Component(logger, "router"))
	defer router.Close()

	if cfg.DiagnosticsAddr != "" {
		var historyProvider handlers.HistoryProvider
		if historyRepo != nil {
			historyProvider = historyRepo
		}
		api := handlers.New(ctrl, historyProvider, logging.Component(logger, "http"))
		server := httpapi.NewServer(cfg.DiagnosticsAddr, httpapi.NewRouter(api))
		go func() {
			logger.Info("diagnostics server starting", "addr", server.Addr)
			if err := httpapi.RunServer(ctx, server); err != nil {
				logger.Error("diagnostics server failed", "err", err)
			}
		}()
	}

	go func() {
		if _, ok := store.Get(ctx); !ok {
			logger.Info("no api key configured yet")
		}
	}()

	logger.Info("plugin running", "plugin_uuid", args.PluginUUID, "devices", len(args.Info.Devices))
	return session.Run(ctx, router.Handle)
}

func openHistory(ctx context.Context, dbPath string, logger *slog.Logger) (*storage.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	return storage.New(ctx, dbPath, logger)
}

func runHistoryPrune(ctx context.Context, repo *storage.Repository, keep int, logger *slog.Logger) {
	if keep <= 0 {
		return
	}
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		pruneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := repo.Prune(pruneCtx, keep); err != nil {
			logger.Warn("history prune failed", "err", err)
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
