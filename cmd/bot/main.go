package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DrctNews/DRCT-NEWS/internal/config"
	"github.com/DrctNews/DRCT-NEWS/internal/health"
	"github.com/DrctNews/DRCT-NEWS/internal/logging"
	"github.com/DrctNews/DRCT-NEWS/internal/registry"
	"github.com/DrctNews/DRCT-NEWS/internal/store"
	"github.com/DrctNews/DRCT-NEWS/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	registryLoadTimeout     = 10 * time.Second
	storeCloseTimeout       = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

var processStart = time.Now()

// groupStore is the full store surface main wires together. Both backends
// satisfy it; only the Mongo one needs an explicit Close.
type groupStore interface {
	registry.Store
	Ping(ctx context.Context) error
}

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":      "startup",
		"relay_mode": cfg.RelayMode,
		"mongo":      cfg.UsesMongo(),
	}).Info("configuration loaded")

	groupsStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("store setup error")
		fmt.Fprintf(os.Stderr, "store setup error: %v\n", err)
		os.Exit(1)
	}

	reg, err := registry.New(groupsStore, logger)
	if err != nil {
		logger.WithError(err).Error("registry setup error")
		fmt.Fprintf(os.Stderr, "registry setup error: %v\n", err)
		os.Exit(1)
	}

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), registryLoadTimeout)
	err = reg.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.WithError(err).Error("registry load error")
		fmt.Fprintf(os.Stderr, "registry load error: %v\n", err)
		os.Exit(1)
	}

	tgClient, err := telegram.NewClient(cfg, reg, logger, telegram.WithProcessStart(processStart))
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, groupsStore, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		if err := tgClient.Start(telegramCtx); err != nil {
			logger.WithError(err).Error("telegram client error")
		}
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	closeStore()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// openStore selects the registry backend: Mongo when configured, otherwise
// the JSON snapshot file. The returned closer is a no-op for the snapshot.
func openStore(cfg config.Config, logger *logrus.Entry) (groupStore, func(), error) {
	if !cfg.UsesMongo() {
		snapshot, err := store.NewSnapshotStore(cfg.GroupsFile, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot store: %w", err)
		}

		logger.WithFields(logging.Fields{
			"event": "store_ready",
			"path":  cfg.GroupsFile,
		}).Info("using snapshot store")

		return snapshot, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg, logger)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connection: %w", err)
	}

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = manager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), storeCloseTimeout)
		_ = manager.Close(closeCtx)
		cancelClose()
		return nil, nil, fmt.Errorf("mongo index setup: %w", err)
	}

	logger.WithFields(logging.Fields{
		"event":    "store_ready",
		"mongo_db": cfg.MongoDB,
	}).Info("using mongo store")

	closer := func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), storeCloseTimeout)
		if err := manager.Close(closeCtx); err != nil {
			logger.WithError(err).Error("mongo disconnect error")
		} else {
			logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
		}
		cancelClose()
	}

	return manager, closer, nil
}
