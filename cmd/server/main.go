package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/monitor"
	"github.com/t77yq/tabsched/internal/notify"
	"github.com/t77yq/tabsched/internal/opener"
	"github.com/t77yq/tabsched/internal/snapshot"
	"github.com/t77yq/tabsched/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("engine.poll_interval", engine.DefaultPollInterval)
	viper.SetDefault("engine.health_check_interval", engine.DefaultHealthCheckInterval)
	viper.SetDefault("engine.backup_interval", engine.DefaultBackupInterval)
	viper.SetDefault("storage.path", "tabsched.db")
	viper.SetDefault("opener.mode", "http")
	viper.SetDefault("opener.timeout", 30*time.Second)
	viper.SetDefault("stats.interval", time.Minute)
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Open schedule store
	store, err := storage.NewSQLiteScheduleStore(logger, viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to open schedule store", zap.Error(err))
	}
	defer store.Close()

	// Connect to NATS when the event bus is enabled
	var js nats.JetStreamContext
	var nc *nats.Conn
	if viper.GetBool("nats.enabled") {
		opts := []nats.Option{
			nats.Name(viper.GetString("app.name")),
			nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
			nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
			nats.Timeout(viper.GetDuration("nats.connect_timeout")),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				logger.Error("NATS connection error", zap.Error(err))
			}),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Warn("NATS disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		}

		natsURL := nats.DefaultURL
		if urls := viper.GetStringSlice("nats.urls"); len(urls) > 0 {
			natsURL = urls[0]
		}

		maxRetries := 5
		for i := 0; i < maxRetries; i++ {
			nc, err = nats.Connect(natsURL, opts...)
			if err == nil {
				break
			}
			logger.Warn("Failed to connect to NATS, retrying...",
				zap.Int("attempt", i+1),
				zap.Error(err))
			time.Sleep(time.Second * time.Duration(i+1))
		}
		if err != nil {
			logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
		}
		defer nc.Close()

		js, err = nc.JetStream()
		if err != nil {
			logger.Fatal("Failed to create JetStream context", zap.Error(err))
		}
		logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	}

	// Pick the notifier
	var notifier notify.Notifier
	if js != nil {
		notifier, err = notify.NewNATSNotifier(js, logger)
		if err != nil {
			logger.Fatal("Failed to create notifier", zap.Error(err))
		}
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	// Pick the opener
	var op opener.Opener
	switch viper.GetString("opener.mode") {
	case "exec":
		op = opener.NewExecOpener(logger, viper.GetString("opener.command"))
	default:
		op = opener.NewHTTPOpener(logger, viper.GetDuration("opener.timeout"))
	}

	clock := engine.SystemClock{}
	dispatcher := engine.NewDispatcher(store, op, notifier, clock, logger)
	eng := engine.New(store, dispatcher, notifier, clock, logger)

	snapshots := snapshot.NewManager(store, clock, logger)
	autoBackup := snapshot.NewAutoBackup(snapshots, store, notifier, clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repair state left by a previous unclean shutdown before polling starts
	if _, err := eng.RunHealthCheck(ctx); err != nil {
		logger.Error("Startup health check failed", zap.Error(err))
	}

	// Register the periodic jobs
	poller := engine.NewPoller(logger)
	if err := poller.Register("due-check", viper.GetDuration("engine.poll_interval"),
		engine.RunPassJob(eng, logger)); err != nil {
		logger.Fatal("Failed to register due-check job", zap.Error(err))
	}
	if err := poller.Register("health-check", viper.GetDuration("engine.health_check_interval"),
		engine.RunHealthCheckJob(eng, logger)); err != nil {
		logger.Fatal("Failed to register health-check job", zap.Error(err))
	}
	if err := poller.Register("auto-backup", viper.GetDuration("engine.backup_interval"), func() {
		if err := autoBackup.Run(context.Background()); err != nil {
			logger.Error("Auto-backup failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("Failed to register auto-backup job", zap.Error(err))
	}
	poller.Start()

	// Stats collection
	stats := monitor.NewStatsCollector(js, store, viper.GetDuration("stats.interval"), logger)
	stats.Start(ctx)

	logger.Info("tabsched started",
		zap.Duration("poll_interval", viper.GetDuration("engine.poll_interval")),
		zap.String("storage", viper.GetString("storage.path")))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	stats.Stop()
	dispatcher.Stop()
	poller.Stop()
	logger.Info("Server shutting down gracefully")
}
