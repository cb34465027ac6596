package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lysyi3m/feedwatch/app/api"
	"github.com/lysyi3m/feedwatch/app/cfg"
	"github.com/lysyi3m/feedwatch/app/database"
	"github.com/lysyi3m/feedwatch/app/feed"
	"github.com/lysyi3m/feedwatch/app/mq"
	"github.com/lysyi3m/feedwatch/app/reader"
	"github.com/lysyi3m/feedwatch/app/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags]",
	Short: "Poll feeds and serve the HTTP API",
	Long: `Poll every feed in the feed list and publish new entries on the
configured queue. Every flag can also be set through its environment
variable; run "feedwatch serve --help" for the full list.`,
	// go-flags owns the serve flags
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// backends holds the storage and fan-out chosen by configuration.
type backends struct {
	seen       store.SeenStore
	validators store.ValidatorStore
	queue      mq.Queue
	health     api.HealthChecker
	closers    []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("Failed to close backend", "error", err)
		}
	}
}

func openBackends(ctx context.Context, c *cfg.Cfg) (*backends, error) {
	b := &backends{}

	var redisClient *redis.Client
	if c.UsesRedis() {
		client, err := store.ConnectRedis(ctx, c.RedisAddr)
		if err != nil {
			return nil, err
		}
		redisClient = client
		b.closers = append(b.closers, client.Close)
	}

	memoryValidators := store.NewMemoryValidators()
	b.validators = memoryValidators

	switch c.Store {
	case cfg.StoreMemory:
		b.seen = store.NewMemoryStore()

	case cfg.StoreSQLite:
		db, err := database.NewConnection(c.DBPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, db.Close)

		version, _, err := database.RunMigrations(db)
		if err != nil {
			b.Close()
			return nil, err
		}
		slog.Info("Database ready", "path", c.DBPath, "schema_version", version)

		repo := database.NewSeenRepository(db)
		b.seen = repo
		b.health = repo
		if c.PersistValidators {
			b.validators = database.NewValidatorRepository(db)
		}

	case cfg.StoreRedis:
		redisStore := store.NewRedisStore(redisClient)
		b.seen = redisStore
		b.health = redisStore
		if c.PersistValidators {
			b.validators = redisStore
		}
	}

	switch c.Queue {
	case cfg.QueueLocal:
		b.queue = mq.NewLocalQueue()
	case cfg.QueueRedis:
		b.queue = mq.NewRedisQueue(redisClient)
	}
	b.closers = append(b.closers, b.queue.Close)

	slog.Info("Backends configured",
		"store", c.Store,
		"queue", c.Queue,
		"persist_validators", c.PersistValidators)

	return b, nil
}

func logEvent(msg mq.Message) {
	slog.Debug("Event published", "event", msg.EventName, "id", msg.ID, "sender", msg.Sender)
}

func runServe(args []string) error {
	appCfg, err := cfg.Load(args)
	if err != nil {
		return err
	}
	if appCfg == nil {
		// help was shown
		return nil
	}

	setupLogging(appCfg.Debug)
	slog.Info("Starting feedwatch", "version", appCfg.Version, "timezone", appCfg.Timezone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackends(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("failed to open backends: %w", err)
	}
	defer b.Close()

	if err := b.queue.Subscribe(ctx, "feed.*", logEvent); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	fetcher := feed.NewFetcher(appCfg.UserAgent, appCfg.PollTimeout)
	defer fetcher.Close()

	feedReader := reader.NewReader(reader.Config{
		PollInterval:    appCfg.PollInterval,
		PollConcurrency: appCfg.PollConcurrency,
	}, fetcher, feed.NewParser(), b.seen, b.validators, b.queue)

	listCache := feed.NewListCache(appCfg.FeedsFile)
	if err := listCache.Run(); err != nil {
		return fmt.Errorf("failed to load feed list: %w", err)
	}
	feedReader.SetFeeds(ctx, listCache.GetEnabledURLs())

	feedReader.Start()
	defer feedReader.Stop()

	handler := api.NewHandler(feedReader, listCache, b.health, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case runErr = <-serverErrChan:
		slog.Error("Server error", "error", runErr)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// reader, fetcher and backends stop via defer
	return runErr
}
