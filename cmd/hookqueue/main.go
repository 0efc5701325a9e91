// Command hookqueue runs the webhook queue processors against a SQL store.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	hookqueue "github.com/goliatone/go-hookqueue"
	"github.com/goliatone/go-hookqueue/adapters/gocommand"
	hqcommand "github.com/goliatone/go-hookqueue/command"
	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/crm"
	"github.com/goliatone/go-hookqueue/notify"
	hqquery "github.com/goliatone/go-hookqueue/query"
	sqlstore "github.com/goliatone/go-hookqueue/store/sql"
	"github.com/goliatone/go-hookqueue/transport"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	markerPruneInterval = time.Minute
	markerPruneLimit    = 1000
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("hookqueue: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := hookqueue.LoadConfig(ctx, hookqueue.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: envConfig(os.Environ())}), nil, core.Config{})
	if err != nil {
		return err
	}
	provider := newLoggerProvider(envString("HOOKQUEUE_LOG_LEVEL", "info"))
	logger := provider.GetLogger(cfg.ServiceName)

	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	cache, err := sqlstore.NewLocationCacheService(cfg.LocationCache.TTL)
	if err != nil {
		return err
	}
	locations, err := sqlstore.NewCachedLocationStore(factory.Stores().Locations, cache)
	if err != nil {
		return err
	}

	deps := hookqueue.Dependencies{
		Queue:          factory.WorkItemStore(),
		Markers:        factory.MarkerStore(),
		Metrics:        factory.MetricStore(),
		UnitOfWork:     factory,
		Locations:      locations,
		Unhandled:      factory.UnhandledStore(),
		Enricher:       crm.NewClient(transport.NewRESTAdapter(&http.Client{Timeout: cfg.CRM.Timeout}), cfg.CRM),
		LoggerProvider: provider,
	}
	if addr := strings.TrimSpace(cfg.Notify.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		deps.Publisher = notify.NewRedisPublisher(rdb, cfg.Notify.RedisPrefix)
	}
	if url := strings.TrimSpace(cfg.Notify.PushURL); url != "" {
		deps.Push = notify.NewHTTPPushClient(
			transport.NewRESTAdapter(&http.Client{Timeout: cfg.Notify.PushTimeout}),
			url,
			cfg.Notify.PushToken,
		)
	}

	runtime, err := hookqueue.Setup(cfg, deps)
	if err != nil {
		return err
	}
	commands := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterPipeline(commands, gocommand.Pipeline{
		Service:     runtime,
		Markers:     runtime,
		DeadLetters: runtime,
		Depth:       runtime,
		Summary:     runtime,
		Unhandled:   runtime,
	})
	if err != nil {
		return err
	}
	defer gocommand.Unsubscribe(subs)
	if err := commands.Initialize(); err != nil {
		return err
	}

	backlog := 0
	depth, err := gocommand.Query[hqquery.QueueDepthMessage, []core.QueueDepth](ctx, hqquery.QueueDepthMessage{})
	if err != nil {
		return err
	}
	for _, row := range depth {
		if row.Status == core.WorkItemPending || row.Status == core.WorkItemProcessing {
			backlog += row.Count
		}
	}
	logger.Info("hookqueue started",
		"driver", cfg.Database.Driver,
		"queue_types", len(cfg.EnabledQueueTypes()),
		"redis", deps.Publisher != nil,
		"backlog", backlog,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runtime.RunAll(ctx)
	})
	group.Go(func() error {
		ticker := time.NewTicker(markerPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := gocommand.Dispatch(ctx, hqcommand.PruneMarkersMessage{Limit: markerPruneLimit}); err != nil {
					logger.Warn("marker prune failed", "error", err)
				}
			}
		}
	})
	err = group.Wait()
	logger.Info("hookqueue stopped")
	return err
}
