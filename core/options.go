package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < loaded source < runtime overrides.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver, includeZero)
	putString(database, "dsn", cfg.Database.DSN, includeZero)
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	putSection(layer, "database", database)

	queue := map[string]any{}
	putDuration(queue, "lease_ttl", cfg.Queue.LeaseTTL, includeZero)
	putInt(queue, "max_attempts", cfg.Queue.MaxAttempts, includeZero)
	putDuration(queue, "initial_backoff", cfg.Queue.InitialBackoff, includeZero)
	putDuration(queue, "max_backoff", cfg.Queue.MaxBackoff, includeZero)
	putSection(layer, "queue", queue)

	processor := map[string]any{}
	putInt(processor, "batch_size", cfg.Processor.BatchSize, includeZero)
	putInt(processor, "concurrency", cfg.Processor.Concurrency, includeZero)
	putDuration(processor, "max_runtime", cfg.Processor.MaxRuntime, includeZero)
	putDuration(processor, "empty_backoff", cfg.Processor.EmptyBackoff, includeZero)
	putInt(processor, "yield_every", cfg.Processor.YieldEvery, includeZero)
	putDuration(processor, "yield_pause", cfg.Processor.YieldPause, includeZero)
	if includeZero || cfg.Processor.MaxItemsPerSecond > 0 {
		processor["max_items_per_second"] = cfg.Processor.MaxItemsPerSecond
	}
	if includeZero || len(cfg.Processor.QueueTypes) > 0 {
		processor["queue_types"] = append([]string(nil), cfg.Processor.QueueTypes...)
	}
	putSection(layer, "processor", processor)

	dedup := map[string]any{}
	putDuration(dedup, "window", cfg.Dedup.Window, includeZero)
	putSection(layer, "dedup", dedup)

	if includeZero || len(cfg.SLA) > 0 {
		sla := make(map[string]any, len(cfg.SLA))
		for key, value := range cfg.SLA {
			sla[key] = value
		}
		layer["sla"] = sla
	}

	notify := map[string]any{}
	putString(notify, "redis_addr", cfg.Notify.RedisAddr, includeZero)
	putString(notify, "redis_prefix", cfg.Notify.RedisPrefix, includeZero)
	putString(notify, "push_url", cfg.Notify.PushURL, includeZero)
	putString(notify, "push_token", cfg.Notify.PushToken, includeZero)
	putDuration(notify, "push_timeout", cfg.Notify.PushTimeout, includeZero)
	if includeZero || cfg.Notify.PublishOnPush {
		notify["publish_on_push"] = cfg.Notify.PublishOnPush
	}
	putSection(layer, "notify", notify)

	crm := map[string]any{}
	putString(crm, "base_url", cfg.CRM.BaseURL, includeZero)
	putString(crm, "version", cfg.CRM.Version, includeZero)
	putDuration(crm, "timeout", cfg.CRM.Timeout, includeZero)
	putSection(layer, "crm", crm)

	cache := map[string]any{}
	putDuration(cache, "ttl", cfg.LocationCache.TTL, includeZero)
	putSection(layer, "location_cache", cache)
	return layer
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putInt(section map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putDuration(section map[string]any, key string, value time.Duration, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}
