package core

import (
	"fmt"
	"strings"
	"time"
)

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type QueueConfig struct {
	LeaseTTL       time.Duration `koanf:"lease_ttl" mapstructure:"lease_ttl"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type ProcessorConfig struct {
	BatchSize         int           `koanf:"batch_size" mapstructure:"batch_size"`
	Concurrency       int           `koanf:"concurrency" mapstructure:"concurrency"`
	MaxRuntime        time.Duration `koanf:"max_runtime" mapstructure:"max_runtime"`
	EmptyBackoff      time.Duration `koanf:"empty_backoff" mapstructure:"empty_backoff"`
	YieldEvery        int           `koanf:"yield_every" mapstructure:"yield_every"`
	YieldPause        time.Duration `koanf:"yield_pause" mapstructure:"yield_pause"`
	MaxItemsPerSecond float64       `koanf:"max_items_per_second" mapstructure:"max_items_per_second"`
	QueueTypes        []string      `koanf:"queue_types" mapstructure:"queue_types"`
}

type DedupConfig struct {
	Window time.Duration `koanf:"window" mapstructure:"window"`
}

type NotifyConfig struct {
	RedisAddr     string        `koanf:"redis_addr" mapstructure:"redis_addr"`
	RedisPrefix   string        `koanf:"redis_prefix" mapstructure:"redis_prefix"`
	PushURL       string        `koanf:"push_url" mapstructure:"push_url"`
	PushToken     string        `koanf:"push_token" mapstructure:"push_token"`
	PushTimeout   time.Duration `koanf:"push_timeout" mapstructure:"push_timeout"`
	PublishOnPush bool          `koanf:"publish_on_push" mapstructure:"publish_on_push"`
}

type CRMConfig struct {
	BaseURL string        `koanf:"base_url" mapstructure:"base_url"`
	Version string        `koanf:"version" mapstructure:"version"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName   string            `koanf:"service_name" mapstructure:"service_name"`
	Database      DatabaseConfig    `koanf:"database" mapstructure:"database"`
	Queue         QueueConfig       `koanf:"queue" mapstructure:"queue"`
	Processor     ProcessorConfig   `koanf:"processor" mapstructure:"processor"`
	Dedup         DedupConfig       `koanf:"dedup" mapstructure:"dedup"`
	SLA           map[string]string `koanf:"sla" mapstructure:"sla"`
	Notify        NotifyConfig      `koanf:"notify" mapstructure:"notify"`
	CRM           CRMConfig         `koanf:"crm" mapstructure:"crm"`
	LocationCache CacheConfig       `koanf:"location_cache" mapstructure:"location_cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "hookqueue",
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:hookqueue.db?cache=shared&_foreign_keys=on",
		},
		Queue: QueueConfig{
			LeaseTTL:       5 * time.Minute,
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
		},
		Processor: ProcessorConfig{
			BatchSize:    50,
			Concurrency:  5,
			MaxRuntime:   50 * time.Second,
			EmptyBackoff: time.Second,
			YieldEvery:   100,
			YieldPause:   50 * time.Millisecond,
		},
		Dedup: DedupConfig{Window: 5 * time.Second},
		SLA:   map[string]string{},
		Notify: NotifyConfig{
			RedisPrefix: "hookqueue",
			PushTimeout: 10 * time.Second,
		},
		CRM: CRMConfig{
			BaseURL: "https://services.leadconnectorhq.com",
			Version: "2021-07-28",
			Timeout: 15 * time.Second,
		},
		LocationCache: CacheConfig{TTL: time.Minute},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.MaxAttempts < 0 {
		return fmt.Errorf("core: queue.max_attempts must be >= 0")
	}
	if c.Queue.LeaseTTL < 0 {
		return fmt.Errorf("core: queue.lease_ttl must be >= 0")
	}
	if c.Queue.MaxBackoff > 0 && c.Queue.InitialBackoff > c.Queue.MaxBackoff {
		return fmt.Errorf("core: queue.initial_backoff must not exceed queue.max_backoff")
	}
	if c.Processor.BatchSize < 0 || c.Processor.Concurrency < 0 {
		return fmt.Errorf("core: processor batch_size and concurrency must be >= 0")
	}
	if c.Processor.MaxItemsPerSecond < 0 {
		return fmt.Errorf("core: processor.max_items_per_second must be >= 0")
	}
	for _, raw := range c.Processor.QueueTypes {
		if _, err := ParseQueueType(raw); err != nil {
			return fmt.Errorf("core: processor.queue_types: %w", err)
		}
	}
	if _, err := c.SLATargets(); err != nil {
		return err
	}
	return nil
}

// SLATargets merges configured overrides over the default target table.
func (c Config) SLATargets() (SLATargets, error) {
	targets := DefaultSLATargets()
	for rawQueue, rawTarget := range c.SLA {
		queueType, err := ParseQueueType(rawQueue)
		if err != nil {
			return nil, fmt.Errorf("core: sla: %w", err)
		}
		target, err := time.ParseDuration(strings.TrimSpace(rawTarget))
		if err != nil || target <= 0 {
			return nil, fmt.Errorf("core: sla.%s must be a positive duration", queueType)
		}
		targets[queueType] = target
	}
	return targets, nil
}

// EnabledQueueTypes returns the configured queue types, or every queue type.
func (c Config) EnabledQueueTypes() []QueueType {
	if len(c.Processor.QueueTypes) == 0 {
		return QueueTypes()
	}
	out := make([]QueueType, 0, len(c.Processor.QueueTypes))
	seen := map[QueueType]struct{}{}
	for _, raw := range c.Processor.QueueTypes {
		queueType, err := ParseQueueType(raw)
		if err != nil {
			continue
		}
		if _, ok := seen[queueType]; ok {
			continue
		}
		seen[queueType] = struct{}{}
		out = append(out, queueType)
	}
	return out
}
