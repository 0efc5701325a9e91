package main

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

func TestEnvConfigBuildsNestedTree(t *testing.T) {
	raw := envConfig([]string{
		"HOOKQUEUE_SERVICE_NAME=hooks",
		"HOOKQUEUE_QUEUE_MAX_ATTEMPTS=7",
		"HOOKQUEUE_PROCESSOR_MAX_RUNTIME=30s",
		"HOOKQUEUE_PROCESSOR_QUEUE_TYPES=contacts, critical,",
		"HOOKQUEUE_SLA_CRITICAL=5s",
		"HOOKQUEUE_QUEUE_LEASE_TTL=soon",
		"PATH=/usr/bin",
	})
	if raw["service_name"] != "hooks" {
		t.Fatalf("expected service name, got %#v", raw["service_name"])
	}
	queue, _ := raw["queue"].(map[string]any)
	if queue["max_attempts"] != 7 {
		t.Fatalf("expected max attempts 7, got %#v", queue["max_attempts"])
	}
	if _, ok := queue["lease_ttl"]; ok {
		t.Fatalf("expected unparseable lease ttl to be skipped")
	}
	processor, _ := raw["processor"].(map[string]any)
	if processor["max_runtime"] != 30*time.Second {
		t.Fatalf("expected max runtime 30s, got %#v", processor["max_runtime"])
	}
	types, _ := processor["queue_types"].([]string)
	if len(types) != 2 || types[0] != "contacts" || types[1] != "critical" {
		t.Fatalf("unexpected queue types %#v", types)
	}
	sla, _ := raw["sla"].(map[string]any)
	if sla["critical"] != "5s" {
		t.Fatalf("expected critical sla, got %#v", sla)
	}
}

func TestEnvConfigLoadsThroughConfigProvider(t *testing.T) {
	raw := envConfig([]string{
		"HOOKQUEUE_QUEUE_MAX_ATTEMPTS=4",
		"HOOKQUEUE_PROCESSOR_BATCH_SIZE=25",
	})
	cfg, err := core.LoadConfig(context.Background(), core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: raw}), nil, core.Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Queue.MaxAttempts != 4 || cfg.Processor.BatchSize != 25 {
		t.Fatalf("expected env overrides, got attempts=%d batch=%d", cfg.Queue.MaxAttempts, cfg.Processor.BatchSize)
	}
	if cfg.ServiceName != core.DefaultConfig().ServiceName {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}

func TestResolveDriver(t *testing.T) {
	for _, name := range []string{"", "sqlite", "postgres"} {
		if _, dialect, err := resolveDriver(name); err != nil || dialect == nil {
			t.Fatalf("expected driver %q to resolve, got err=%v", name, err)
		}
	}
	if _, _, err := resolveDriver("oracle"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
