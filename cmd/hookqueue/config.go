package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type envKind int

const (
	envText envKind = iota
	envInt
	envFloat
	envBool
	envDuration
	envList
)

type envBinding struct {
	path []string
	kind envKind
}

var envBindings = map[string]envBinding{
	"HOOKQUEUE_SERVICE_NAME":               {path: []string{"service_name"}},
	"HOOKQUEUE_DATABASE_DRIVER":            {path: []string{"database", "driver"}},
	"HOOKQUEUE_DATABASE_DSN":               {path: []string{"database", "dsn"}},
	"HOOKQUEUE_DATABASE_DEBUG":             {path: []string{"database", "debug"}, kind: envBool},
	"HOOKQUEUE_QUEUE_LEASE_TTL":            {path: []string{"queue", "lease_ttl"}, kind: envDuration},
	"HOOKQUEUE_QUEUE_MAX_ATTEMPTS":         {path: []string{"queue", "max_attempts"}, kind: envInt},
	"HOOKQUEUE_QUEUE_INITIAL_BACKOFF":      {path: []string{"queue", "initial_backoff"}, kind: envDuration},
	"HOOKQUEUE_QUEUE_MAX_BACKOFF":          {path: []string{"queue", "max_backoff"}, kind: envDuration},
	"HOOKQUEUE_PROCESSOR_BATCH_SIZE":       {path: []string{"processor", "batch_size"}, kind: envInt},
	"HOOKQUEUE_PROCESSOR_CONCURRENCY":      {path: []string{"processor", "concurrency"}, kind: envInt},
	"HOOKQUEUE_PROCESSOR_MAX_RUNTIME":      {path: []string{"processor", "max_runtime"}, kind: envDuration},
	"HOOKQUEUE_PROCESSOR_EMPTY_BACKOFF":    {path: []string{"processor", "empty_backoff"}, kind: envDuration},
	"HOOKQUEUE_PROCESSOR_YIELD_EVERY":      {path: []string{"processor", "yield_every"}, kind: envInt},
	"HOOKQUEUE_PROCESSOR_YIELD_PAUSE":      {path: []string{"processor", "yield_pause"}, kind: envDuration},
	"HOOKQUEUE_PROCESSOR_MAX_ITEMS_PER_SEC": {path: []string{"processor", "max_items_per_second"}, kind: envFloat},
	"HOOKQUEUE_PROCESSOR_QUEUE_TYPES":      {path: []string{"processor", "queue_types"}, kind: envList},
	"HOOKQUEUE_DEDUP_WINDOW":               {path: []string{"dedup", "window"}, kind: envDuration},
	"HOOKQUEUE_NOTIFY_REDIS_ADDR":          {path: []string{"notify", "redis_addr"}},
	"HOOKQUEUE_NOTIFY_REDIS_PREFIX":        {path: []string{"notify", "redis_prefix"}},
	"HOOKQUEUE_NOTIFY_PUSH_URL":            {path: []string{"notify", "push_url"}},
	"HOOKQUEUE_NOTIFY_PUSH_TOKEN":          {path: []string{"notify", "push_token"}},
	"HOOKQUEUE_NOTIFY_PUSH_TIMEOUT":        {path: []string{"notify", "push_timeout"}, kind: envDuration},
	"HOOKQUEUE_NOTIFY_PUBLISH_ON_PUSH":     {path: []string{"notify", "publish_on_push"}, kind: envBool},
	"HOOKQUEUE_CRM_BASE_URL":               {path: []string{"crm", "base_url"}},
	"HOOKQUEUE_CRM_VERSION":                {path: []string{"crm", "version"}},
	"HOOKQUEUE_CRM_TIMEOUT":                {path: []string{"crm", "timeout"}, kind: envDuration},
	"HOOKQUEUE_LOCATION_CACHE_TTL":         {path: []string{"location_cache", "ttl"}, kind: envDuration},
}

const slaEnvPrefix = "HOOKQUEUE_SLA_"

// envConfig turns HOOKQUEUE_* variables into the raw config tree.
// HOOKQUEUE_SLA_<QUEUE>=<duration> sets a per queue type SLA target.
// Unparseable values are skipped so config defaults apply.
func envConfig(environ []string) map[string]any {
	raw := map[string]any{}
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if queue, found := strings.CutPrefix(name, slaEnvPrefix); found && queue != "" {
			put(raw, []string{"sla", strings.ToLower(queue)}, value)
			continue
		}
		binding, ok := envBindings[name]
		if !ok {
			continue
		}
		parsed, ok := parseEnv(value, binding.kind)
		if !ok {
			continue
		}
		put(raw, binding.path, parsed)
	}
	return raw
}

func parseEnv(value string, kind envKind) (any, bool) {
	switch kind {
	case envInt:
		n, err := strconv.Atoi(value)
		return n, err == nil
	case envFloat:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	case envBool:
		b, err := strconv.ParseBool(value)
		return b, err == nil
	case envDuration:
		d, err := time.ParseDuration(value)
		return d, err == nil
	case envList:
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, len(out) > 0
	default:
		return value, true
	}
}

func put(raw map[string]any, path []string, value any) {
	node := raw
	for _, key := range path[:len(path)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	node[path[len(path)-1]] = value
}

func envString(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}
