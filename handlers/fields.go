package handlers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fields reads loosely typed webhook payload values. Every accessor takes
// candidate keys in order and returns the first usable value.
type fields map[string]any

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f fields) has(keys ...string) bool {
	for _, key := range keys {
		if value, ok := f[key]; ok && value != nil {
			return true
		}
	}
	return false
}

func (f fields) str(keys ...string) string {
	for _, key := range keys {
		if value := asString(f[key]); value != "" {
			return value
		}
	}
	return ""
}

func (f fields) num(keys ...string) float64 {
	for _, key := range keys {
		if value, ok := asFloat(f[key]); ok {
			return value
		}
	}
	return 0
}

func (f fields) integer(keys ...string) (int, bool) {
	for _, key := range keys {
		if value, ok := asFloat(f[key]); ok {
			return int(math.Round(value)), true
		}
	}
	return 0, false
}

func (f fields) flag(keys ...string) bool {
	for _, key := range keys {
		switch typed := f[key].(type) {
		case bool:
			return typed
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
			if err == nil {
				return parsed
			}
		case float64:
			return typed != 0
		}
	}
	return false
}

func (f fields) time(keys ...string) *time.Time {
	for _, key := range keys {
		if parsed := asTime(f[key]); parsed != nil {
			return parsed
		}
	}
	return nil
}

func (f fields) strings(keys ...string) []string {
	for _, key := range keys {
		switch typed := f[key].(type) {
		case []string:
			return append([]string(nil), typed...)
		case []any:
			out := make([]string, 0, len(typed))
			for _, item := range typed {
				if value := asString(item); value != "" {
					out = append(out, value)
				}
			}
			return out
		}
	}
	return nil
}

func (f fields) object(keys ...string) fields {
	for _, key := range keys {
		if typed, ok := f[key].(map[string]any); ok {
			return fields(typed)
		}
	}
	return nil
}

func (f fields) objects(keys ...string) []map[string]any {
	for _, key := range keys {
		typed, ok := f[key].([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			if entry, ok := item.(map[string]any); ok {
				out = append(out, entry)
			}
		}
		return out
	}
	return nil
}

func asString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return ""
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// asTime accepts the timestamp layouts the CRM emits and epoch milliseconds.
func asTime(value any) *time.Time {
	switch typed := value.(type) {
	case time.Time:
		if typed.IsZero() {
			return nil
		}
		utc := typed.UTC()
		return &utc
	case float64:
		if typed <= 0 {
			return nil
		}
		parsed := time.UnixMilli(int64(typed)).UTC()
		return &parsed
	case string:
		raw := strings.TrimSpace(typed)
		if raw == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
