package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
)

const envelopeKey = "webhookPayload"

// NormalizeEvent turns a work item into the canonical event, accepting
// both the nested {webhookPayload: {...}, tenantId} envelope and a flat
// payload.
func NormalizeEvent(item core.WorkItem) (core.Event, error) {
	payload := item.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data := payload
	nested := false
	if inner, ok := payload[envelopeKey].(map[string]any); ok {
		data = inner
		nested = true
	}

	eventType := firstNonEmpty(item.Type, stringValue(data["type"]), stringValue(payload["type"]))
	if eventType == "" {
		return core.Event{}, core.NewValidationError("type", "event type is required")
	}

	return core.Event{
		ItemID:    item.ID,
		WebhookID: item.WebhookID,
		Type:      eventType,
		TenantID: firstNonEmpty(
			item.TenantID,
			stringValue(data["locationId"]),
			stringValue(payload["tenantId"]),
			stringValue(payload["locationId"]),
			stringValue(data["tenantId"]),
		),
		CompanyID: firstNonEmpty(
			item.CompanyID,
			stringValue(data["companyId"]),
			stringValue(payload["companyId"]),
		),
		Attempts: item.Attempts,
		Data:     cloneData(data),
		Nested:   nested,
		Received: item.CreatedAt,
	}, nil
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = value
	}
	return out
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
