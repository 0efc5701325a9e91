package sqlstore

import "strings"

const redactedValue = "[REDACTED]"

// credentialMarkers match webhook keys after case folding and with "_" and
// "-" removed, so accessToken, access_token and Access-Token all hit "token".
var credentialMarkers = []string{
	"accesskey",
	"apikey",
	"authorization",
	"clientsecret",
	"credential",
	"password",
	"secret",
	"signature",
	"token",
}

// RedactPayload copies an inbound webhook payload with credential fields
// masked at any depth. Install events carry the tenant's OAuth tokens and
// must not reach the unhandled events table in clear text.
func RedactPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if isCredentialKey(key) {
			out[key] = redactedValue
			continue
		}
		out[key] = redactNested(value)
	}
	return out
}

func redactNested(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactPayload(typed)
	case []any:
		items := make([]any, 0, len(typed))
		for _, item := range typed {
			items = append(items, redactNested(item))
		}
		return items
	}
	return value
}

func isCredentialKey(key string) bool {
	folded := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	if folded == "" {
		return false
	}
	for _, marker := range credentialMarkers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}
