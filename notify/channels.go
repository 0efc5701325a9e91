// Package notify fans derived events out to pub/sub channels and mobile push.
//
// Delivery is best effort: failures are reported as notification errors for
// logging and never affect the outcome of the work item that produced them.
package notify

import "strings"

const (
	prefixUser     = "user:"
	prefixLocation = "location:"
	prefixProject  = "project:"
)

func UserChannel(userID string) string {
	return prefixUser + strings.TrimSpace(userID)
}

func LocationChannel(locationID string) string {
	return prefixLocation + strings.TrimSpace(locationID)
}

func ProjectChannel(projectID string) string {
	return prefixProject + strings.TrimSpace(projectID)
}

// ValidChannel rejects channel names with an empty id segment.
func ValidChannel(name string) bool {
	name = strings.TrimSpace(name)
	index := strings.Index(name, ":")
	return index > 0 && index < len(name)-1
}
