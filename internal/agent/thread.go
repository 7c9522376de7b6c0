package agent

import (
	"strings"

	"github.com/google/uuid"
)

// ResolveThreadID returns explicit when set, else the id of the first
// supplied message, else a fresh UUID.
func ResolveThreadID(explicit string, history []IncomingMessage) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	if len(history) > 0 {
		if id := strings.TrimSpace(history[0].ID); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
