package notify

import (
	"fmt"
	"strings"
)

// formatTitle renders the headline for an event type.
func formatTitle(t EventType) string {
	switch t {
	case EventDeployStarted:
		return "Deploy started"
	case EventDeploySucceeded:
		return "Deploy succeeded"
	case EventDeployFailed:
		return "Deploy failed"
	case EventCertRenewed:
		return "Certificate renewed"
	case EventCertFailed:
		return "Certificate renewal failed"
	}
	return string(t)
}

// formatText renders the event details as plain lines, omitting empty fields.
func formatText(e Event) string {
	var b strings.Builder
	if e.App != "" {
		fmt.Fprintf(&b, "App: %s\n", e.App)
	}
	if e.Deploy != "" {
		fmt.Fprintf(&b, "Deploy: %s\n", e.Deploy)
	}
	if e.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", e.Domain)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", e.Error)
	}
	return strings.TrimRight(b.String(), "\n")
}
