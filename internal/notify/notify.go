// Package notify delivers reconciliation run announcements.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pendle-watch/internal/reconcile"
)

// Notifier delivers a text message to wherever the operator watches.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// LogNotifier writes notifications to a logger. Used when no Telegram
// credentials are configured.
type LogNotifier struct {
	Logger *log.Logger
}

// Send logs the message.
func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.Logger.Printf("notification: %s", text)
	return nil
}

// FormatReport renders a run report as a notification message. Runs with no
// membership changes produce an empty string; the caller skips sending.
func FormatReport(r *reconcile.Report) string {
	if len(r.Added) == 0 && len(r.Removed) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Market universe update (%s)\n", r.RunDate)

	if len(r.Added) > 0 {
		fmt.Fprintf(&b, "\nAdded (%d):\n", len(r.Added))
		for _, ref := range r.Added {
			fmt.Fprintf(&b, "+ %s (%s)\n", ref.Name, ref.Address)
		}
	}
	if len(r.Removed) > 0 {
		fmt.Fprintf(&b, "\nRemoved (%d):\n", len(r.Removed))
		for _, ref := range r.Removed {
			fmt.Fprintf(&b, "- %s (%s)\n", ref.Name, ref.Address)
		}
	}
	if r.Restored > 0 {
		fmt.Fprintf(&b, "\n%d project(s) restored with their previous monitoring state.\n", r.Restored)
	}

	return strings.TrimRight(b.String(), "\n")
}
