package reconcile

import (
	"fmt"

	"pendle-watch/internal/domain"
)

// Report summarizes one reconciliation run.
type Report struct {
	RunDate string `json:"run_date"` // UTC day the run was attributed to

	Created        int `json:"created"`
	Updated        int `json:"updated"`
	SkippedExpired int `json:"skipped_expired"`
	SkippedInvalid int `json:"skipped_invalid"` // snapshot entries without an address
	Restored       int `json:"restored"`

	// Added and Removed are the membership transitions recorded this run,
	// after same-day dominance resolution. A separate notifier consumes
	// them; the engine never talks to delivery channels itself.
	Added   []domain.ProjectRef `json:"added"`
	Removed []domain.ProjectRef `json:"removed"`
}

// Summary renders the one-line outcome used for sync logs and notifications.
func (r *Report) Summary() string {
	return fmt.Sprintf("succeeded with %d creates/%d updates/%d removals/%d restores (%d expired skipped, %d additions announced)",
		r.Created, r.Updated, len(r.Removed), r.Restored, r.SkippedExpired, len(r.Added))
}
