package domain

import "time"

// DefaultGroup is the group assigned to projects that have no user-set group.
const DefaultGroup = "Other"

// Project is one tracked market instrument, keyed by its on-chain address.
// Rows are never hard-deleted during reconciliation: leaving the qualifying
// universe is recorded in the history ledger and applied at query time.
type Project struct {
	ID         int64
	Address    string
	Name       string
	ChainID    *int64
	Group      string // empty means unset; reconciliation defaults it to DefaultGroup
	Expiry     *time.Time
	TVL        *float64
	Volume24h  *float64
	ImpliedAPY *float64
	YTAddress  string // "chainId-address" form used by price lookup APIs

	// Monitored is user-controlled and must survive removal/restore cycles.
	Monitored bool

	// PreDeletionMonitored snapshots Monitored at the moment the project
	// leaves the qualifying universe. It is non-nil only while the project
	// is removed, and is copied back into Monitored exactly once at restore.
	PreDeletionMonitored *bool

	RawPayload []byte // upstream market object as received

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Group is a user-defined label. An unused group row is valid and listed.
type Group struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// SyncLog records the outcome of one reconciliation run.
type SyncLog struct {
	ID       int64
	SyncType string
	SyncTime time.Time
	Status   string // "success" or "failed"
	Message  string
}

// Sync log values.
const (
	SyncTypeProjects  = "projects"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)
