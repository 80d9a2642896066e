package domain

import "time"

// Action is the kind of membership transition recorded in the ledger.
type Action string

// Membership transitions.
const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// HistoryEvent is one append-only audit row: on Date, the project at Address
// entered (Added) or left (Removed) the qualifying universe. At most one
// (Date, Action, Address) row may exist; Removed dominates Added within a day.
type HistoryEvent struct {
	ID      int64
	Date    time.Time // day granularity, normalized to midnight UTC
	Action  Action
	Address string
	Name    string

	// CreatedAt orders events within a day.
	CreatedAt time.Time
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
