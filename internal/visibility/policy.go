// Package visibility holds the single qualification predicate deciding
// whether a project belongs to the qualifying universe. Both the
// reconciliation write path and every read-side listing go through this
// package; there is deliberately no second implementation anywhere.
package visibility

import (
	"time"

	"pendle-watch/internal/domain"
)

// Policy qualifies projects by 24h volume and expiry.
type Policy struct {
	// MinVolume24h excludes projects whose 24h volume is unknown or at or
	// below this value.
	MinVolume24h float64

	// Now is the clock used for expiry checks. Tests may override it.
	Now func() time.Time
}

// New returns a Policy with the given volume threshold.
func New(minVolume24h float64) Policy {
	return Policy{MinVolume24h: minVolume24h, Now: time.Now}
}

// Qualifies reports whether a project with the given attributes is in the
// qualifying universe: volume is known and above the threshold, and the
// project is either perpetual or not yet expired.
func (p Policy) Qualifies(volume24h *float64, expiry *time.Time) bool {
	if volume24h == nil || *volume24h <= p.MinVolume24h {
		return false
	}
	if expiry != nil && !expiry.After(p.Now().UTC()) {
		return false
	}
	return true
}

// Project applies Qualifies to a stored project.
func (p Policy) Project(pr *domain.Project) bool {
	return p.Qualifies(pr.Volume24h, pr.Expiry)
}

// Market applies Qualifies to a snapshot entry.
func (p Policy) Market(m *domain.Market) bool {
	return p.Qualifies(m.Volume24h, m.Expiry)
}
