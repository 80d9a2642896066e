// Package reconcile implements the project state reconciliation engine: one
// run diffs a fetched market snapshot against the persisted universe, keeps
// project attributes current, and derives the append-only Added/Removed
// audit trail.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/ledger"
	"pendle-watch/internal/storage"
	"pendle-watch/internal/visibility"
)

// Engine orchestrates reconciliation runs. It is the sole writer to the
// projects and history tables during a run and assumes sequential,
// non-reentrant invocation; callers serialize runs (see cmd/server's
// single-flight guard).
type Engine struct {
	tx     storage.Transactor
	policy visibility.Policy
	logger *log.Logger
	now    func() time.Time
}

// Options configures an Engine.
type Options struct {
	Transactor storage.Transactor
	Policy     visibility.Policy

	// Logger defaults to a discarding logger.
	Logger *log.Logger

	// Now defaults to time.Now. Tests inject a fixed clock; the same clock
	// should back Policy.Now so write-path and read-path expiry checks agree.
	Now func() time.Time
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		tx:     opts.Transactor,
		policy: opts.Policy,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard, "", 0)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Reconcile executes one run against the given snapshot. All store and
// ledger mutations commit atomically; on any error nothing is persisted.
// Re-running with an identical snapshot on the same day produces no
// additional ledger rows.
func (e *Engine) Reconcile(ctx context.Context, snapshot []*domain.Market) (*Report, error) {
	now := e.now().UTC()
	today := domain.DayOf(now)
	yesterday := today.AddDate(0, 0, -1)

	report := &Report{RunDate: today.Format("2006-01-02")}

	err := e.tx.WithinTx(ctx, func(s storage.Stores) error {
		led := ledger.New(s.Projects, s.History)

		if err := s.Groups.EnsureExists(ctx, domain.DefaultGroup); err != nil {
			return fmt.Errorf("ensure default group: %w", err)
		}

		// Pre-build the address index and batch all history lookups once,
		// before the diff loop.
		existing, err := s.Projects.GetAll(ctx, false)
		if err != nil {
			return fmt.Errorf("load projects: %w", err)
		}
		index := make(map[string]*domain.Project, len(existing))
		for _, p := range existing {
			index[p.Address] = p
		}

		yesterdayMembers, err := led.MembershipAsOf(ctx, yesterday)
		if err != nil {
			return fmt.Errorf("reconstruct yesterday's membership: %w", err)
		}

		latest, err := s.History.LatestPerAddress(ctx)
		if err != nil {
			return fmt.Errorf("load latest events: %w", err)
		}

		todayEvents, err := s.History.ListRange(ctx, today, today)
		if err != nil {
			return fmt.Errorf("load today's events: %w", err)
		}
		addedToday := make(map[string]struct{})
		removedToday := make(map[string]struct{})
		for _, ev := range todayEvents {
			switch ev.Action {
			case domain.ActionAdded:
				addedToday[ev.Address] = struct{}{}
			case domain.ActionRemoved:
				removedToday[ev.Address] = struct{}{}
			}
		}

		createdThisRun := make(map[string]struct{})
		var added, removed []domain.ProjectRef
		addedSet := make(map[string]struct{})

		// Upsert pass.
		for _, m := range snapshot {
			if m == nil || m.Address == "" {
				report.SkippedInvalid++
				e.logger.Printf("snapshot entry without address skipped")
				continue
			}
			if m.Expiry != nil && !m.Expiry.After(now) {
				report.SkippedExpired++
				continue
			}

			if p, ok := index[m.Address]; ok {
				applyMarket(p, m, now)
				if err := s.Projects.Update(ctx, p); err != nil {
					return fmt.Errorf("update project %s: %w", m.Address, err)
				}
				report.Updated++
				continue
			}

			p := newProject(m, now)
			if err := s.Projects.Insert(ctx, p); err != nil {
				return fmt.Errorf("create project %s: %w", m.Address, err)
			}
			index[p.Address] = p
			createdThisRun[p.Address] = struct{}{}
			report.Created++

			// A brand-new row is announced as an addition only when it was
			// not a member yesterday and currently qualifies; a low-volume
			// newcomer is created silently.
			if _, wasMember := yesterdayMembers[p.Address]; !wasMember && e.policy.Market(m) {
				added = append(added, domain.ProjectRef{Address: p.Address, Name: p.Name})
				addedSet[p.Address] = struct{}{}
			}
		}

		// Removal detection. Same-run creations are exempt.
		removalSet := make(map[string]struct{})
		for _, p := range index {
			if _, ok := createdThisRun[p.Address]; ok {
				continue
			}
			if e.policy.Project(p) {
				continue
			}
			if _, ok := removedToday[p.Address]; ok {
				continue
			}
			// Already in recorded-removed state: a removal is announced
			// once per Removed..Added cycle, not on every failing run.
			if le, ok := latest[p.Address]; ok && le.Action == domain.ActionRemoved {
				continue
			}
			// A low-volume newcomer that was never a member and has no
			// ledger record has not entered the universe yet; there is
			// nothing to remove it from.
			if _, wasMember := yesterdayMembers[p.Address]; !wasMember {
				if _, recorded := latest[p.Address]; !recorded {
					continue
				}
			}

			// First transition into removed: snapshot the monitoring flag.
			if p.PreDeletionMonitored == nil {
				wasMonitored := p.Monitored
				p.PreDeletionMonitored = &wasMonitored
				p.UpdatedAt = now
				if err := s.Projects.Update(ctx, p); err != nil {
					return fmt.Errorf("capture pre-removal state for %s: %w", p.Address, err)
				}
			}
			removalSet[p.Address] = struct{}{}
			removed = append(removed, domain.ProjectRef{Address: p.Address, Name: p.Name})
		}

		// Restoration detection: the latest recorded event is Removed but
		// the project qualifies again.
		for _, p := range index {
			if _, ok := createdThisRun[p.Address]; ok {
				continue
			}
			if _, ok := removalSet[p.Address]; ok {
				continue
			}
			if _, ok := addedSet[p.Address]; ok {
				continue
			}
			le, ok := latest[p.Address]
			if !ok || le.Action != domain.ActionRemoved {
				continue
			}
			if !e.policy.Project(p) {
				continue
			}

			if p.PreDeletionMonitored != nil {
				p.Monitored = *p.PreDeletionMonitored
				p.PreDeletionMonitored = nil
				p.UpdatedAt = now
				if err := s.Projects.Update(ctx, p); err != nil {
					return fmt.Errorf("restore project %s: %w", p.Address, err)
				}
			}
			report.Restored++

			if _, ok := addedToday[p.Address]; ok {
				continue
			}
			// A Removed row recorded earlier today dominates; the Added
			// event then lands on the next day's run.
			if _, ok := removedToday[p.Address]; ok {
				continue
			}
			added = append(added, domain.ProjectRef{Address: p.Address, Name: p.Name})
			addedSet[p.Address] = struct{}{}
		}

		// Same-day dominance: a removal cancels this run's addition, and a
		// pre-existing Added row for today is deleted before recording
		// Removed.
		finalAdded := added[:0]
		for _, ref := range added {
			if _, conflict := removalSet[ref.Address]; conflict {
				continue
			}
			finalAdded = append(finalAdded, ref)
		}

		for _, ref := range finalAdded {
			if err := led.RecordEvent(ctx, today, domain.ActionAdded, ref.Address, ref.Name); err != nil {
				return fmt.Errorf("record addition of %s: %w", ref.Address, err)
			}
		}
		for _, ref := range removed {
			if err := s.History.DeleteAdded(ctx, today, ref.Address); err != nil {
				return fmt.Errorf("resolve same-day conflict for %s: %w", ref.Address, err)
			}
			if err := led.RecordEvent(ctx, today, domain.ActionRemoved, ref.Address, ref.Name); err != nil {
				return fmt.Errorf("record removal of %s: %w", ref.Address, err)
			}
		}

		sort.Slice(finalAdded, func(i, j int) bool { return finalAdded[i].Address < finalAdded[j].Address })
		sort.Slice(removed, func(i, j int) bool { return removed[i].Address < removed[j].Address })
		report.Added = finalAdded
		report.Removed = removed
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("reconcile %s: %s", report.RunDate, report.Summary())
	return report, nil
}

// applyMarket folds a snapshot entry into an existing project. The
// monitoring flag and a user-set group are never touched; zero is a valid
// value for volume and tvl and overwrites older data.
func applyMarket(p *domain.Project, m *domain.Market, now time.Time) {
	if m.Name != "" {
		p.Name = m.Name
	}
	if p.Group == "" {
		p.Group = domain.DefaultGroup
	}
	if m.ChainID != nil {
		chainID := *m.ChainID
		p.ChainID = &chainID
	}
	p.Expiry = cloneTime(m.Expiry)
	p.TVL = overwriteIfKnown(p.TVL, m.TVL)
	p.Volume24h = overwriteIfKnown(p.Volume24h, m.Volume24h)
	p.ImpliedAPY = overwriteIfKnown(p.ImpliedAPY, m.ImpliedAPY)
	if m.Raw != nil {
		p.RawPayload = append([]byte(nil), m.Raw...)
	}
	p.UpdatedAt = now
}

// newProject builds a project row for a first-seen market. New projects are
// monitored by default and land in the default group.
func newProject(m *domain.Market, now time.Time) *domain.Project {
	p := &domain.Project{
		Address:   m.Address,
		Name:      m.Name,
		Group:     domain.DefaultGroup,
		Expiry:    cloneTime(m.Expiry),
		YTAddress: m.YTAddress,
		Monitored: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.ChainID != nil {
		chainID := *m.ChainID
		p.ChainID = &chainID
	}
	p.TVL = overwriteIfKnown(nil, m.TVL)
	p.Volume24h = overwriteIfKnown(nil, m.Volume24h)
	p.ImpliedAPY = overwriteIfKnown(nil, m.ImpliedAPY)
	if m.Raw != nil {
		p.RawPayload = append([]byte(nil), m.Raw...)
	}
	return p
}

func overwriteIfKnown(old, new *float64) *float64 {
	if new == nil {
		return old
	}
	v := *new
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
