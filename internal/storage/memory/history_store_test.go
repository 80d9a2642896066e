package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHistoryStore_RecordIsIdempotent(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	e := &domain.HistoryEvent{
		Date:    day(2025, 6, 1),
		Action:  domain.ActionAdded,
		Address: "0xabc",
		Name:    "reUSDe",
	}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("duplicate Record should be a no-op, got: %v", err)
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 event after duplicate record, got %d", len(all))
	}
}

func TestHistoryStore_RecordNormalizesDate(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	e := &domain.HistoryEvent{
		Date:    time.Date(2025, 6, 1, 17, 45, 12, 0, time.UTC),
		Action:  domain.ActionRemoved,
		Address: "0xabc",
	}
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.LatestFor(ctx, "0xabc")
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if !got.Date.Equal(day(2025, 6, 1)) {
		t.Errorf("Date not normalized to day: %v", got.Date)
	}
}

func TestHistoryStore_LatestFor(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	events := []*domain.HistoryEvent{
		{Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xabc", CreatedAt: day(2025, 6, 1)},
		{Date: day(2025, 6, 3), Action: domain.ActionRemoved, Address: "0xabc", CreatedAt: day(2025, 6, 3)},
		{Date: day(2025, 6, 2), Action: domain.ActionAdded, Address: "0xother", CreatedAt: day(2025, 6, 2)},
	}
	for _, e := range events {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	latest, err := store.LatestFor(ctx, "0xabc")
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if latest.Action != domain.ActionRemoved || !latest.Date.Equal(day(2025, 6, 3)) {
		t.Errorf("wrong latest event: %+v", latest)
	}

	if _, err := store.LatestFor(ctx, "0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryStore_LatestFor_SameDayTieBreak(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	d := day(2025, 6, 1)
	first := &domain.HistoryEvent{Date: d, Action: domain.ActionAdded, Address: "0xabc", CreatedAt: d.Add(1 * time.Hour)}
	second := &domain.HistoryEvent{Date: d, Action: domain.ActionRemoved, Address: "0xabc", CreatedAt: d.Add(2 * time.Hour)}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	latest, err := store.LatestFor(ctx, "0xabc")
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if latest.Action != domain.ActionRemoved {
		t.Errorf("CreatedAt should break same-day ties, got %s", latest.Action)
	}
}

func TestHistoryStore_AddressesByActionThrough(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	events := []*domain.HistoryEvent{
		{Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0x1"},
		{Date: day(2025, 6, 2), Action: domain.ActionAdded, Address: "0x2"},
		{Date: day(2025, 6, 3), Action: domain.ActionAdded, Address: "0x3"},
		{Date: day(2025, 6, 2), Action: domain.ActionRemoved, Address: "0x1"},
	}
	for _, e := range events {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	added, err := store.AddressesByActionThrough(ctx, domain.ActionAdded, day(2025, 6, 2))
	if err != nil {
		t.Fatalf("AddressesByActionThrough failed: %v", err)
	}
	if len(added) != 2 || added[0] != "0x1" || added[1] != "0x2" {
		t.Errorf("wrong added set through day 2: %v", added)
	}

	removed, err := store.AddressesByActionThrough(ctx, domain.ActionRemoved, day(2025, 6, 2))
	if err != nil {
		t.Fatalf("AddressesByActionThrough failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "0x1" {
		t.Errorf("wrong removed set through day 2: %v", removed)
	}
}

func TestHistoryStore_DeleteAdded(t *testing.T) {
	db := New(testPolicy())
	store := db.Stores().History
	ctx := context.Background()

	d := day(2025, 6, 1)
	if err := store.Record(ctx, &domain.HistoryEvent{Date: d, Action: domain.ActionAdded, Address: "0xabc"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, &domain.HistoryEvent{Date: d, Action: domain.ActionRemoved, Address: "0xabc"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if err := store.DeleteAdded(ctx, d, "0xabc"); err != nil {
		t.Fatalf("DeleteAdded failed: %v", err)
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 1 || all[0].Action != domain.ActionRemoved {
		t.Errorf("expected only the removed row to survive, got %v", all)
	}

	// Deleting again is harmless.
	if err := store.DeleteAdded(ctx, d, "0xabc"); err != nil {
		t.Errorf("second DeleteAdded failed: %v", err)
	}
}

func TestDB_WithinTxRollsBackOnError(t *testing.T) {
	db := New(testPolicy())
	ctx := context.Background()

	seed := &domain.Project{Address: "0xseed", Name: "seed", Monitored: true}
	if err := db.Stores().Projects.Insert(ctx, seed); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(s storage.Stores) error {
		if err := s.Projects.Insert(ctx, &domain.Project{Address: "0xnew"}); err != nil {
			return err
		}
		if err := s.History.Record(ctx, &domain.HistoryEvent{Date: day(2025, 6, 1), Action: domain.ActionAdded, Address: "0xnew"}); err != nil {
			return err
		}
		if _, err := s.Projects.SetMonitored(ctx, "0xseed", false); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := db.Stores().Projects.GetByAddress(ctx, "0xnew"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("insert inside failed tx should be rolled back")
	}
	events, err := db.Stores().History.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Error("history record inside failed tx should be rolled back")
	}
	got, err := db.Stores().Projects.GetByAddress(ctx, "0xseed")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if !got.Monitored {
		t.Error("mutation inside failed tx should be rolled back")
	}
}

func TestDB_WithinTxCommits(t *testing.T) {
	db := New(testPolicy())
	ctx := context.Background()

	err := db.WithinTx(ctx, func(s storage.Stores) error {
		return s.Projects.Insert(ctx, &domain.Project{Address: "0xnew", Name: "kept"})
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	got, err := db.Stores().Projects.GetByAddress(ctx, "0xnew")
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.Name != "kept" {
		t.Errorf("unexpected project: %+v", got)
	}
}
