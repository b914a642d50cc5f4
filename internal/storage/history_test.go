package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "history.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func record(id, instanceID string, at time.Time, outcome string) model.TriggerRecord {
	return model.TriggerRecord{
		ID:             id,
		InstanceID:     instanceID,
		AutomationID:   "auto-1",
		AutomationName: "Daily Report",
		DeviceName:     "Studio Deck",
		Outcome:        outcome,
		TriggeredAt:    at,
		DurationMS:     120,
	}
}

func TestRecordAndListRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	failed := record("r2", "ctx-2", base.Add(time.Minute), model.OutcomeFailure)
	failed.ErrorKind = "api_error"
	for _, rec := range []model.TriggerRecord{
		record("r1", "ctx-1", base, model.OutcomeSuccess),
		failed,
		record("r3", "ctx-1", base.Add(2*time.Minute), model.OutcomeSuccess),
	} {
		if err := repo.RecordTrigger(ctx, rec); err != nil {
			t.Fatalf("RecordTrigger(%s) error: %v", rec.ID, err)
		}
	}

	items, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "r3" || items[1].ID != "r2" {
		t.Fatalf("order = %s, %s; want r3, r2", items[0].ID, items[1].ID)
	}
	if items[1].ErrorKind != "api_error" || items[1].Outcome != model.OutcomeFailure {
		t.Fatalf("failure record = %+v", items[1])
	}
	if !items[0].TriggeredAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("TriggeredAt = %s", items[0].TriggeredAt)
	}
	if items[0].ErrorKind != "" || items[0].DeviceName != "Studio Deck" || items[0].DurationMS != 120 {
		t.Fatalf("success record = %+v", items[0])
	}

	forInstance, err := repo.ListForInstance(ctx, "ctx-1", 0)
	if err != nil {
		t.Fatalf("ListForInstance() error: %v", err)
	}
	if len(forInstance) != 2 {
		t.Fatalf("expected 2 records for ctx-1, got %d", len(forInstance))
	}
}

func TestRecordTriggerGeneratesID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.RecordTrigger(ctx, record("", "ctx-1", time.Now(), model.OutcomeSuccess)); err != nil {
		t.Fatalf("RecordTrigger() error: %v", err)
	}
	items, err := repo.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(items) != 1 || items[0].ID == "" {
		t.Fatalf("items = %+v", items)
	}
}

func TestRecordTriggerRejectsDuplicateID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rec := record("dup", "ctx-1", time.Now(), model.OutcomeSuccess)
	if err := repo.RecordTrigger(ctx, rec); err != nil {
		t.Fatalf("RecordTrigger() error: %v", err)
	}
	if err := repo.RecordTrigger(ctx, rec); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("RecordTrigger() duplicate error = %v, want ErrDuplicateRecord", err)
	}
}

func TestRecordTriggerRejectsInvalidRecords(t *testing.T) {
	repo := newTestRepository(t)

	tests := []struct {
		name   string
		record model.TriggerRecord
	}{
		{name: "missing instance", record: record("a", "", time.Now(), model.OutcomeSuccess)},
		{name: "unknown outcome", record: record("b", "ctx-1", time.Now(), "maybe")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := repo.RecordTrigger(context.Background(), tt.record)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("RecordTrigger() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		if err := repo.RecordTrigger(ctx, record(id, "ctx-1", base.Add(time.Duration(i)*time.Second), model.OutcomeSuccess)); err != nil {
			t.Fatalf("RecordTrigger() error: %v", err)
		}
	}

	removed, err := repo.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	items, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(items) != 2 || items[0].ID != "d" || items[1].ID != "c" {
		t.Fatalf("items after prune = %+v", items)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -1, want: DefaultListLimit},
		{in: 0, want: DefaultListLimit},
		{in: 7, want: 7},
		{in: MaxListLimit + 1, want: MaxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Fatalf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCloseNilRepository(t *testing.T) {
	var repo *Repository
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() on nil = %v", err)
	}
}
