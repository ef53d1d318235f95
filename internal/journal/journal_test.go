package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-transceiver/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-transceiver/internal/transceiver"
	_ "github.com/nerrad567/gray-logic-transceiver/migrations"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db.DB)
}

func int64Ptr(v int64) *int64 { return &v }

func TestRepository_InsertAndRecent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Kind: KindReading, Subject: "t1", Action: "create", Value: int64Ptr(5), BackendID: int64Ptr(17), Success: true, CreatedAt: base},
		{Kind: KindReading, Subject: "t2", Action: "update", Value: int64Ptr(-3), Error: "status 500", CreatedAt: base.Add(time.Second)},
		{Kind: KindPush, Subject: "esp001", Action: "scheduled", RunID: "run-1", Success: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	got, err := repo.Recent(ctx, Query{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Subject != "esp001" || got[2].Subject != "t1" {
		t.Errorf("order = %s, %s, %s; want newest first", got[0].Subject, got[1].Subject, got[2].Subject)
	}
	if got[2].BackendID == nil || *got[2].BackendID != 17 || !got[2].Success {
		t.Errorf("t1 entry = %+v", got[2])
	}
	if got[1].Success || got[1].Error != "status 500" || *got[1].Value != -3 {
		t.Errorf("t2 entry = %+v", got[1])
	}
	if got[0].RunID != "run-1" || got[0].Value != nil {
		t.Errorf("push entry = %+v", got[0])
	}
	if !got[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got[2].CreatedAt, base)
	}
}

func TestRepository_RecentFilters(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = repo.Insert(ctx, Entry{Kind: KindReading, Subject: "t1", Action: "create", Success: true})
		_ = repo.Insert(ctx, Entry{Kind: KindPush, Subject: "esp001", Action: "scheduled", Success: true})
	}

	tests := []struct {
		name string
		q    Query
		want int
	}{
		{"by kind", Query{Kind: KindPush}, 5},
		{"by subject", Query{Subject: "t1"}, 5},
		{"kind and subject mismatch", Query{Kind: KindPush, Subject: "t1"}, 0},
		{"limit", Query{Limit: 3}, 3},
		{"limit capped", Query{Limit: 1000}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Recent(ctx, tt.q)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRepository_InsertValidation(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, Entry{Kind: "other", Subject: "x"}); err == nil {
		t.Error("Insert() with bad kind: want error")
	}
	if err := repo.Insert(ctx, Entry{Kind: KindPush}); err == nil {
		t.Error("Insert() without subject: want error")
	}
}

func TestRepository_Prune(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_ = repo.Insert(ctx, Entry{Kind: KindReading, Subject: "old", Action: "create", CreatedAt: old})
	_ = repo.Insert(ctx, Entry{Kind: KindReading, Subject: "new", Action: "create"})

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() deleted %d, want 1", n)
	}

	got, _ := repo.Recent(ctx, Query{})
	if len(got) != 1 || got[0].Subject != "new" {
		t.Errorf("remaining = %+v", got)
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0): want error")
	}
}

func TestRecorder_WritesEvents(t *testing.T) {
	repo := setupRepo(t)
	rec := NewRecorder(repo, RecorderOptions{Retention: time.Hour})

	now := time.Now().UTC()
	rec.ReadingDispatched(transceiver.DispatchEvent{
		SensorName: "t1", Value: 21, Action: transceiver.ActionCreate, BackendID: 9,
		Duration: 12 * time.Millisecond, Timestamp: now,
	})
	rec.ReadingDispatched(transceiver.DispatchEvent{
		Value: 4, Action: transceiver.ActionSkip, Timestamp: now,
	})
	rec.ConfigPushed(transceiver.PushEvent{
		RunID: "r1", Device: "esp002", Trigger: transceiver.TriggerOnDemand,
		Items: 3, Published: 1, Err: errors.New("publish failed"), Timestamp: now,
	})
	rec.Close()
	rec.Close()

	got, err := repo.Recent(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	bySubject := make(map[string]Entry)
	for _, e := range got {
		bySubject[e.Subject] = e
	}
	if e := bySubject["t1"]; !e.Success || e.Action != "create" || e.Duration != 12 || *e.BackendID != 9 {
		t.Errorf("t1 = %+v", e)
	}
	if e := bySubject["(unnamed)"]; e.Success || e.Action != "skip" {
		t.Errorf("skip entry = %+v", e)
	}
	if e := bySubject["esp002"]; e.Success || e.Error != "publish failed" || *e.Items != 3 || *e.Published != 1 {
		t.Errorf("push entry = %+v", e)
	}

	// After Close nothing is accepted.
	rec.ConfigPushed(transceiver.PushEvent{Device: "late"})
	if rec.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", rec.Dropped())
	}
}
