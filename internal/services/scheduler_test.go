package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/keymonitor/backend/internal/config"
)

func TestNextDailyRun(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, loc)

	// Target later today
	next := nextDailyRun(now, 20, 0)
	want := time.Date(2026, 3, 1, 20, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// Target already passed today rolls to tomorrow
	next = nextDailyRun(now, 8, 0)
	want = time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// Target exactly now schedules for tomorrow, not an immediate re-fire
	next = nextDailyRun(now, 10, 30)
	want = time.Date(2026, 3, 2, 10, 30, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestRunRetentionPurgesByConfiguredWindow(t *testing.T) {
	st := newTestStore(t)
	st.RegisterGame("g1", "Portal", nil)

	c := config.Default()
	c.DataRetentionDays = 30
	cfg := config.NewManager(c)

	appendRecord(t, st, "g1", 10, time.Now().AddDate(0, 0, -60)) // past retention
	appendRecord(t, st, "g1", 11, time.Now().AddDate(0, 0, -5))  // kept

	analysis := NewAnalysisService(st)
	sched := NewScheduler(cfg, nil, nil, st, analysis)

	purged, err := sched.RunRetention()
	if err != nil {
		t.Fatalf("retention failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
	rows, _ := st.QuerySnapshots("g1", zeroTime())
	if len(rows) != 1 || rows[0].MinPrice != 11 {
		t.Errorf("wrong survivor: %+v", rows)
	}
}

func TestSchedulerRestartsCollectionOnIntervalChange(t *testing.T) {
	st := newTestStore(t)
	cfg := config.NewManager(config.Default())

	catalog := newTestCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		listingsJSON(w)
	})
	collector := NewCollector(st, catalog, &fakeAlertSink{})
	analysis := NewAnalysisService(st)
	alerts := NewAlertEngine(cfg, st, &fakePusher{})
	sched := NewScheduler(cfg, collector, alerts, st, analysis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	if !sched.Running() {
		t.Fatal("scheduler should report running")
	}

	// Changing the interval swaps the collection job without stopping the
	// scheduler.
	interval := 30
	if _, err := cfg.Update(config.Patch{CollectInterval: &interval}); err != nil {
		t.Fatalf("config update failed: %v", err)
	}
	if !sched.Running() {
		t.Error("scheduler should still be running after a restart")
	}

	sched.Stop()
	if sched.Running() {
		t.Error("scheduler should report stopped")
	}
}
