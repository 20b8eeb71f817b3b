package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keymonitor/backend/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Game{}, &models.PriceRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return New(db)
}

func appendAt(t *testing.T, s *Store, gameID string, minPrice float64, at time.Time) {
	t.Helper()
	err := s.AppendSnapshot(&models.PriceRecord{
		GameID:      gameID,
		MinPrice:    minPrice,
		AvgPrice:    minPrice + 1,
		MaxPrice:    minPrice + 2,
		StockCount:  5,
		SellerCount: 3,
		RecordedAt:  at,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

func TestRegisterGamePartialUpsert(t *testing.T) {
	s := newTestStore(t)

	low := 19.99
	game, err := s.RegisterGame("g1", "Portal", &low)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !game.PushEnabled {
		t.Error("new games should default to push enabled")
	}
	if game.HistoryLowPrice == nil || *game.HistoryLowPrice != 19.99 {
		t.Errorf("history low not stored: %v", game.HistoryLowPrice)
	}

	// Re-registering without a history low must keep the existing one
	game, err = s.RegisterGame("g1", "Portal 2", nil)
	if err != nil {
		t.Fatalf("re-register failed: %v", err)
	}
	if game.Name != "Portal 2" {
		t.Errorf("name not updated: %q", game.Name)
	}
	if game.HistoryLowPrice == nil || *game.HistoryLowPrice != 19.99 {
		t.Errorf("history low lost on re-register: %v", game.HistoryLowPrice)
	}

	games, _ := s.ListGames()
	if len(games) != 1 {
		t.Errorf("re-register should not create a second game, got %d", len(games))
	}
}

func TestAppendSnapshotRejectsNonFiniteMin(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.AppendSnapshot(&models.PriceRecord{GameID: "g1", MinPrice: bad})
		if !errors.Is(err, ErrInvalidSnapshot) {
			t.Errorf("MinPrice=%v: expected ErrInvalidSnapshot, got %v", bad, err)
		}
	}
}

func TestAppendSnapshotDoesNotEnforcePriceOrdering(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)

	// Upstream data is recorded as reported, even when min > max
	err := s.AppendSnapshot(&models.PriceRecord{
		GameID: "g1", MinPrice: 20, AvgPrice: 10, MaxPrice: 5, RecordedAt: time.Now(),
	})
	if err != nil {
		t.Errorf("store should accept inconsistent upstream data: %v", err)
	}
}

func TestQuerySnapshotsOrdering(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt(t, s, "g1", 10, base)
	appendAt(t, s, "g1", 8, base.Add(10*time.Minute))
	appendAt(t, s, "g1", 12, base.Add(20*time.Minute))

	records, err := s.QuerySnapshots("g1", time.Time{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].RecordedAt.Before(records[i-1].RecordedAt) {
			t.Errorf("records out of order at index %d", i)
		}
	}
	if records[0].MinPrice != 10 || records[2].MinPrice != 12 {
		t.Errorf("insertion order not preserved: %v %v", records[0].MinPrice, records[2].MinPrice)
	}

	// Since-filter excludes records at or before the cutoff
	windowed, _ := s.QuerySnapshots("g1", base.Add(5*time.Minute))
	if len(windowed) != 2 {
		t.Errorf("expected 2 records after cutoff, got %d", len(windowed))
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)

	if rec, err := s.LatestSnapshot("g1"); err != nil || rec != nil {
		t.Errorf("empty series should yield nil, nil; got %v, %v", rec, err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	appendAt(t, s, "g1", 10, base)
	appendAt(t, s, "g1", 7, base.Add(time.Hour))

	rec, err := s.LatestSnapshot("g1")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if rec == nil || rec.MinPrice != 7 {
		t.Errorf("expected latest min 7, got %+v", rec)
	}
}

func TestPurgeOlderThanExactBoundary(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)
	s.RegisterGame("g2", "Half-Life", nil)

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendAt(t, s, "g1", 10, cutoff.Add(-time.Minute)) // purged
	appendAt(t, s, "g1", 11, cutoff)                   // kept: not strictly older
	appendAt(t, s, "g2", 12, cutoff.Add(-time.Hour))   // purged
	appendAt(t, s, "g2", 13, cutoff.Add(time.Hour))    // kept

	purged, err := s.PurgeOlderThan(cutoff)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged, got %d", purged)
	}

	g1, _ := s.QuerySnapshots("g1", time.Time{})
	g2, _ := s.QuerySnapshots("g2", time.Time{})
	if len(g1) != 1 || g1[0].MinPrice != 11 {
		t.Errorf("g1 survivor wrong: %+v", g1)
	}
	if len(g2) != 1 || g2[0].MinPrice != 13 {
		t.Errorf("g2 survivor wrong: %+v", g2)
	}
}

func TestDeleteGameCascades(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)
	s.RegisterGame("g2", "Half-Life", nil)
	appendAt(t, s, "g1", 10, time.Now())
	appendAt(t, s, "g2", 20, time.Now())

	if err := s.DeleteGame("g1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	games, _ := s.ListGames()
	if len(games) != 1 || games[0].ID != "g2" {
		t.Errorf("expected only g2 to remain, got %+v", games)
	}
	records, _ := s.QuerySnapshots("g1", time.Time{})
	if len(records) != 0 {
		t.Errorf("g1 records should cascade-delete, got %d", len(records))
	}
	if remaining, _ := s.QuerySnapshots("g2", time.Time{}); len(remaining) != 1 {
		t.Errorf("g2 records should be untouched, got %d", len(remaining))
	}
}

func TestSetHistoryLowAndPushEnabled(t *testing.T) {
	s := newTestStore(t)
	s.RegisterGame("g1", "Portal", nil)

	low := 4.5
	if err := s.SetHistoryLow("g1", &low); err != nil {
		t.Fatalf("set history low failed: %v", err)
	}
	game, _ := s.GetGame("g1")
	if game.HistoryLowPrice == nil || *game.HistoryLowPrice != 4.5 {
		t.Errorf("history low not set: %v", game.HistoryLowPrice)
	}

	if err := s.SetHistoryLow("g1", nil); err != nil {
		t.Fatalf("clear history low failed: %v", err)
	}
	game, _ = s.GetGame("g1")
	if game.HistoryLowPrice != nil {
		t.Errorf("history low not cleared: %v", game.HistoryLowPrice)
	}

	if err := s.SetPushEnabled("g1", false); err != nil {
		t.Fatalf("set push failed: %v", err)
	}
	game, _ = s.GetGame("g1")
	if game.PushEnabled {
		t.Error("push should be disabled")
	}

	if err := s.SetHistoryLow("missing", &low); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
	if err := s.SetPushEnabled("missing", true); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.RecordCount != 0 || stats.OldestRecord != nil || stats.NewestRecord != nil {
		t.Errorf("empty db stats wrong: %+v", stats)
	}

	s.RegisterGame("g1", "Portal", nil)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	appendAt(t, s, "g1", 10, first)
	appendAt(t, s, "g1", 11, last)

	stats, _ = s.Stats()
	if stats.RecordCount != 2 || stats.GameCount != 1 {
		t.Errorf("counts wrong: %+v", stats)
	}
	if stats.OldestRecord == nil || !stats.OldestRecord.Equal(first) {
		t.Errorf("oldest wrong: %v", stats.OldestRecord)
	}
	if stats.NewestRecord == nil || !stats.NewestRecord.Equal(last) {
		t.Errorf("newest wrong: %v", stats.NewestRecord)
	}
}
