package services

import (
	"testing"
	"time"

	"github.com/keymonitor/backend/internal/store"
)

func newTestAnalysis(t *testing.T) (*AnalysisService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	if _, err := st.RegisterGame("g1", "Portal", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	svc := NewAnalysisService(st)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc, st
}

func TestStatsWindow(t *testing.T) {
	svc, st := newTestAnalysis(t)
	now := svc.now()

	for i, p := range []float64{10, 8, 12, 6} {
		appendRecord(t, st, "g1", p, now.Add(time.Duration(-4+i)*time.Hour))
	}

	stats, err := svc.Stats("g1", "day")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats == nil {
		t.Fatal("expected stats, got nil")
	}
	if stats.LowestPrice != 6 {
		t.Errorf("lowest: expected 6, got %v", stats.LowestPrice)
	}
	if stats.HighestMinPrice != 12 {
		t.Errorf("highest: expected 12, got %v", stats.HighestMinPrice)
	}
	if stats.RecordCount != 4 {
		t.Errorf("count: expected 4, got %d", stats.RecordCount)
	}
	if stats.AvgMinPrice != 9 {
		t.Errorf("avg min: expected 9, got %v", stats.AvgMinPrice)
	}
}

func TestStatsEmptyWindowIsNoData(t *testing.T) {
	svc, st := newTestAnalysis(t)

	// Data exists, but outside the one-day window
	appendRecord(t, st, "g1", 10, svc.now().AddDate(0, 0, -3))

	stats, err := svc.Stats("g1", "day")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats != nil {
		t.Errorf("empty window must be nil, not zero-valued: %+v", stats)
	}

	// The wider window still sees it
	stats, _ = svc.Stats("g1", "week")
	if stats == nil || stats.RecordCount != 1 {
		t.Errorf("week window should see the record: %+v", stats)
	}
}

func TestHistogramHalfOpenBounds(t *testing.T) {
	svc, st := newTestAnalysis(t)
	now := svc.now()

	// 5.00 must land in [5,10), not [0,5)
	for _, p := range []float64{4.99, 5.00, 9.99, 10, 19.5, 50, 120} {
		appendRecord(t, st, "g1", p, now.Add(-time.Hour))
	}

	resp, err := svc.Analysis("g1")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	counts := make(map[string]int)
	for _, b := range resp.Distribution {
		counts[b.PriceRange] = b.Count
	}
	if counts["0-5"] != 1 {
		t.Errorf("[0,5): expected 1, got %d", counts["0-5"])
	}
	if counts["5-10"] != 2 {
		t.Errorf("[5,10): expected 2 (5.00 and 9.99), got %d", counts["5-10"])
	}
	if counts["10-20"] != 2 {
		t.Errorf("[10,20): expected 2, got %d", counts["10-20"])
	}
	if counts["20-50"] != 0 {
		t.Errorf("[20,50): expected 0, got %d", counts["20-50"])
	}
	if counts["50+"] != 2 {
		t.Errorf("[50,inf): expected 2 (50 and 120), got %d", counts["50+"])
	}
}

func TestVolatility(t *testing.T) {
	svc, st := newTestAnalysis(t)

	resp, err := svc.Analysis("g1")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if resp.Volatility != nil {
		t.Errorf("no data must yield nil volatility, got %+v", resp.Volatility)
	}

	now := svc.now()
	for _, p := range []float64{10, 14, 12} {
		appendRecord(t, st, "g1", p, now.Add(-time.Hour))
	}

	resp, _ = svc.Analysis("g1")
	v := resp.Volatility
	if v == nil {
		t.Fatal("expected volatility")
	}
	if v.Min != 10 || v.Max != 14 || v.Range != 4 || v.Count != 3 {
		t.Errorf("volatility wrong: %+v", v)
	}
	if v.Mean != 12 {
		t.Errorf("mean: expected 12, got %v", v.Mean)
	}
}

func TestHourlyRollupBuckets(t *testing.T) {
	svc, st := newTestAnalysis(t)
	now := svc.now()

	// Two records in one hour, one in the next
	h1 := time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC)
	appendRecord(t, st, "g1", 10, h1)
	appendRecord(t, st, "g1", 14, h1.Add(20*time.Minute))
	appendRecord(t, st, "g1", 20, h1.Add(time.Hour))
	// Outside the 24h hourly window
	appendRecord(t, st, "g1", 99, now.AddDate(0, 0, -2))

	resp, err := svc.Analysis("g1")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(resp.Hourly) != 2 {
		t.Fatalf("expected 2 hourly buckets, got %d", len(resp.Hourly))
	}

	first := resp.Hourly[0]
	if first.Hour != "2026-03-10 09:00" {
		t.Errorf("bucket label wrong: %q", first.Hour)
	}
	if first.AvgMin != 12 || first.Min != 10 || first.Max != 14 {
		t.Errorf("bucket aggregates wrong: %+v", first)
	}
	if resp.Hourly[1].Hour != "2026-03-10 10:00" {
		t.Errorf("second bucket label wrong: %q", resp.Hourly[1].Hour)
	}
}

func TestRollupWindows(t *testing.T) {
	svc, st := newTestAnalysis(t)
	now := svc.now()

	appendRecord(t, st, "g1", 10, now.AddDate(0, 0, -400)) // outside monthly window
	appendRecord(t, st, "g1", 11, now.AddDate(0, 0, -100)) // monthly only
	appendRecord(t, st, "g1", 12, now.AddDate(0, 0, -40))  // weekly + monthly
	appendRecord(t, st, "g1", 13, now.AddDate(0, 0, -10))  // daily + weekly + monthly

	resp, err := svc.Analysis("g1")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(resp.Hourly) != 0 {
		t.Errorf("hourly should be empty, got %d buckets", len(resp.Hourly))
	}
	if len(resp.Daily) != 1 {
		t.Errorf("daily: expected 1 bucket, got %d", len(resp.Daily))
	}
	if len(resp.Weekly) != 2 {
		t.Errorf("weekly: expected 2 buckets, got %d", len(resp.Weekly))
	}
	if len(resp.Monthly) != 3 {
		t.Errorf("monthly: expected 3 buckets, got %d", len(resp.Monthly))
	}
	// All-time aggregates still see everything
	if resp.Volatility.Count != 4 {
		t.Errorf("volatility should cover all records, got %d", resp.Volatility.Count)
	}
}

func TestAnalysisCacheInvalidation(t *testing.T) {
	svc, st := newTestAnalysis(t)
	now := svc.now()

	appendRecord(t, st, "g1", 10, now.Add(-time.Hour))
	resp1, _ := svc.Analysis("g1")
	resp2, _ := svc.Analysis("g1")
	if resp1 != resp2 {
		t.Error("unchanged series should return the cached response")
	}

	appendRecord(t, st, "g1", 11, now.Add(-30*time.Minute))
	resp3, _ := svc.Analysis("g1")
	if resp3 == resp1 {
		t.Error("append must invalidate the cached response")
	}
	if resp3.Volatility.Count != 2 {
		t.Errorf("fresh response should see both records, got %d", resp3.Volatility.Count)
	}

	svc.InvalidateAll()
	resp4, _ := svc.Analysis("g1")
	if resp4 == resp3 {
		t.Error("InvalidateAll must drop cached responses")
	}
}
