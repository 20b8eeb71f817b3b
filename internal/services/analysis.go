package services

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keymonitor/backend/internal/models"
	"github.com/keymonitor/backend/internal/store"
)

// periodDays maps the dashboard's symbolic lookback periods to days.
// "all" is unbounded.
var periodDays = map[string]int{
	"day":     1,
	"week":    7,
	"month":   30,
	"quarter": 90,
	"year":    365,
}

// PeriodCutoff resolves a symbolic period to its cutoff time relative to now.
// Unknown periods default to one day; "all" returns the zero time.
func PeriodCutoff(period string, now time.Time) time.Time {
	if period == "all" {
		return time.Time{}
	}
	days, ok := periodDays[period]
	if !ok {
		days = 1
	}
	return now.AddDate(0, 0, -days)
}

type cachedAnalysis struct {
	latestID uint
	gen      uint64
	resp     *models.AnalysisResponse
}

// AnalysisService computes read-only aggregates over the price series:
// window statistics, multi-resolution rollups, price distribution, and
// volatility. Results are cached per game; the cache entry is keyed to the
// newest record id so any append invalidates it, and a generation counter
// invalidates everything after purges and deletions.
type AnalysisService struct {
	store *store.Store
	cache *lru.Cache[string, cachedAnalysis]
	gen   atomic.Uint64

	now func() time.Time
}

func NewAnalysisService(st *store.Store) *AnalysisService {
	cache, _ := lru.New[string, cachedAnalysis](128)
	return &AnalysisService{
		store: st,
		cache: cache,
		now:   time.Now,
	}
}

// InvalidateAll drops every cached analysis. Called after retention cleanup
// and game deletion, which change history without producing a new record.
func (s *AnalysisService) InvalidateAll() {
	s.gen.Add(1)
}

// Stats summarizes min-price behavior over the lookback window. Returns nil
// when the game has no records in the window: no data, not zero-valued data.
func (s *AnalysisService) Stats(gameID, period string) (*models.PriceStats, error) {
	records, err := s.store.QuerySnapshots(gameID, PeriodCutoff(period, s.now()))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	stats := &models.PriceStats{
		LowestPrice:     records[0].MinPrice,
		HighestMinPrice: records[0].MinPrice,
		RecordCount:     len(records),
		FirstRecord:     records[0].RecordedAt,
		LastRecord:      records[len(records)-1].RecordedAt,
	}
	sumMin, sumAvg := 0.0, 0.0
	for _, r := range records {
		if r.MinPrice < stats.LowestPrice {
			stats.LowestPrice = r.MinPrice
		}
		if r.MinPrice > stats.HighestMinPrice {
			stats.HighestMinPrice = r.MinPrice
		}
		sumMin += r.MinPrice
		sumAvg += r.AvgPrice
	}
	stats.AvgMinPrice = sumMin / float64(len(records))
	stats.AvgPrice = sumAvg / float64(len(records))
	return stats, nil
}

// Latest returns the newest snapshot for a game, nil when none exists.
func (s *AnalysisService) Latest(gameID string) (*models.PriceRecord, error) {
	return s.store.LatestSnapshot(gameID)
}

// Analysis computes the full analysis payload for a game.
func (s *AnalysisService) Analysis(gameID string) (*models.AnalysisResponse, error) {
	latest, err := s.store.LatestSnapshot(gameID)
	if err != nil {
		return nil, err
	}
	gen := s.gen.Load()
	var latestID uint
	if latest != nil {
		latestID = latest.ID
	}
	if cached, ok := s.cache.Get(gameID); ok && cached.latestID == latestID && cached.gen == gen {
		return cached.resp, nil
	}

	all, err := s.store.QuerySnapshots(gameID, time.Time{})
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &models.AnalysisResponse{
		Hourly:       hourlyBuckets(filterSince(all, now.AddDate(0, 0, -1))),
		Daily:        dailyBuckets(filterSince(all, now.AddDate(0, 0, -30))),
		Weekly:       weeklyBuckets(filterSince(all, now.AddDate(0, 0, -84))),
		Monthly:      monthlyBuckets(filterSince(all, now.AddDate(0, 0, -365))),
		Distribution: histogram(all),
		Volatility:   volatility(all),
	}

	s.cache.Add(gameID, cachedAnalysis{latestID: latestID, gen: gen, resp: resp})
	return resp, nil
}

// filterSince assumes records sorted ascending by time.
func filterSince(records []models.PriceRecord, since time.Time) []models.PriceRecord {
	for i, r := range records {
		if r.RecordedAt.After(since) {
			return records[i:]
		}
	}
	return nil
}

// rollup groups already-sorted records into buckets keyed by label. Buckets
// come out in first-seen order, which is ascending because the input is.
func rollup(records []models.PriceRecord, label func(time.Time) string) ([]string, []models.RollupBucket) {
	type acc struct {
		sumMin, min, max    float64
		sumSellers, sumStok float64
		n                   int
	}
	var labels []string
	accs := make(map[string]*acc)

	for _, r := range records {
		key := label(r.RecordedAt)
		a, ok := accs[key]
		if !ok {
			a = &acc{min: r.MinPrice, max: r.MinPrice}
			accs[key] = a
			labels = append(labels, key)
		}
		if r.MinPrice < a.min {
			a.min = r.MinPrice
		}
		if r.MinPrice > a.max {
			a.max = r.MinPrice
		}
		a.sumMin += r.MinPrice
		a.sumSellers += float64(r.SellerCount)
		a.sumStok += float64(r.StockCount)
		a.n++
	}

	buckets := make([]models.RollupBucket, len(labels))
	for i, key := range labels {
		a := accs[key]
		buckets[i] = models.RollupBucket{
			Label:      key,
			AvgMin:     a.sumMin / float64(a.n),
			Min:        a.min,
			Max:        a.max,
			AvgSellers: a.sumSellers / float64(a.n),
			AvgStock:   a.sumStok / float64(a.n),
		}
	}
	return labels, buckets
}

func hourlyBuckets(records []models.PriceRecord) []models.HourlyBucket {
	labels, buckets := rollup(records, func(t time.Time) string {
		return t.Format("2006-01-02 15:00")
	})
	out := make([]models.HourlyBucket, len(buckets))
	for i := range buckets {
		buckets[i].AvgStock = 0
		out[i] = models.HourlyBucket{Hour: labels[i], RollupBucket: buckets[i]}
	}
	return out
}

func dailyBuckets(records []models.PriceRecord) []models.DailyBucket {
	labels, buckets := rollup(records, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
	out := make([]models.DailyBucket, len(buckets))
	for i := range buckets {
		out[i] = models.DailyBucket{Day: labels[i], RollupBucket: buckets[i]}
	}
	return out
}

func weeklyBuckets(records []models.PriceRecord) []models.WeeklyBucket {
	labels, buckets := rollup(records, func(t time.Time) string {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	})
	out := make([]models.WeeklyBucket, len(buckets))
	for i := range buckets {
		buckets[i].AvgStock = 0
		out[i] = models.WeeklyBucket{Week: labels[i], RollupBucket: buckets[i]}
	}
	return out
}

func monthlyBuckets(records []models.PriceRecord) []models.MonthlyBucket {
	labels, buckets := rollup(records, func(t time.Time) string {
		return t.Format("2006-01")
	})
	out := make([]models.MonthlyBucket, len(buckets))
	for i := range buckets {
		buckets[i].AvgStock = 0
		out[i] = models.MonthlyBucket{Month: labels[i], RollupBucket: buckets[i]}
	}
	return out
}

// histogramBands are half-open: a price lands in the first band whose upper
// bound it is strictly below, so exactly 5.00 belongs to "5-10".
var histogramBands = []struct {
	upper float64
	label string
}{
	{5, "0-5"},
	{10, "5-10"},
	{20, "10-20"},
	{50, "20-50"},
}

func histogram(records []models.PriceRecord) []models.HistogramBucket {
	counts := make(map[string]int)
	for _, r := range records {
		label := "50+"
		for _, band := range histogramBands {
			if r.MinPrice < band.upper {
				label = band.label
				break
			}
		}
		counts[label]++
	}

	var out []models.HistogramBucket
	for _, band := range histogramBands {
		if n := counts[band.label]; n > 0 {
			out = append(out, models.HistogramBucket{PriceRange: band.label, Count: n})
		}
	}
	if n := counts["50+"]; n > 0 {
		out = append(out, models.HistogramBucket{PriceRange: "50+", Count: n})
	}
	return out
}

func volatility(records []models.PriceRecord) *models.Volatility {
	if len(records) == 0 {
		return nil
	}
	v := &models.Volatility{
		Min:   records[0].MinPrice,
		Max:   records[0].MinPrice,
		Count: len(records),
	}
	sum := 0.0
	for _, r := range records {
		if r.MinPrice < v.Min {
			v.Min = r.MinPrice
		}
		if r.MinPrice > v.Max {
			v.Max = r.MinPrice
		}
		sum += r.MinPrice
	}
	v.Mean = sum / float64(len(records))
	v.Range = v.Max - v.Min
	return v
}
