package models

// RollupBucket is a fixed-width time bucket of price records. Label format
// depends on the resolution: "2006-01-02 15:00" for hourly, "2006-01-02" for
// daily, "2006-W02" for weekly, "2006-01" for monthly.
type RollupBucket struct {
	Label      string  `json:"-"`
	AvgMin     float64 `json:"avg_min"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	AvgSellers float64 `json:"avg_sellers"`
	AvgStock   float64 `json:"avg_stock,omitempty"`
}

// HourlyBucket through MonthlyBucket exist so the JSON key carrying a bucket's
// label matches the resolution it was computed at, as the dashboard expects.
type HourlyBucket struct {
	Hour string `json:"hour"`
	RollupBucket
}

type DailyBucket struct {
	Day string `json:"day"`
	RollupBucket
}

type WeeklyBucket struct {
	Week string `json:"week"`
	RollupBucket
}

type MonthlyBucket struct {
	Month string `json:"month"`
	RollupBucket
}

// HistogramBucket counts all-time min prices falling in a half-open band.
type HistogramBucket struct {
	PriceRange string `json:"price_range"`
	Count      int    `json:"count"`
}

// Volatility summarizes all-time min-price spread.
type Volatility struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Range float64 `json:"range"`
	Count int     `json:"count"`
}

// AnalysisResponse is the API response for GET /api/analysis/:id.
type AnalysisResponse struct {
	Hourly       []HourlyBucket    `json:"hourly"`
	Daily        []DailyBucket     `json:"daily"`
	Weekly       []WeeklyBucket    `json:"weekly"`
	Monthly      []MonthlyBucket   `json:"monthly"`
	Distribution []HistogramBucket `json:"distribution"`
	Volatility   *Volatility       `json:"volatility"`
}
