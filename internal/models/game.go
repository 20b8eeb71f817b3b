package models

import (
	"time"
)

// Game is a tracked marketplace listing whose key price history is recorded.
// The ID is the external catalog identifier, not something we generate.
type Game struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name" gorm:"not null"`
	HistoryLowPrice *float64  `json:"history_low_price"`
	PushEnabled     bool      `json:"push_enabled" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at"`
}

// PriceRecord is one point-in-time summary of a game's market listings.
// Records are append-only; they are removed only by retention cleanup or
// when their game is deleted.
type PriceRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GameID      string    `json:"game_id" gorm:"not null;index:idx_price_game_time"`
	MinPrice    float64   `json:"min_price" gorm:"not null"`
	AvgPrice    float64   `json:"avg_price"`
	MaxPrice    float64   `json:"max_price"`
	StockCount  int       `json:"stock_count"`
	SellerCount int       `json:"seller_count"`
	RecordedAt  time.Time `json:"recorded_at" gorm:"index:idx_price_game_time"`
}

// PriceStats summarizes min-price behavior over a lookback window.
type PriceStats struct {
	LowestPrice     float64   `json:"lowest_price"`
	HighestMinPrice float64   `json:"highest_min_price"`
	AvgMinPrice     float64   `json:"avg_min_price"`
	AvgPrice        float64   `json:"avg_price"`
	RecordCount     int       `json:"record_count"`
	FirstRecord     time.Time `json:"first_record"`
	LastRecord      time.Time `json:"last_record"`
}

// StatsResponse is the API response for GET /api/stats/:id.
type StatsResponse struct {
	Stats  *PriceStats  `json:"stats"`
	Latest *PriceRecord `json:"latest"`
}

// DBStats describes the state of the price database for the dashboard.
type DBStats struct {
	RecordCount       int64      `json:"recordCount"`
	GameCount         int64      `json:"gameCount"`
	OldestRecord      *time.Time `json:"oldestRecord"`
	NewestRecord      *time.Time `json:"newestRecord"`
	FileSizeKB        int64      `json:"fileSizeKB"`
	DataRetentionDays int        `json:"dataRetentionDays"`
}
