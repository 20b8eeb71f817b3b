package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/models"
	"github.com/keymonitor/backend/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
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
	return store.New(db)
}

func appendRecord(t *testing.T, s *store.Store, gameID string, minPrice float64, at time.Time) {
	t.Helper()
	err := s.AppendSnapshot(&models.PriceRecord{
		GameID:      gameID,
		MinPrice:    minPrice,
		AvgPrice:    minPrice + 1,
		MaxPrice:    minPrice + 2,
		StockCount:  10,
		SellerCount: 4,
		RecordedAt:  at,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

// alertTestConfig returns a manager with pushme fully enabled and one key.
func alertTestConfig() *config.Manager {
	cfg := config.Default()
	cfg.Pushme.Enabled = true
	cfg.Pushme.PushKeys = []string{"test-push-key-1234"}
	cfg.Pushme.CooldownMinutes = 60
	cfg.Pushme.HistoryLowAlert.Enabled = true
	cfg.Pushme.DailyReport.Enabled = true
	return config.NewManager(cfg)
}

func zeroTime() time.Time { return time.Time{} }

// rebuildManager wraps an edited config copy in a fresh in-memory manager.
func rebuildManager(c config.Config) *config.Manager {
	return config.NewManager(c)
}

type pushCall struct {
	title   string
	content string
	keys    []string
}

// fakePusher records dispatches and can simulate total delivery failure.
type fakePusher struct {
	calls []pushCall
	fail  bool
}

func (f *fakePusher) Push(ctx context.Context, title, content string, keys []string) PushResult {
	f.calls = append(f.calls, pushCall{title: title, content: content, keys: keys})
	result := PushResult{Attempted: len(keys)}
	if !f.fail {
		result.Succeeded = len(keys)
	}
	return result
}
