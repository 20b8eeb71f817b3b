package store

import (
	"errors"
	"math"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/keymonitor/backend/internal/models"
)

// ErrInvalidSnapshot is returned when a snapshot arrives without a usable
// minimum price. Min/avg/max ordering is deliberately not checked: upstream
// data is recorded as reported.
var ErrInvalidSnapshot = errors.New("invalid snapshot: min price missing or not finite")

// ErrGameNotFound is returned by lookups and per-game updates for unknown ids.
var ErrGameNotFound = errors.New("game not found")

// Store is the append-only price-series store plus the registry of tracked
// games. All mutating methods have committed to sqlite before returning.
type Store struct {
	db *gorm.DB

	// Serializes snapshot appends per game so a scheduled collection and a
	// manual one for the same game cannot interleave rows. Appends for
	// different games proceed independently.
	mu        sync.Mutex
	gameLocks map[string]*sync.Mutex
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		gameLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) gameLock(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.gameLocks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.gameLocks[gameID] = l
	}
	return l
}

// RegisterGame upserts a tracked game. The name is always written; the
// history-low price is written only when the caller supplies one, so
// re-registering a game never clears an operator-set history low. Push alerts
// default to enabled for new games.
func (s *Store) RegisterGame(id, name string, historyLow *float64) (*models.Game, error) {
	var game models.Game
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.First(&game, "id = ?", id)
		switch {
		case res.Error == nil:
			game.Name = name
			if historyLow != nil {
				game.HistoryLowPrice = historyLow
			}
			return tx.Save(&game).Error
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			game = models.Game{
				ID:              id,
				Name:            name,
				HistoryLowPrice: historyLow,
				PushEnabled:     true,
				CreatedAt:       time.Now(),
			}
			return tx.Create(&game).Error
		default:
			return res.Error
		}
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// DeleteGame removes a game and all of its price records.
func (s *Store) DeleteGame(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("game_id = ?", id).Delete(&models.PriceRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Game{}, "id = ?", id).Error
	})
}

// ListGames returns all tracked games ordered by creation time.
func (s *Store) ListGames() ([]models.Game, error) {
	var games []models.Game
	if err := s.db.Order("created_at ASC").Find(&games).Error; err != nil {
		return nil, err
	}
	return games, nil
}

// GetGame returns a single tracked game or ErrGameNotFound.
func (s *Store) GetGame(id string) (*models.Game, error) {
	var game models.Game
	if err := s.db.First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return &game, nil
}

// AppendSnapshot records one collected price snapshot for a game.
func (s *Store) AppendSnapshot(rec *models.PriceRecord) error {
	if math.IsNaN(rec.MinPrice) || math.IsInf(rec.MinPrice, 0) {
		return ErrInvalidSnapshot
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	l := s.gameLock(rec.GameID)
	l.Lock()
	defer l.Unlock()
	return s.db.Create(rec).Error
}

// QuerySnapshots returns a game's records newer than since, oldest first.
// A zero since returns everything.
func (s *Store) QuerySnapshots(gameID string, since time.Time) ([]models.PriceRecord, error) {
	var records []models.PriceRecord
	q := s.db.Where("game_id = ?", gameID)
	if !since.IsZero() {
		q = q.Where("recorded_at > ?", since)
	}
	if err := q.Order("recorded_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// LatestSnapshot returns the most recent record for a game, or nil when the
// game has no records yet.
func (s *Store) LatestSnapshot(gameID string) (*models.PriceRecord, error) {
	var rec models.PriceRecord
	err := s.db.Where("game_id = ?", gameID).Order("recorded_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PurgeOlderThan deletes records strictly older than cutoff across all games
// and returns how many rows were removed.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("recorded_at < ?", cutoff).Delete(&models.PriceRecord{})
	return res.RowsAffected, res.Error
}

// SetHistoryLow sets or clears (nil) a game's history-low reference price.
func (s *Store) SetHistoryLow(gameID string, price *float64) error {
	res := s.db.Model(&models.Game{}).Where("id = ?", gameID).Update("history_low_price", price)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGameNotFound
	}
	return nil
}

// SetPushEnabled toggles alert notifications for a game.
func (s *Store) SetPushEnabled(gameID string, enabled bool) error {
	res := s.db.Model(&models.Game{}).Where("id = ?", gameID).Update("push_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGameNotFound
	}
	return nil
}

// Stats summarizes the database for the dashboard's storage panel.
func (s *Store) Stats() (*models.DBStats, error) {
	var stats models.DBStats
	if err := s.db.Model(&models.PriceRecord{}).Count(&stats.RecordCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Game{}).Count(&stats.GameCount).Error; err != nil {
		return nil, err
	}
	if stats.RecordCount > 0 {
		var oldest, newest models.PriceRecord
		if err := s.db.Order("recorded_at ASC").First(&oldest).Error; err == nil {
			stats.OldestRecord = &oldest.RecordedAt
		}
		if err := s.db.Order("recorded_at DESC").First(&newest).Error; err == nil {
			stats.NewestRecord = &newest.RecordedAt
		}
	}
	return &stats, nil
}
