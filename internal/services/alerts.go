package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/metrics"
	"github.com/keymonitor/backend/internal/store"
)

// Outcome reasons reported to callers of the notification paths. These stay
// distinct so the dashboard can tell "feature off" from "nothing to send"
// from "send failed".
const (
	OutcomeSent            = "sent"
	OutcomeDisabled        = "disabled"
	OutcomeNoEndpoints     = "no_endpoints"
	OutcomeNothingToReport = "nothing_to_report"
	OutcomeCooldown        = "cooldown"
	OutcomeDeliveryFailed  = "delivery_failed"
)

// NotifyOutcome is the result of one alert-engine dispatch decision.
type NotifyOutcome struct {
	Reason string      `json:"reason"`
	Result *PushResult `json:"result,omitempty"`
}

// Pusher delivers a formatted message to a set of push keys.
type Pusher interface {
	Push(ctx context.Context, title, content string, keys []string) PushResult
}

// AlertEngine evaluates collected snapshots against the configured alert
// rules and decides whether to notify. Cooldown and last-seen-price state is
// per game, in memory only: a process restart resets it, which can re-fire an
// alert shortly after boot. That matches the prior behavior and is accepted.
type AlertEngine struct {
	cfg    *config.Manager
	store  *store.Store
	pusher Pusher

	mu        sync.Mutex
	lastAlert map[string]time.Time
	lastMin   map[string]float64

	now func() time.Time
}

func NewAlertEngine(cfg *config.Manager, st *store.Store, pusher Pusher) *AlertEngine {
	return &AlertEngine{
		cfg:       cfg,
		store:     st,
		pusher:    pusher,
		lastAlert: make(map[string]time.Time),
		lastMin:   make(map[string]float64),
		now:       time.Now,
	}
}

// HandleSnapshot evaluates alert rules for a freshly collected snapshot.
// Fired rules are combined into a single notification; a game inside its
// cooldown window has the whole send dropped, not deferred.
func (e *AlertEngine) HandleSnapshot(gameID, name string, minPrice float64) {
	e.mu.Lock()
	prevMin, hadPrev := e.lastMin[gameID]
	e.lastMin[gameID] = minPrice
	e.mu.Unlock()

	cfg := e.cfg.Current()
	if !cfg.Pushme.Enabled {
		return
	}
	game, err := e.store.GetGame(gameID)
	if err != nil || !game.PushEnabled {
		return
	}

	var reasons []string
	if cfg.Pushme.HistoryLowAlert.Enabled && game.HistoryLowPrice != nil && minPrice <= *game.HistoryLowPrice {
		reasons = append(reasons,
			fmt.Sprintf("at or below history low: ¥%.2f (low ¥%.2f)", minPrice, *game.HistoryLowPrice))
	}
	if cfg.Pushme.PriceChangeAlert.Enabled && hadPrev && prevMin > 0 {
		change := (minPrice - prevMin) / prevMin * 100
		if drop := cfg.Pushme.PriceChangeAlert.DropPercent; drop > 0 && change <= -drop {
			reasons = append(reasons,
				fmt.Sprintf("dropped %.1f%%: ¥%.2f → ¥%.2f", -change, prevMin, minPrice))
		}
		if rise := cfg.Pushme.PriceChangeAlert.RisePercent; rise > 0 && change >= rise {
			reasons = append(reasons,
				fmt.Sprintf("rose %.1f%%: ¥%.2f → ¥%.2f", change, prevMin, minPrice))
		}
	}
	if len(reasons) == 0 {
		return
	}

	now := e.now()
	cooldown := time.Duration(cfg.Pushme.CooldownMinutes) * time.Minute
	e.mu.Lock()
	last, ok := e.lastAlert[gameID]
	if ok && now.Sub(last) < cooldown {
		e.mu.Unlock()
		metrics.AlertsSuppressedTotal.Inc()
		log.Printf("Alert engine: %s within cooldown, alert dropped", name)
		return
	}
	e.mu.Unlock()

	title := fmt.Sprintf("Price alert: %s", name)
	content := strings.Join(reasons, "\n")
	result := e.pusher.Push(context.Background(), title, content, cfg.Pushme.PushKeys)
	if result.Attempted == 0 {
		log.Printf("Alert engine: %s fired but no push keys configured", name)
		return
	}
	if result.Delivered() {
		e.mu.Lock()
		e.lastAlert[gameID] = now
		e.mu.Unlock()
		metrics.AlertsSentTotal.WithLabelValues("price").Inc()
		log.Printf("Alert engine: sent price alert for %s (%d/%d endpoints)",
			name, result.Succeeded, result.Attempted)
	} else {
		log.Printf("Alert engine: price alert for %s failed on all %d endpoints",
			name, result.Attempted)
	}
}

// HandleCollectionError notifies about a failed collection attempt. Error
// alerts bypass the per-game cooldown: a broken token or dead upstream should
// surface immediately even if a price alert just went out.
func (e *AlertEngine) HandleCollectionError(gameID, name string, cause error) {
	cfg := e.cfg.Current()
	if !cfg.Pushme.Enabled || !cfg.Pushme.ErrorAlert.Enabled {
		return
	}

	title := "Collection error"
	content := fmt.Sprintf("%s (%s): %v", name, gameID, cause)
	result := e.pusher.Push(context.Background(), title, content, cfg.Pushme.PushKeys)
	if result.Delivered() {
		metrics.AlertsSentTotal.WithLabelValues("error").Inc()
	}
}

// DailyReport summarizes the last 24 hours for every game with data and sends
// it as one message. Games without a snapshot in the window are skipped; if
// none qualify the notifier is not called at all and the caller gets a
// distinct nothing-to-report outcome.
func (e *AlertEngine) DailyReport(ctx context.Context) (NotifyOutcome, error) {
	cfg := e.cfg.Current()
	if !cfg.Pushme.Enabled || !cfg.Pushme.DailyReport.Enabled {
		return NotifyOutcome{Reason: OutcomeDisabled}, nil
	}
	if len(cfg.Pushme.PushKeys) == 0 {
		return NotifyOutcome{Reason: OutcomeNoEndpoints}, nil
	}

	games, err := e.store.ListGames()
	if err != nil {
		return NotifyOutcome{}, err
	}

	since := e.now().Add(-24 * time.Hour)
	var blocks []string
	for _, game := range games {
		records, err := e.store.QuerySnapshots(game.ID, since)
		if err != nil || len(records) == 0 {
			continue
		}
		low, high := records[0].MinPrice, records[0].MinPrice
		for _, r := range records {
			if r.MinPrice < low {
				low = r.MinPrice
			}
			if r.MinPrice > high {
				high = r.MinPrice
			}
		}
		latest := records[len(records)-1]
		blocks = append(blocks, fmt.Sprintf("%s\ncurrent ¥%.2f | 24h low ¥%.2f | 24h high ¥%.2f | %d samples",
			game.Name, latest.MinPrice, low, high, len(records)))
	}

	if len(blocks) == 0 {
		return NotifyOutcome{Reason: OutcomeNothingToReport}, nil
	}

	result := e.pusher.Push(ctx, "Daily price report", strings.Join(blocks, "\n\n"), cfg.Pushme.PushKeys)
	if !result.Delivered() {
		return NotifyOutcome{Reason: OutcomeDeliveryFailed, Result: &result}, nil
	}
	metrics.AlertsSentTotal.WithLabelValues("daily_report").Inc()
	return NotifyOutcome{Reason: OutcomeSent, Result: &result}, nil
}

// SendTest pushes a test message to the supplied keys, or to the configured
// keys when none are given. Used by the dashboard's settings page.
func (e *AlertEngine) SendTest(ctx context.Context, keys []string) NotifyOutcome {
	if len(keys) == 0 {
		keys = e.cfg.Current().Pushme.PushKeys
	}
	if len(keys) == 0 {
		return NotifyOutcome{Reason: OutcomeNoEndpoints}
	}

	result := e.pusher.Push(ctx, "Test notification",
		fmt.Sprintf("Push configuration works. Sent at %s.", e.now().Format("2006-01-02 15:04:05")), keys)
	if !result.Delivered() {
		return NotifyOutcome{Reason: OutcomeDeliveryFailed, Result: &result}
	}
	metrics.AlertsSentTotal.WithLabelValues("test").Inc()
	return NotifyOutcome{Reason: OutcomeSent, Result: &result}
}
