package config

import (
	"fmt"
	"time"
)

func timeParse(s string) (time.Time, error) {
	return time.Parse("15:04", s)
}

// Patch is a partial configuration update from PUT /api/config. Every field is
// optional; absent fields leave the current value untouched. Independent
// fields validate and apply independently, so one bad value does not discard
// the rest of the request.
type Patch struct {
	AccessToken       *string      `json:"accessToken"`
	CollectInterval   *int         `json:"collectInterval"`
	DataRetentionDays *int         `json:"dataRetentionDays"`
	APIHost           *string      `json:"apiHost"`
	APIPath           *string      `json:"apiPath"`
	Pushme            *PushmePatch `json:"pushme"`
}

type PushmePatch struct {
	Enabled          *bool                  `json:"enabled"`
	PushKeys         *[]string              `json:"pushKeys"`
	CooldownMinutes  *int                   `json:"cooldownMinutes"`
	HistoryLowAlert  *TogglePatch           `json:"historyLowAlert"`
	PriceChangeAlert *PriceChangeAlertPatch `json:"priceChangeAlert"`
	DailyReport      *DailyReportPatch      `json:"dailyReport"`
	ErrorAlert       *TogglePatch           `json:"errorAlert"`
}

type TogglePatch struct {
	Enabled *bool `json:"enabled"`
}

type PriceChangeAlertPatch struct {
	Enabled     *bool    `json:"enabled"`
	DropPercent *float64 `json:"dropPercent"`
	RisePercent *float64 `json:"risePercent"`
}

type DailyReportPatch struct {
	Enabled *bool   `json:"enabled"`
	Time    *string `json:"time"`
}

// UpdateResult reports which parts of a patch were rejected. Applied remains
// true when at least one field changed.
type UpdateResult struct {
	Applied  bool     `json:"applied"`
	Rejected []string `json:"rejected,omitempty"`
}

// Update validates the patch field by field, applies the valid subset as a new
// configuration version, persists it, and notifies subscribers. Rejected
// fields are reported by name with a reason.
func (m *Manager) Update(p Patch) (UpdateResult, error) {
	m.mu.Lock()

	old := m.current
	next := old
	var res UpdateResult

	if p.AccessToken != nil {
		switch {
		case IsMasked(*p.AccessToken):
			res.Rejected = append(res.Rejected, "accessToken: masked value not accepted")
		case len(*p.AccessToken) <= 10:
			res.Rejected = append(res.Rejected, "accessToken: too short")
		default:
			next.AccessToken = *p.AccessToken
		}
	}
	if p.CollectInterval != nil {
		if v := *p.CollectInterval; v < MinCollectInterval || v > MaxCollectInterval {
			res.Rejected = append(res.Rejected,
				fmt.Sprintf("collectInterval: must be %d-%d", MinCollectInterval, MaxCollectInterval))
		} else {
			next.CollectInterval = v
		}
	}
	if p.DataRetentionDays != nil {
		if v := *p.DataRetentionDays; v < MinDataRetentionDays || v > MaxDataRetentionDays {
			res.Rejected = append(res.Rejected,
				fmt.Sprintf("dataRetentionDays: must be %d-%d", MinDataRetentionDays, MaxDataRetentionDays))
		} else {
			next.DataRetentionDays = v
		}
	}
	if p.APIHost != nil {
		if *p.APIHost == "" {
			res.Rejected = append(res.Rejected, "apiHost: must not be empty")
		} else {
			next.APIHost = *p.APIHost
		}
	}
	if p.APIPath != nil {
		if *p.APIPath == "" {
			res.Rejected = append(res.Rejected, "apiPath: must not be empty")
		} else {
			next.APIPath = *p.APIPath
		}
	}
	if p.Pushme != nil {
		applyPushmePatch(&next.Pushme, p.Pushme, &res)
	}

	changed := !equal(old, next)
	if changed {
		if err := m.persist(next); err != nil {
			m.mu.Unlock()
			return res, fmt.Errorf("failed to persist config: %w", err)
		}
		m.current = next
		m.version++
	}
	listeners := m.listeners
	m.mu.Unlock()

	res.Applied = changed
	if changed {
		for _, l := range listeners {
			l(old, next)
		}
	}
	return res, nil
}

func applyPushmePatch(cfg *PushmeConfig, p *PushmePatch, res *UpdateResult) {
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	if p.PushKeys != nil {
		keys := make([]string, 0, len(*p.PushKeys))
		ok := true
		for _, k := range *p.PushKeys {
			if k == "" {
				continue
			}
			if IsMasked(k) {
				res.Rejected = append(res.Rejected, "pushme.pushKeys: masked value not accepted")
				ok = false
				break
			}
			keys = append(keys, k)
		}
		if ok {
			cfg.PushKeys = keys
		}
	}
	if p.CooldownMinutes != nil {
		if *p.CooldownMinutes < 1 {
			res.Rejected = append(res.Rejected, "pushme.cooldownMinutes: must be >= 1")
		} else {
			cfg.CooldownMinutes = *p.CooldownMinutes
		}
	}
	if p.HistoryLowAlert != nil && p.HistoryLowAlert.Enabled != nil {
		cfg.HistoryLowAlert.Enabled = *p.HistoryLowAlert.Enabled
	}
	if p.PriceChangeAlert != nil {
		if p.PriceChangeAlert.Enabled != nil {
			cfg.PriceChangeAlert.Enabled = *p.PriceChangeAlert.Enabled
		}
		if p.PriceChangeAlert.DropPercent != nil {
			if v := *p.PriceChangeAlert.DropPercent; v < 0 || v > 100 {
				res.Rejected = append(res.Rejected, "pushme.priceChangeAlert.dropPercent: must be 0-100")
			} else {
				cfg.PriceChangeAlert.DropPercent = v
			}
		}
		if p.PriceChangeAlert.RisePercent != nil {
			if v := *p.PriceChangeAlert.RisePercent; v < 0 || v > 100 {
				res.Rejected = append(res.Rejected, "pushme.priceChangeAlert.risePercent: must be 0-100")
			} else {
				cfg.PriceChangeAlert.RisePercent = v
			}
		}
	}
	if p.DailyReport != nil {
		if p.DailyReport.Enabled != nil {
			cfg.DailyReport.Enabled = *p.DailyReport.Enabled
		}
		if p.DailyReport.Time != nil {
			if _, err := timeParse(*p.DailyReport.Time); err != nil {
				res.Rejected = append(res.Rejected, "pushme.dailyReport.time: must be HH:MM")
			} else {
				cfg.DailyReport.Time = *p.DailyReport.Time
			}
		}
	}
	if p.ErrorAlert != nil && p.ErrorAlert.Enabled != nil {
		cfg.ErrorAlert.Enabled = *p.ErrorAlert.Enabled
	}
}

// equal compares two configs including push key contents. Config contains a
// slice, so == is not usable directly.
func equal(a, b Config) bool {
	ak, bk := a.Pushme.PushKeys, b.Pushme.PushKeys
	if len(ak) != len(bk) {
		return false
	}
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	a.Pushme.PushKeys = nil
	b.Pushme.PushKeys = nil
	return a == b
}
