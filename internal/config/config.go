package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCollectInterval   = 10
	DefaultDataRetentionDays = 365
	DefaultCooldownMinutes   = 60
	DefaultReportTime        = "20:00"
	DefaultAPIHost           = "steampy.com"
	DefaultAPIPath           = "/xboot/steamKeySale/listSale"

	MinCollectInterval   = 1
	MaxCollectInterval   = 1440
	MinDataRetentionDays = 1
	MaxDataRetentionDays = 365
)

// Config is one immutable version of the process configuration. Callers get a
// copy from Manager.Current and must not mutate shared slices in place.
type Config struct {
	AccessToken       string       `yaml:"accessToken" json:"accessToken"`
	CollectInterval   int          `yaml:"collectInterval" json:"collectInterval"`
	DataRetentionDays int          `yaml:"dataRetentionDays" json:"dataRetentionDays"`
	APIHost           string       `yaml:"apiHost" json:"apiHost"`
	APIPath           string       `yaml:"apiPath" json:"apiPath"`
	Pushme            PushmeConfig `yaml:"pushme" json:"pushme"`
}

// PushmeConfig holds the notification settings for the pushme gateway.
type PushmeConfig struct {
	Enabled          bool                   `yaml:"enabled" json:"enabled"`
	PushKeys         []string               `yaml:"pushKeys" json:"pushKeys"`
	CooldownMinutes  int                    `yaml:"cooldownMinutes" json:"cooldownMinutes"`
	HistoryLowAlert  ToggleConfig           `yaml:"historyLowAlert" json:"historyLowAlert"`
	PriceChangeAlert PriceChangeAlertConfig `yaml:"priceChangeAlert" json:"priceChangeAlert"`
	DailyReport      DailyReportConfig      `yaml:"dailyReport" json:"dailyReport"`
	ErrorAlert       ToggleConfig           `yaml:"errorAlert" json:"errorAlert"`
}

type ToggleConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type PriceChangeAlertConfig struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	DropPercent float64 `yaml:"dropPercent" json:"dropPercent"`
	RisePercent float64 `yaml:"risePercent" json:"risePercent"`
}

type DailyReportConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Time    string `yaml:"time" json:"time"`
}

// Default returns the configuration used when no file exists yet.
func Default() Config {
	return Config{
		CollectInterval:   DefaultCollectInterval,
		DataRetentionDays: DefaultDataRetentionDays,
		APIHost:           DefaultAPIHost,
		APIPath:           DefaultAPIPath,
		Pushme: PushmeConfig{
			CooldownMinutes: DefaultCooldownMinutes,
			DailyReport:     DailyReportConfig{Time: DefaultReportTime},
			ErrorAlert:      ToggleConfig{Enabled: true},
		},
	}
}

// ReportTime parses the daily-report time of day, falling back to the default
// when the stored value is malformed.
func (c Config) ReportTime() (hour, minute int) {
	t, err := time.Parse("15:04", c.Pushme.DailyReport.Time)
	if err != nil {
		t, _ = time.Parse("15:04", DefaultReportTime)
	}
	return t.Hour(), t.Minute()
}

// ChangeListener is invoked after a new configuration version is installed.
type ChangeListener func(old, updated Config)

// Manager owns the current configuration version and its on-disk copy.
// Updates install a fresh immutable snapshot; readers never see a partially
// applied patch.
type Manager struct {
	mu        sync.RWMutex
	current   Config
	version   int
	path      string
	listeners []ChangeListener
}

// NewManager wraps a fixed configuration with no backing file. Updates apply
// in memory only.
func NewManager(c Config) *Manager {
	return &Manager{current: sanitize(c)}
}

// Load reads the yaml config file at path, creating it with defaults when
// missing. A corrupt file is replaced with defaults rather than failing boot.
func Load(path string) (*Manager, error) {
	m := &Manager{path: path, current: Default()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := m.persist(m.current); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %s is not valid yaml, using defaults: %v\n", path, err)
		cfg = Default()
	}
	cfg = sanitize(cfg)
	m.current = cfg
	return m, nil
}

// sanitize clamps out-of-range persisted values back to defaults so a
// hand-edited file cannot wedge the scheduler.
func sanitize(c Config) Config {
	if c.CollectInterval < MinCollectInterval || c.CollectInterval > MaxCollectInterval {
		c.CollectInterval = DefaultCollectInterval
	}
	if c.DataRetentionDays < MinDataRetentionDays || c.DataRetentionDays > MaxDataRetentionDays {
		c.DataRetentionDays = DefaultDataRetentionDays
	}
	if c.Pushme.CooldownMinutes <= 0 {
		c.Pushme.CooldownMinutes = DefaultCooldownMinutes
	}
	if c.APIHost == "" {
		c.APIHost = DefaultAPIHost
	}
	if c.APIPath == "" {
		c.APIPath = DefaultAPIPath
	}
	if _, err := time.Parse("15:04", c.Pushme.DailyReport.Time); err != nil {
		c.Pushme.DailyReport.Time = DefaultReportTime
	}
	return c
}

// Current returns the active configuration version.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Version returns a counter bumped on every successful update.
func (m *Manager) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Subscribe registers a listener called after each configuration change.
// Listeners run synchronously during Update, outside the manager lock.
func (m *Manager) Subscribe(l ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) persist(c Config) error {
	if m.path == "" {
		return nil
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o600)
}

// maskSuffix replaces all but the last n characters of s with "***".
func maskSuffix(s string, n int) string {
	if s == "" {
		return ""
	}
	if len(s) <= n {
		return "***" + s
	}
	return "***" + s[len(s)-n:]
}

// IsMasked reports whether a value still carries the display mask marker.
// Masked values echoed back by the dashboard must never be stored.
func IsMasked(s string) bool {
	return strings.Contains(s, "*")
}

// Redacted returns a copy of the current config safe to display: the access
// token keeps only its trailing six characters and push keys their trailing
// four. The masked form is display-only and is rejected if submitted back.
func (m *Manager) Redacted() Config {
	c := m.Current()
	c.AccessToken = maskSuffix(c.AccessToken, 6)
	keys := make([]string, len(c.Pushme.PushKeys))
	for i, k := range c.Pushme.PushKeys {
		keys[i] = maskSuffix(k, 4)
	}
	c.Pushme.PushKeys = keys
	return c
}
