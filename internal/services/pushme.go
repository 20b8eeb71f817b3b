package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keymonitor/backend/internal/metrics"
)

const (
	defaultPushURL     = "https://push.i-i.me/"
	pushRequestTimeout = 10 * time.Second
)

// PushDelivery is the outcome of one endpoint's delivery attempt. The key is
// reported in masked form so results are safe to log or return to the
// dashboard.
type PushDelivery struct {
	Key     string `json:"key"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushResult aggregates a dispatch across all endpoints. The dispatch counts
// as delivered when at least one endpoint succeeded.
type PushResult struct {
	MessageID string         `json:"message_id"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Results   []PushDelivery `json:"results,omitempty"`
}

// Delivered reports whether at least one endpoint accepted the message.
func (r PushResult) Delivered() bool {
	return r.Succeeded > 0
}

// PushmeService delivers notifications to pushme push-key endpoints.
type PushmeService struct {
	client  *http.Client
	baseURL string
}

func NewPushmeService() *PushmeService {
	return NewPushmeServiceWithURL(defaultPushURL)
}

func NewPushmeServiceWithURL(baseURL string) *PushmeService {
	return &PushmeService{
		client: &http.Client{
			Timeout: pushRequestTimeout,
		},
		baseURL: baseURL,
	}
}

// Push sends one message to every key in sequence. A failing key never skips
// the keys after it; per-key outcomes are collected in the result. Zero keys
// yields Attempted == 0, which callers must report as its own reason rather
// than a silent no-op.
func (s *PushmeService) Push(ctx context.Context, title, content string, keys []string) PushResult {
	result := PushResult{MessageID: uuid.New().String()}

	for _, key := range keys {
		result.Attempted++
		delivery := PushDelivery{Key: maskKey(key)}
		if err := s.pushOne(ctx, key, title, content); err != nil {
			delivery.Error = err.Error()
			metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
			log.Printf("Pushme: delivery to %s failed: %v", delivery.Key, err)
		} else {
			delivery.Success = true
			result.Succeeded++
			metrics.PushDeliveriesTotal.WithLabelValues("ok").Inc()
		}
		result.Results = append(result.Results, delivery)
	}
	return result
}

func (s *PushmeService) pushOne(ctx context.Context, key, title, content string) error {
	form := url.Values{}
	form.Set("push_key", key)
	form.Set("title", title)
	form.Set("content", content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "***" + key
	}
	return "***" + key[len(key)-4:]
}
