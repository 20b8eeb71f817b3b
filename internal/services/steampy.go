package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/metrics"
)

const (
	catalogPageSize       = 100
	catalogRequestTimeout = 30 * time.Second
	catalogUserAgent      = "APPAPK"
)

// ErrCatalogUnavailable wraps transport, timeout, and parse failures talking
// to the marketplace. Distinct from ErrEmptyListing: only this error feeds the
// error-alert path.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrEmptyListing means the catalog answered but reported no sellable keys.
// Not an error condition; the game simply has nothing on the market right now.
var ErrEmptyListing = errors.New("no listings available")

// Listing is one marketplace offer for a game key.
type Listing struct {
	KeyPrice float64 `json:"keyPrice"`
	Stock    int     `json:"stock"`
}

type listingEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  struct {
		Content []Listing `json:"content"`
	} `json:"result"`
}

// SteampyService fetches current key listings from the steampy marketplace.
// Requests are paced with a shared limiter so batch collection cycles cannot
// hammer the upstream API.
type SteampyService struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     *config.Manager

	// baseURL overrides the host and path from config when set. Tests point
	// this at a local server.
	baseURL string
}

func NewSteampyService(cfg *config.Manager) *SteampyService {
	return &SteampyService{
		client: &http.Client{
			Timeout: catalogRequestTimeout,
		},
		// One request per second with a small burst covers both the periodic
		// cycle and on-demand collections without tripping upstream limits.
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		cfg:     cfg,
	}
}

// FetchListings returns the cheapest page of current listings for a game,
// sorted ascending by key price. Returns ErrEmptyListing when the catalog has
// nothing to sell and ErrCatalogUnavailable for transport or decode failures.
func (s *SteampyService) FetchListings(ctx context.Context, gameID string) ([]Listing, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	cfg := s.cfg.Current()
	params := url.Values{}
	params.Set("gameId", gameID)
	params.Set("pageNumber", "1")
	params.Set("pageSize", fmt.Sprintf("%d", catalogPageSize))
	params.Set("sort", "keyPrice")
	params.Set("order", "asc")

	base := s.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s%s", cfg.APIHost, cfg.APIPath)
	}
	reqURL := fmt.Sprintf("%s?%s", base, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	req.Header.Set("User-Agent", catalogUserAgent)
	if cfg.AccessToken != "" {
		req.Header.Set("accessToken", cfg.AccessToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: reading response: %v", ErrCatalogUnavailable, err)
	}

	var envelope listingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: non-JSON response (status %d)", ErrCatalogUnavailable, resp.StatusCode)
	}

	metrics.CatalogRequestsTotal.WithLabelValues("ok").Inc()

	if !envelope.Success || len(envelope.Result.Content) == 0 {
		return nil, ErrEmptyListing
	}
	return envelope.Result.Content, nil
}
