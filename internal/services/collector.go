package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/keymonitor/backend/internal/metrics"
	"github.com/keymonitor/backend/internal/models"
	"github.com/keymonitor/backend/internal/store"
)

// Catalog is the read-only marketplace listing source.
type Catalog interface {
	FetchListings(ctx context.Context, gameID string) ([]Listing, error)
}

// AlertSink receives collection outcomes for alert evaluation.
type AlertSink interface {
	HandleSnapshot(gameID, name string, minPrice float64)
	HandleCollectionError(gameID, name string, cause error)
}

// Collector fetches a game's current listings, reduces them to a snapshot,
// stores it, and hands the result to the alert engine.
type Collector struct {
	store   *store.Store
	catalog Catalog
	alerts  AlertSink
}

func NewCollector(st *store.Store, catalog Catalog, alerts AlertSink) *Collector {
	return &Collector{
		store:   st,
		catalog: catalog,
		alerts:  alerts,
	}
}

// reduce collapses a page of listings into snapshot aggregates.
func reduce(listings []Listing) (minPrice, avgPrice, maxPrice float64, stockCount int) {
	minPrice = listings[0].KeyPrice
	maxPrice = listings[0].KeyPrice
	sum := 0.0
	for _, l := range listings {
		if l.KeyPrice < minPrice {
			minPrice = l.KeyPrice
		}
		if l.KeyPrice > maxPrice {
			maxPrice = l.KeyPrice
		}
		sum += l.KeyPrice
		stockCount += l.Stock
	}
	avgPrice = sum / float64(len(listings))
	return minPrice, avgPrice, maxPrice, stockCount
}

// Collect runs one collection attempt for a game.
//
// Outcomes: a stored snapshot; ErrEmptyListing (nothing on the market, no
// snapshot, no alert); or a wrapped ErrCatalogUnavailable (no snapshot,
// error-alert path). There is no retry here: the next scheduled cycle is the
// retry.
func (c *Collector) Collect(ctx context.Context, gameID string) (*models.PriceRecord, error) {
	game, err := c.store.GetGame(gameID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	listings, err := c.catalog.FetchListings(ctx, gameID)
	metrics.CollectionDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, ErrEmptyListing) {
		metrics.CollectionsTotal.WithLabelValues("empty").Inc()
		log.Printf("Collector: %s (%s): no listings", game.Name, gameID)
		return nil, err
	}
	if err != nil {
		metrics.CollectionsTotal.WithLabelValues("error").Inc()
		log.Printf("Collector: %s (%s): fetch failed: %v", game.Name, gameID, err)
		c.alerts.HandleCollectionError(gameID, game.Name, err)
		return nil, err
	}

	minPrice, avgPrice, maxPrice, stockCount := reduce(listings)
	rec := &models.PriceRecord{
		GameID:      gameID,
		MinPrice:    minPrice,
		AvgPrice:    avgPrice,
		MaxPrice:    maxPrice,
		StockCount:  stockCount,
		SellerCount: len(listings),
		RecordedAt:  time.Now(),
	}
	if err := c.store.AppendSnapshot(rec); err != nil {
		metrics.CollectionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.CollectionsTotal.WithLabelValues("ok").Inc()
	metrics.SnapshotsTotal.Inc()
	log.Printf("Collector: %s (%s): min %.2f avg %.2f max %.2f, %d sellers",
		game.Name, gameID, minPrice, avgPrice, maxPrice, len(listings))

	c.alerts.HandleSnapshot(gameID, game.Name, minPrice)
	return rec, nil
}

// CollectAll collects every tracked game in sequence. A failing game never
// stops the rest of the cycle; the first error is returned for logging only.
func (c *Collector) CollectAll(ctx context.Context) error {
	games, err := c.store.ListGames()
	if err != nil {
		return err
	}

	var firstErr error
	for _, game := range games {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := c.Collect(ctx, game.ID); err != nil && !errors.Is(err, ErrEmptyListing) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
