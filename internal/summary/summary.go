// Package summary maintains the dashboard counters shown next to the main
// navigation. Counters are computed by a background job and cached in Redis
// so page loads never touch the order tables.
package summary

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/odyssey-erp/freshline/internal/shared"
)

// Counters is one snapshot of the dashboard badges.
type Counters struct {
	PendingRegistrations int64     `json:"pending_registrations"`
	UnreadMessages       int64     `json:"unread_messages"`
	OpenPurchaseOrders   int64     `json:"open_purchase_orders"`
	ShortfallItems       int64     `json:"shortfall_items"`
	RefreshedAt          time.Time `json:"refreshed_at"`
}

// Fields lists the counters by metric name.
func (c Counters) Fields() map[string]int64 {
	return map[string]int64{
		"pending_registrations": c.PendingRegistrations,
		"unread_messages":       c.UnreadMessages,
		"open_purchase_orders":  c.OpenPurchaseOrders,
		"shortfall_items":       c.ShortfallItems,
	}
}

// CountSource reads the record-store counters in one round trip.
type CountSource interface {
	Counts(ctx context.Context) (Counters, error)
}

// ShortfallCounter reports how many stock items are below minimum.
type ShortfallCounter interface {
	Count(ctx context.Context) (int, error)
}

// Store caches the latest snapshot. Load returns shared.ErrNotFound when
// nothing is cached or the entry expired.
type Store interface {
	Save(ctx context.Context, c Counters) error
	Load(ctx context.Context) (Counters, error)
}

// Service computes and serves counters.
type Service struct {
	source    CountSource
	shortfall ShortfallCounter
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the service. shortfall may be nil.
func NewService(source CountSource, shortfall ShortfallCounter, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:    source,
		shortfall: shortfall,
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Compute gathers a fresh snapshot without caching it.
func (s *Service) Compute(ctx context.Context) (Counters, error) {
	counters, err := s.source.Counts(ctx)
	if err != nil {
		return Counters{}, err
	}
	if s.shortfall != nil {
		n, err := s.shortfall.Count(ctx)
		if err != nil {
			return Counters{}, err
		}
		counters.ShortfallItems = int64(n)
	}
	counters.RefreshedAt = s.now()
	return counters, nil
}

// Refresh recomputes the snapshot and writes it to the cache.
func (s *Service) Refresh(ctx context.Context) (Counters, error) {
	counters, err := s.Compute(ctx)
	if err != nil {
		return Counters{}, err
	}
	if err := s.store.Save(ctx, counters); err != nil {
		return Counters{}, shared.Storage("cache summary counters", err)
	}
	return counters, nil
}

// Current serves the cached snapshot, refreshing it on a miss. A broken cache
// degrades to a live computation.
func (s *Service) Current(ctx context.Context) (Counters, error) {
	counters, err := s.store.Load(ctx)
	if err == nil {
		return counters, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return s.Refresh(ctx)
	}
	s.logger.Warn("summary cache unavailable", slog.Any("error", err))
	return s.Compute(ctx)
}
