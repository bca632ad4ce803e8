package cache

import (
	"context"
	"time"

	"tillpoint/internal/domain"
)

// SettlementCache is a read-through shortcut for idempotent settlement
// replays. The store remains authoritative; a miss or a cache error is
// never fatal.
type SettlementCache interface {
	GetSettlement(ctx context.Context, idempotencyKey string) (*domain.SettlementResult, bool)
	PutSettlement(ctx context.Context, idempotencyKey string, result *domain.SettlementResult, ttl time.Duration)
	Close() error
}

// Noop is used when no redis address is configured; every lookup
// misses and falls through to the store.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) GetSettlement(context.Context, string) (*domain.SettlementResult, bool) {
	return nil, false
}

func (*Noop) PutSettlement(context.Context, string, *domain.SettlementResult, time.Duration) {}

func (*Noop) Close() error { return nil }
