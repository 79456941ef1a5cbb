package domain

import (
	"context"
	"time"
)

// ContractCache provides fast contract metadata lookups. Entries are
// invalidated by post-commit continuations after a settlement mutates the
// contract, so readers may briefly observe stale data but never dirty data.
type ContractCache interface {
	Set(ctx context.Context, contract Contract) error
	Get(ctx context.Context, id string) (Contract, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of committed settlement events to
// interested consumers (the WebSocket hub, cache revalidators).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
