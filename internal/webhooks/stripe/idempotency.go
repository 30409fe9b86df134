package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"

	defaultLease = 2 * time.Minute
)

// IdempotencyGuard is the redis fast path in front of the durable event
// ledger. An event is claimed with a short lease while it is processed and
// kept for ttl once done; a crashed worker's lease simply expires.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	lease := defaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		lease: lease,
		scope: scope,
	}, nil
}

// Claim reports whether the caller now owns eventID. False means the event is
// done or another delivery is processing it.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.key(eventID), stateProcessing, g.lease)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return claimed, nil
}

// Complete records eventID as processed for the guard's ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.key(eventID), stateDone, g.ttl); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim so a failed event can be redelivered.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.key(eventID))
}

// Processing reports whether eventID is claimed but not yet done.
func (g *IdempotencyGuard) Processing(ctx context.Context, eventID string) (bool, error) {
	state, err := g.store.Get(ctx, g.key(eventID))
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state == stateProcessing, nil
}

func (g *IdempotencyGuard) key(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}
