package paystackwebhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bioshop-backend/pkg/redis"
)

const replayScope = "paystack-webhook"

// ReplayGuard marks deliveries in Redis so identical retries short-circuit.
type ReplayGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewReplayGuard(store redis.IdempotencyStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports true when the key was already marked.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, replayKey string) (bool, error) {
	if replayKey == "" {
		return false, errors.New("replay key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(replayScope, replayKey), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Release drops the mark so the provider's retry is processed again.
func (g *ReplayGuard) Release(ctx context.Context, replayKey string) error {
	if replayKey == "" {
		return errors.New("replay key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(replayScope, replayKey))
}

// PayloadHash is the hex sha256 of the raw body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ReplayKey identifies a delivery by event type and body digest.
func ReplayKey(eventType string, payloadHash string) string {
	return eventType + ":" + payloadHash
}
