// internal/ratelimit/limiter.go

// Package ratelimit throttles lobby creation per client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const keyPrefix = "pending:lobbies:"

// Defaults used when the limiter is built with zero values.
const (
	DefaultCeiling = 5
	DefaultWindow  = 300 * time.Second
)

// CounterStore is the subset of the key-value store the limiter needs.
type CounterStore interface {
	IncrWithin(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
}

// Limiter counts pending lobbies per client key within an expiry window.
// It holds no state of its own.
type Limiter struct {
	store   CounterStore
	ceiling int64
	window  time.Duration
	log     logrus.FieldLogger
}

func NewLimiter(store CounterStore, ceiling int, window time.Duration, log logrus.FieldLogger) *Limiter {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, ceiling: int64(ceiling), window: window, log: log}
}

// Key is the store key holding the counter for clientKey.
func Key(clientKey string) string {
	return keyPrefix + clientKey
}

// Admit charges one unit against clientKey. Over the ceiling the charge is
// handed back and false is returned. Concurrent callers may briefly observe
// the over-count before the compensating decrement lands.
func (l *Limiter) Admit(ctx context.Context, clientKey string) (bool, error) {
	key := Key(clientKey)
	n, err := l.store.IncrWithin(ctx, key, l.window)
	if err != nil {
		return false, fmt.Errorf("rate limit charge: %w", err)
	}
	if n > l.ceiling {
		if _, err := l.store.Decr(ctx, key); err != nil {
			return false, fmt.Errorf("rate limit refund: %w", err)
		}
		l.log.WithFields(logrus.Fields{
			"client":  clientKey,
			"ceiling": l.ceiling,
		}).Info("lobby creation rate limited")
		return false, nil
	}
	return true, nil
}
