// internal/sequence/allocator.go

// Package sequence hands out monotonically increasing integer identities.
package sequence

import "context"

// Counter names used for lobby and player ids.
const (
	LobbyCounter  = "lobby:id:sequence"
	PlayerCounter = "player:id:sequence"
)

// Incrementer is an atomic, store-side increment.
type Incrementer interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Allocator is stateless; uniqueness comes from the store's atomic increment.
type Allocator struct {
	store Incrementer
}

func NewAllocator(store Incrementer) *Allocator {
	return &Allocator{store: store}
}

// Next returns the next value of the named counter, starting at 1.
// Store errors are returned as-is and are not retried.
func (a *Allocator) Next(ctx context.Context, counter string) (int64, error) {
	return a.store.Incr(ctx, counter)
}
