// internal/cache/cachetest/cachetest.go

// Package cachetest spins up an in-process Redis for package tests.
package cachetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/lobbyd/internal/cache"
	"github.com/redis/go-redis/v9"
)

// New starts a miniredis server bound to t's lifetime and returns a Store talking to it
// through the real go-redis client.
func New(t testing.TB) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewStore(rdb), mr
}
