// internal/cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// ErrConflict is returned by SwapHash when the guarded field no longer holds the expected value.
var ErrConflict = errors.New("guarded field changed")

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a Redis client and pings it with a 5 second timeout.
func Connect(opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// incrIfExists bumps a hash field only when the hash is still present, so an
// expired record is never recreated as a lone counter without a TTL.
var incrIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

// incrWithin bumps a counter and arms its window whenever it has none, so a
// counter can never be left without an expiry.
var incrWithin = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// updateIfExists sets hash fields and re-arms the TTL only when the hash is still
// present and, if ARGV[2] names a guard field, that field still equals ARGV[3].
// ARGV[1] is the TTL in milliseconds, the rest are field/value pairs.
// Returns 1 on success, 0 when the key is missing, -1 when the guard failed.
var updateIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if ARGV[2] ~= '' and redis.call('HGET', KEYS[1], ARGV[2]) ~= ARGV[3] then
	return -1
end
for i = 4, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// Store exposes the handful of Redis primitives the lobby service relies on.
// It is safe for concurrent use.
type Store struct {
	rdb redis.UniversalClient
}

// NewStore wraps an existing client.
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Incr atomically increments key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// IncrWithin increments key and, in the same step, arms ttl if the key has no
// expiry yet. A running window is left alone.
func (s *Store) IncrWithin(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrWithin.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s within %s: %w", key, ttl, err)
	}
	return n, nil
}

// Decr atomically decrements key and returns the new value.
func (s *Store) Decr(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("decr %s: %w", key, err)
	}
	return n, nil
}

// Expire (re)arms the TTL of key. A missing key is not an error.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or ErrNotFound.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("pttl %s: %w", key, err)
	}
	// -2 means missing; -1 means no expiry, reported as zero.
	if d == -2 {
		return 0, ErrNotFound
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// PutHash writes the full field set of key and arms its TTL in one transaction.
// values is anything HSET accepts: a map or a struct with redis tags.
func (s *Store) PutHash(ctx context.Context, key string, values any, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put hash %s: %w", key, err)
	}
	return nil
}

// UpdateHash sets fields on an existing hash and re-arms its TTL.
// Returns ErrNotFound when the key is gone.
func (s *Store) UpdateHash(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	return s.updateHash(ctx, key, "", "", fields, ttl)
}

// SwapHash is UpdateHash guarded by field == expected, checked atomically with the write.
// Returns ErrNotFound when the key is gone and ErrConflict when the guard fails.
func (s *Store) SwapHash(ctx context.Context, key, field, expected string, fields map[string]any, ttl time.Duration) error {
	if field == "" {
		return errors.New("swap hash: guard field is required")
	}
	return s.updateHash(ctx, key, field, expected, fields, ttl)
}

func (s *Store) updateHash(ctx context.Context, key, guardField, guardValue string, fields map[string]any, ttl time.Duration) error {
	args := make([]any, 0, 3+2*len(fields))
	args = append(args, ttl.Milliseconds(), guardField, guardValue)
	for k, v := range fields {
		args = append(args, k, v)
	}
	res, err := updateIfExists.Run(ctx, s.rdb, []string{key}, args...).Int64()
	if err != nil {
		return fmt.Errorf("update hash %s: %w", key, err)
	}
	switch res {
	case 0:
		return ErrNotFound
	case -1:
		return ErrConflict
	}
	return nil
}

// IncrHashField atomically adds delta to a field of an existing hash.
// Returns ErrNotFound when the key is gone.
func (s *Store) IncrHashField(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := incrIfExists.Run(ctx, s.rdb, []string{key}, field, delta).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incr hash field %s.%s: %w", key, field, err)
	}
	return n, nil
}

// ScanHash loads key into dst, a struct pointer with redis tags, or returns ErrNotFound.
func (s *Store) ScanHash(ctx context.Context, key string, dst any) error {
	cmd := s.rdb.HGetAll(ctx, key)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("get hash %s: %w", key, err)
	}
	if len(cmd.Val()) == 0 {
		return ErrNotFound
	}
	if err := cmd.Scan(dst); err != nil {
		return fmt.Errorf("scan hash %s: %w", key, err)
	}
	return nil
}

// AddToSet adds member to the set at key and re-arms the set's TTL.
func (s *Store) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, member)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add to set %s: %w", key, err)
	}
	return nil
}

// SetMembers lists the members of the set at key. A missing set is empty.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("set members %s: %w", key, err)
	}
	return members, nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}
