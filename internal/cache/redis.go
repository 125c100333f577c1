package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/querykeys"
)

const (
	DefaultRedisPrefix = "dashboard:respcache:"
	redisScanCount     = 256
)

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Clock     clock.Clock
}

// RedisStore keeps entries in Redis with native expiry. It is a storage
// backend only: instances sharing a Redis see each other's entries but
// nothing coordinates their invalidations.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.Clock)
}

func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, clk clock.Clock) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, clock: clock.OrReal(clk)}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if r == nil || r.client == nil {
		return Entry{}, false, ErrNotInitialized
	}
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	if entry.Expired(r.clock.Now()) {
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, entry Entry) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = r.clock.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+entry.Key, data, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisStore) DeleteMatching(ctx context.Context, prefixes []string) (int, error) {
	if r == nil || r.client == nil {
		return 0, ErrNotInitialized
	}
	removed := 0
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		pattern := globEscape(r.prefix) + "*|u=" + globEscape(prefix) + "*"
		n, err := r.deleteScan(ctx, pattern, func(key string) bool {
			return querykeys.Matches(pathFromKey(key), prefix)
		})
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Sweep is a no-op: Redis expires keys itself.
func (r *RedisStore) Sweep(context.Context) (int, error) {
	if r == nil || r.client == nil {
		return 0, ErrNotInitialized
	}
	return 0, nil
}

func (r *RedisStore) Purge(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	_, err := r.deleteScan(ctx, globEscape(r.prefix)+"*", nil)
	return err
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	if r == nil || r.client == nil {
		return 0, ErrNotInitialized
	}
	count := 0
	iter := r.client.Scan(ctx, 0, globEscape(r.prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisStore) deleteScan(ctx context.Context, pattern string, keep func(string) bool) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		if keep != nil && !keep(strings.TrimPrefix(full, r.prefix)) {
			continue
		}
		if err := r.client.Del(ctx, full).Err(); err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

// pathFromKey extracts the u= segment of a key built by ComposeKey.
func pathFromKey(key string) string {
	start := strings.Index(key, "|u=")
	if start < 0 {
		return ""
	}
	rest := key[start+3:]
	end := strings.LastIndex(rest, "|p=")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

func globEscape(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			builder.WriteByte('\\')
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
