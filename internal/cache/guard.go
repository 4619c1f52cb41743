// Package cache implements cache-aside reads over Redis.  A miss is
// repopulated by at most one caller at a time: the caller that wins a
// short-lived SET NX lock loads from the primary store and fills the
// cache while the others back off and re-read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/retry"
)

// ErrCacheUnavailable is returned when the repopulation lock stayed taken
// for every attempt.  It matches model.ErrTransient.
var ErrCacheUnavailable = fmt.Errorf("%w: cache repopulation in progress", model.ErrTransient)

// errLockHeld signals a retryable attempt inside the guard loop.
var errLockHeld = errors.New("lock held by another caller")

// releaseScript deletes the lock only if it still holds our token, so a
// holder whose lock expired never removes the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// populateScript writes the value only while the key's generation is the
// one read before loading.  Invalidate bumps the generation, so a loader
// that raced an invalidation never caches what it read.
var populateScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then gen = "" end
if gen ~= ARGV[1] then
    return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Loader reads the authoritative value from the primary store.
type Loader func(ctx context.Context) ([]byte, error)

// Guard is a cache-aside reader.  A nil Redis client (or a disabled
// cache) turns every read into a direct Loader call.
type Guard struct {
	rdb      *redis.Client
	cfg      config.CacheConfig
	log      *zap.Logger
	strategy retry.Strategy
	newToken func() string
}

// NewGuard returns a Guard using rdb.  rdb may be nil.
func NewGuard(rdb *redis.Client, cfg config.CacheConfig, log *zap.Logger) *Guard {
	if !cfg.Enabled {
		rdb = nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		rdb: rdb,
		cfg: cfg,
		log: log.With(zap.String("component", "cache")),
		strategy: retry.Strategy{
			Attempts: cfg.LockAttempts,
			Delay:    cfg.LockBackoff,
			Backoff:  2,
		},
		newToken: uuid.NewString,
	}
}

func (g *Guard) key(k string) string {
	if g.cfg.Prefix == "" {
		return k
	}
	return g.cfg.Prefix + ":" + k
}

func (g *Guard) lockKey(k string) string {
	if g.cfg.Prefix == "" {
		return "lock:" + k
	}
	return g.cfg.Prefix + ":lock:" + k
}

func (g *Guard) genKey(k string) string {
	if g.cfg.Prefix == "" {
		return "gen:" + k
	}
	return g.cfg.Prefix + ":gen:" + k
}

// generation returns the current generation of key, "" if none was
// recorded yet.
func (g *Guard) generation(ctx context.Context, key string) (string, error) {
	gen, err := g.rdb.Get(ctx, g.genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// GetOrLoad returns the cached value for key or repopulates it with load.
// Loader errors are returned unchanged and nothing is cached.  When Redis
// fails the value is loaded directly; the result is never stale data from
// a failed write.  A value loaded while the key was invalidated is
// returned to the caller but not cached.
func (g *Guard) GetOrLoad(ctx context.Context, key string, load Loader) ([]byte, error) {
	if g.rdb == nil {
		return load(ctx)
	}
	full, lock := g.key(key), g.lockKey(key)

	var (
		out      []byte
		loadErr  error
		redisErr error
	)
	err := g.strategy.Do(ctx, func(ctx context.Context, attempt int) error {
		val, err := g.rdb.Get(ctx, full).Bytes()
		if err == nil {
			out = val
			return nil
		}
		if !errors.Is(err, redis.Nil) {
			redisErr = err
			return retry.Permanent(err)
		}

		token := g.newToken()
		ok, err := g.rdb.SetNX(ctx, lock, token, g.cfg.LockTTL).Result()
		if err != nil {
			redisErr = err
			return retry.Permanent(err)
		}
		if !ok {
			g.log.Debug("lock busy", zap.String("key", full), zap.Int("attempt", attempt))
			return errLockHeld
		}
		defer g.release(ctx, lock, token)

		// Another holder may have filled the key between our GET and SET NX.
		if val, err := g.rdb.Get(ctx, full).Bytes(); err == nil {
			out = val
			return nil
		}

		gen, err := g.generation(ctx, key)
		if err != nil {
			redisErr = err
			return retry.Permanent(err)
		}

		val, err = load(ctx)
		if err != nil {
			loadErr = err
			return retry.Permanent(err)
		}
		out = val
		written, err := populateScript.Run(ctx, g.rdb, []string{full, g.genKey(key)},
			gen, val, g.cfg.TTL.Milliseconds()).Int()
		switch {
		case err != nil:
			g.log.Warn("cache set failed", zap.String("key", full), zap.Error(err))
		case written == 0:
			g.log.Debug("invalidated during load, not caching", zap.String("key", full))
		}
		return nil
	})

	switch {
	case err == nil:
		return out, nil
	case loadErr != nil:
		return nil, loadErr
	case redisErr != nil:
		g.log.Warn("redis unavailable, reading primary store", zap.String("key", full), zap.Error(redisErr))
		return load(ctx)
	case errors.Is(err, model.ErrExhaustedRetries):
		g.log.Warn("cache lock not acquired", zap.String("key", full), zap.Int("attempts", g.strategy.Attempts))
		return nil, fmt.Errorf("%w: %s", ErrCacheUnavailable, key)
	default:
		return nil, err
	}
}

// release runs even when ctx is already cancelled so the lock is not left
// behind until it expires.
func (g *Guard) release(ctx context.Context, lock, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, g.rdb, []string{lock}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		g.log.Warn("lock release failed", zap.String("lock", lock), zap.Error(err))
	}
}

// Invalidate deletes keys and bumps their generation so loads already in
// flight do not write them back.  It is a no-op without Redis.
func (g *Guard) Invalidate(ctx context.Context, keys ...string) error {
	if g.rdb == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = g.key(k)
	}
	// The generation must outlive any loader that may still hold the lock.
	genTTL := g.cfg.TTL + g.cfg.LockTTL
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		for _, k := range keys {
			pipe.Incr(ctx, g.genKey(k))
			pipe.PExpire(ctx, g.genKey(k), genTTL)
		}
		return nil
	})
	if err != nil {
		g.log.Warn("cache invalidation failed", zap.Strings("keys", full), zap.Error(err))
		return err
	}
	return nil
}

// Ping reports whether Redis answers.
func (g *Guard) Ping(ctx context.Context) error {
	if g.rdb == nil {
		return errors.New("cache disabled")
	}
	return g.rdb.Ping(ctx).Err()
}

// GetOrLoadJSON is GetOrLoad for JSON-encoded values.  A cached entry
// that no longer decodes is dropped and the value is loaded directly.
func GetOrLoadJSON[T any](ctx context.Context, g *Guard, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := g.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		g.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = g.Invalidate(ctx, key)
		return load(ctx)
	}
	return out, nil
}
