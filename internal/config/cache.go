package config

import (
	"time"

	"github.com/spf13/viper"
)

// CacheConfig defines settings for the cache-aside guard.  When Enabled
// is false or no Redis client is configured, reads go straight to the
// primary store.  TTL is the lifetime of cached values; LockTTL bounds
// how long a crashed repopulating process can block others.  A caller
// that finds the lock taken retries up to LockAttempts times, waiting
// LockBackoff and doubling between attempts.
type CacheConfig struct {
	Enabled      bool
	Prefix       string
	TTL          time.Duration
	LockTTL      time.Duration
	LockAttempts int
	LockBackoff  time.Duration
}

func loadCacheConfig(v *viper.Viper) CacheConfig {
	c := CacheConfig{
		Enabled:      v.GetBool("CACHE_ENABLED"),
		Prefix:       v.GetString("CACHE_PREFIX"),
		TTL:          v.GetDuration("CACHE_TTL"),
		LockTTL:      v.GetDuration("CACHE_LOCK_TTL"),
		LockAttempts: v.GetInt("CACHE_LOCK_ATTEMPTS"),
		LockBackoff:  v.GetDuration("CACHE_LOCK_BACKOFF"),
	}
	if c.TTL <= 0 {
		c.TTL = time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.LockAttempts < 1 {
		c.LockAttempts = 1
	}
	return c
}
