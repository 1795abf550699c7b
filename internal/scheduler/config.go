package scheduler

import (
	"time"
)

// Config controls how the migration sweep is scheduled. The sweep interval
// itself lives in the tiering policy so it hot-reloads with the rest of it.
type Config struct {
	JobTimeout time.Duration
	LockKey    string
	LockTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 10 * time.Minute,
		LockKey:    "stratum:migration:lock",
		LockTTL:    15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
