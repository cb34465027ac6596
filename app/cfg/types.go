package cfg

import "time"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	QueueLocal = "local"
	QueueRedis = "redis"
)

type Cfg struct {
	// Feed configuration
	FeedsFile       string
	PollInterval    time.Duration
	PollConcurrency int
	PollTimeout     time.Duration
	UserAgent       string

	// Storage and fan-out
	Store             string
	DBPath            string
	RedisAddr         string
	Queue             string
	PersistValidators bool

	// HTTP server
	Port         string
	APIAccessKey string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// UsesRedis reports whether any backend needs a Redis connection.
func (c *Cfg) UsesRedis() bool {
	return c.Store == StoreRedis || c.Queue == QueueRedis
}
