package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

var (
	ErrInvalidPollInterval    = errors.New("poll interval must be positive")
	ErrInvalidPollConcurrency = errors.New("poll concurrency must be positive")
	ErrInvalidPollTimeout     = errors.New("poll timeout must be positive")
	ErrUnknownStore           = errors.New("unknown store backend")
	ErrUnknownQueue           = errors.New("unknown queue backend")
	ErrRedisAddrRequired      = errors.New("redis address is required for redis backends")
	ErrDBPathRequired         = errors.New("database path is required for the sqlite store")
)

type rawCfg struct {
	// Feed configuration
	FeedsFile       string `long:"feeds-file" env:"FEEDS_FILE" default:"./feeds.yml" description:"YAML file listing the feeds to track"`
	PollInterval    int    `long:"poll-interval" env:"POLL_INTERVAL" default:"600" description:"Seconds for one full pass over all feeds"`
	PollConcurrency int    `long:"poll-concurrency" env:"POLL_CONCURRENCY" default:"4" description:"Maximum number of feeds polled at once"`
	PollTimeout     int    `long:"poll-timeout" env:"POLL_TIMEOUT" default:"30" description:"Per-request timeout in seconds"`
	UserAgent       string `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests (default: feedwatch/<version>)"`

	// Storage and fan-out
	Store             string `long:"store" env:"STORE" default:"memory" description:"Seen-item store backend (memory, sqlite, redis)"`
	DBPath            string `long:"db-path" env:"DB_PATH" default:"./feedwatch.db" description:"SQLite database file"`
	RedisAddr         string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the redis store and queue"`
	Queue             string `long:"queue" env:"QUEUE" default:"local" description:"Event fan-out backend (local, redis)"`
	PersistValidators bool   `long:"persist-validators" env:"PERSIST_VALIDATORS" description:"Keep ETag/Last-Modified in the durable store"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args and the environment. It returns nil, nil when help was
// requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.Name = "feedwatch serve"

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		FeedsFile:         raw.FeedsFile,
		PollInterval:      time.Duration(raw.PollInterval) * time.Second,
		PollConcurrency:   raw.PollConcurrency,
		PollTimeout:       time.Duration(raw.PollTimeout) * time.Second,
		UserAgent:         cmp.Or(raw.UserAgent, "feedwatch/"+GetVersion()),
		Store:             raw.Store,
		DBPath:            raw.DBPath,
		RedisAddr:         raw.RedisAddr,
		Queue:             raw.Queue,
		PersistValidators: raw.PersistValidators,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.PollConcurrency <= 0 {
		return ErrInvalidPollConcurrency
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidPollTimeout
	}

	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if c.DBPath == "" {
			return ErrDBPathRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}

	switch c.Queue {
	case QueueLocal, QueueRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQueue, c.Queue)
	}

	if c.UsesRedis() && c.RedisAddr == "" {
		return ErrRedisAddrRequired
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
