package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/feedwatch/app/feed"
)

const (
	seenFeedsKey       = "feeds.seen"
	fingerprintsPrefix = "feeds.guids."
	validatorsPrefix   = "feeds.validators."

	fieldETag         = "etag"
	fieldLastModified = "last_modified"
)

// ConnectRedis opens a client for addr and checks it with a PING.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)
	return client, nil
}

// RedisStore keeps seen fingerprints and validators in Redis: one set of
// fingerprints per feed, a set of seen feed URLs and one hash of validators
// per feed.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func FingerprintsKey(url string) string {
	return fingerprintsPrefix + url
}

func ValidatorsKey(url string) string {
	return validatorsPrefix + url
}

func (s *RedisStore) HasSeenFeed(ctx context.Context, url string) (bool, error) {
	seen, err := s.client.SIsMember(ctx, seenFeedsKey, url).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check seen feed %s: %w", url, err)
	}
	return seen, nil
}

func (s *RedisStore) SeenFingerprints(ctx context.Context, url string, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(candidates))
	for i, fp := range candidates {
		members[i] = fp
	}

	found, err := s.client.SMIsMember(ctx, FingerprintsKey(url), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check fingerprints for %s: %w", url, err)
	}

	var seen []string
	for i, ok := range found {
		if ok {
			seen = append(seen, candidates[i])
		}
	}
	return seen, nil
}

func (s *RedisStore) RecordFingerprints(ctx context.Context, url string, fingerprints []string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, seenFeedsKey, url)
		if len(fingerprints) > 0 {
			members := make([]interface{}, len(fingerprints))
			for i, fp := range fingerprints {
				members[i] = fp
			}
			pipe.SAdd(ctx, FingerprintsKey(url), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record fingerprints for %s: %w", url, err)
	}
	return nil
}

func (s *RedisStore) GetValidators(ctx context.Context, url string) (feed.Validators, bool, error) {
	fields, err := s.client.HGetAll(ctx, ValidatorsKey(url)).Result()
	if err != nil {
		return feed.Validators{}, false, fmt.Errorf("failed to get validators for %s: %w", url, err)
	}
	if len(fields) == 0 {
		return feed.Validators{}, false, nil
	}

	return feed.Validators{
		ETag:         fields[fieldETag],
		LastModified: fields[fieldLastModified],
	}, true, nil
}

func (s *RedisStore) SetValidators(ctx context.Context, url string, validators feed.Validators) error {
	key := ValidatorsKey(url)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if !validators.IsZero() {
			pipe.HSet(ctx, key, fieldETag, validators.ETag, fieldLastModified, validators.LastModified)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set validators for %s: %w", url, err)
	}
	return nil
}

func (s *RedisStore) DeleteValidators(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, ValidatorsKey(url)).Err(); err != nil {
		return fmt.Errorf("failed to delete validators for %s: %w", url, err)
	}
	return nil
}

// Health pings Redis and reports its status in the same shape as the other
// health sections.
func (s *RedisStore) Health(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if count, err := s.client.SCard(ctx, seenFeedsKey).Result(); err == nil {
		health["seen_feeds"] = count
	}

	return health
}
