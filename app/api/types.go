package api

import (
	"context"

	"github.com/lysyi3m/feedwatch/app/feed"
	"github.com/lysyi3m/feedwatch/app/reader"
	"github.com/lysyi3m/feedwatch/app/store"
)

type FeedReader interface {
	AddFeed(rawURL string) (bool, error)
	RemoveFeed(ctx context.Context, rawURL string) (bool, error)
	SyncFeeds(ctx context.Context, rawURLs []string) (int, int)
	GetFeeds() []string
	FailingFeeds(reason reader.FailureReason) []string
	Metrics() reader.Metrics
}

type FeedList interface {
	Run() error
	GetEnabledURLs() []string
	Count() int
}

// HealthChecker reports backend state for /health. Optional.
type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

var (
	_ FeedReader    = (*reader.Reader)(nil)
	_ FeedList      = (*feed.ListCache)(nil)
	_ HealthChecker = (*store.RedisStore)(nil)
)

type Handler struct {
	reader  FeedReader
	list    FeedList
	health  HealthChecker
	version string
}

type addFeedRequest struct {
	URL string `json:"url" binding:"required"`
}
