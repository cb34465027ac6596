package reader

import (
	"context"

	"github.com/lysyi3m/feedwatch/app/feed"
)

var (
	_ Fetcher = (*feed.Fetcher)(nil)
	_ Parser  = (*feed.Parser)(nil)
)

type Fetcher interface {
	Fetch(ctx context.Context, url string, validators feed.Validators) (*feed.FetchResult, error)
}

type Parser interface {
	Run(data []byte) (*feed.Channel, error)
}
