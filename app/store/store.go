package store

import (
	"context"

	"github.com/lysyi3m/feedwatch/app/feed"
)

// SeenStore records which entry fingerprints have been delivered per feed.
// A feed counts as seen once RecordFingerprints has been called for it,
// even with no fingerprints.
type SeenStore interface {
	HasSeenFeed(ctx context.Context, url string) (bool, error)
	SeenFingerprints(ctx context.Context, url string, candidates []string) ([]string, error)
	RecordFingerprints(ctx context.Context, url string, fingerprints []string) error
}

// ValidatorStore caches conditional fetch validators per feed.
type ValidatorStore interface {
	GetValidators(ctx context.Context, url string) (feed.Validators, bool, error)
	SetValidators(ctx context.Context, url string, validators feed.Validators) error
	DeleteValidators(ctx context.Context, url string) error
}
