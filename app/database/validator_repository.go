package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lysyi3m/feedwatch/app/feed"
)

// ValidatorRepository persists conditional fetch validators per feed
type ValidatorRepository struct {
	db *DB
}

func NewValidatorRepository(db *DB) *ValidatorRepository {
	return &ValidatorRepository{db: db}
}

func (r *ValidatorRepository) GetValidators(ctx context.Context, url string) (feed.Validators, bool, error) {
	var v feed.Validators
	err := r.db.QueryRowContext(ctx,
		`SELECT etag, last_modified FROM feed_validators WHERE feed_url = ?`, url).Scan(&v.ETag, &v.LastModified)
	if err == sql.ErrNoRows {
		return feed.Validators{}, false, nil
	}
	if err != nil {
		return feed.Validators{}, false, fmt.Errorf("failed to get validators: %w", err)
	}
	return v, true, nil
}

func (r *ValidatorRepository) SetValidators(ctx context.Context, url string, validators feed.Validators) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_validators (feed_url, etag, last_modified, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (feed_url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			updated_at = excluded.updated_at
	`, url, validators.ETag, validators.LastModified, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set validators: %w", err)
	}
	return nil
}

func (r *ValidatorRepository) DeleteValidators(ctx context.Context, url string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM feed_validators WHERE feed_url = ?`, url); err != nil {
		return fmt.Errorf("failed to delete validators: %w", err)
	}
	return nil
}
