package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLite limits the number of bound parameters per statement.
const lookupBatchSize = 500

// SeenRepository persists seen feeds and their entry fingerprints
type SeenRepository struct {
	db *DB
}

func NewSeenRepository(db *DB) *SeenRepository {
	return &SeenRepository{db: db}
}

func (r *SeenRepository) HasSeenFeed(ctx context.Context, url string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM feeds WHERE url = ?`, url).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check seen feed: %w", err)
	}
	return true, nil
}

func (r *SeenRepository) SeenFingerprints(ctx context.Context, url string, candidates []string) ([]string, error) {
	found := make(map[string]struct{}, len(candidates))

	for start := 0; start < len(candidates); start += lookupBatchSize {
		batch := candidates[start:min(start+lookupBatchSize, len(candidates))]

		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, url)
		for _, fp := range batch {
			args = append(args, fp)
		}

		query := `SELECT fingerprint FROM feed_fingerprints WHERE feed_url = ? AND fingerprint IN (?` +
			strings.Repeat(", ?", len(batch)-1) + `)`

		if err := r.collectFingerprints(ctx, found, query, args); err != nil {
			return nil, err
		}
	}

	var seen []string
	for _, fp := range candidates {
		if _, ok := found[fp]; ok {
			seen = append(seen, fp)
		}
	}
	return seen, nil
}

func (r *SeenRepository) collectFingerprints(ctx context.Context, found map[string]struct{}, query string, args []interface{}) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		found[fp] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate fingerprints: %w", err)
	}
	return nil
}

// RecordFingerprints marks the feed as seen and adds fingerprints to its set
// in one transaction.
func (r *SeenRepository) RecordFingerprints(ctx context.Context, url string, fingerprints []string) error {
	now := time.Now().Unix()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO feeds (url, first_seen_at) VALUES (?, ?)`, url, now); err != nil {
		return fmt.Errorf("failed to record feed: %w", err)
	}

	if len(fingerprints) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO feed_fingerprints (feed_url, fingerprint, recorded_at) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, fp := range fingerprints {
			if _, err := stmt.ExecContext(ctx, url, fp, now); err != nil {
				return fmt.Errorf("failed to record fingerprint: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fingerprints: %w", err)
	}
	return nil
}

func (r *SeenRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

func (r *SeenRepository) GetFingerprintCount(ctx context.Context, url string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feed_fingerprints WHERE feed_url = ?`, url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return count, nil
}

func (r *SeenRepository) Health(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "sqlite",
	}

	if err := r.db.PingContext(ctx); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if count, err := r.GetFeedCount(ctx); err == nil {
		health["seen_feeds"] = count
	}

	return health
}
