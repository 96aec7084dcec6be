package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/photosync/syncagent/internal/models"
)

const (
	StateKeySyncFromNowPoint = "sync_from_now_point"
)

// IntervalRepository implements IntervalStore on SQLite or PostgreSQL. The
// queries use $N placeholders and ON CONFLICT upserts, which both drivers
// accept.
type IntervalRepository struct {
	db *sql.DB
}

// NewIntervalRepository creates a new IntervalRepository
func NewIntervalRepository(db *sql.DB) *IntervalRepository {
	return &IntervalRepository{db: db}
}

// Load returns the persisted intervals in the order they were saved
func (r *IntervalRepository) Load(ctx context.Context) ([]models.TimeInterval, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT start_ts, end_ts FROM sync_intervals ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intervals := []models.TimeInterval{}
	for rows.Next() {
		var iv models.TimeInterval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// Save replaces the stored interval list in a single transaction
func (r *IntervalRepository) Save(ctx context.Context, intervals []models.TimeInterval) error {
	for _, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_intervals`); err != nil {
		return fmt.Errorf("clear intervals: %w", err)
	}

	now := time.Now().UTC()
	for i, iv := range intervals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_intervals (position, start_ts, end_ts, updated_at) VALUES ($1, $2, $3, $4)`,
			i, iv.Start, iv.End, now,
		)
		if err != nil {
			return fmt.Errorf("insert interval %s: %w", iv, err)
		}
	}

	return tx.Commit()
}

// LoadAnchor returns the sync-from-now point
func (r *IntervalRepository) LoadAnchor(ctx context.Context) (int64, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = $1`, StateKeySyncFromNowPoint,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	anchor, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt anchor value %q: %w", value, err)
	}
	return anchor, true, nil
}

// SaveAnchor stores the sync-from-now point
func (r *IntervalRepository) SaveAnchor(ctx context.Context, anchor int64) error {
	query := `
		INSERT INTO sync_state (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		StateKeySyncFromNowPoint, strconv.FormatInt(anchor, 10), time.Now().UTC())
	return err
}

// ClearAnchor removes the sync-from-now point
func (r *IntervalRepository) ClearAnchor(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_state WHERE key = $1`, StateKeySyncFromNowPoint)
	return err
}

// ClearAll removes all intervals and sync state
func (r *IntervalRepository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_intervals`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_state`); err != nil {
		return err
	}
	return tx.Commit()
}
