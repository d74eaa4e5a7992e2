package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AlertStore = (*AlertRepo)(nil)

// AlertRepo is the SQL implementation of the AlertStore port. The UNIQUE
// index on build_id is the dedup authority.
type AlertRepo struct {
	db *DB
}

// NewAlertRepo creates a new AlertRepo backed by the given DB.
func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// Claim inserts the alert unless its build already has one.
func (r *AlertRepo) Claim(ctx context.Context, alert model.Alert) (bool, error) {
	const query = `
		INSERT INTO alerts (build_id, recipient, channel, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (build_id) DO NOTHING
	`

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.Writer.ExecContext(ctx, r.db.rebind(query),
		alert.BuildID, alert.Recipient, string(alert.Channel), r.db.timeArg(createdAt),
	)
	if err != nil {
		return false, fmt.Errorf("claim alert for build %d: %w", alert.BuildID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows == 1, nil
}

// Release removes the alert for buildID. Releasing a build with no alert is
// not an error.
func (r *AlertRepo) Release(ctx context.Context, buildID int64) error {
	const query = `DELETE FROM alerts WHERE build_id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, r.db.rebind(query), buildID); err != nil {
		return fmt.Errorf("release alert for build %d: %w", buildID, err)
	}

	return nil
}

// GetByBuild returns the alert for buildID. Returns nil, nil if none exists.
func (r *AlertRepo) GetByBuild(ctx context.Context, buildID int64) (*model.Alert, error) {
	const query = `SELECT id, build_id, recipient, channel, created_at FROM alerts WHERE build_id = ?`

	var row struct {
		ID        int64  `db:"id"`
		BuildID   int64  `db:"build_id"`
		Recipient string `db:"recipient"`
		Channel   string `db:"channel"`
		CreatedAt string `db:"created_at"`
	}
	err := r.db.Reader.GetContext(ctx, &row, r.db.rebind(query), buildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert for build %d: %w", buildID, err)
	}

	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &model.Alert{
		ID:        row.ID,
		BuildID:   row.BuildID,
		Recipient: row.Recipient,
		Channel:   model.AlertChannel(row.Channel),
		CreatedAt: createdAt,
	}, nil
}
