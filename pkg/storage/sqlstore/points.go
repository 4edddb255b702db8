package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/modgraph/pkg/modules"
)

const pointColumns = `id, module_key, version, blob_key, checksum, status, reason, created_at`

// SavePoint implements modules.PointStore
func (s *Store) SavePoint(ctx context.Context, point *modules.RollbackPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollback_points (`+pointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason
	`, point.ID, point.ModuleKey, point.Version, point.BlobKey, point.Checksum, string(point.Status), point.Reason, point.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save rollback point: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoint(row rowScanner) (*modules.RollbackPoint, error) {
	var (
		p      modules.RollbackPoint
		status string
	)
	if err := row.Scan(&p.ID, &p.ModuleKey, &p.Version, &p.BlobKey, &p.Checksum, &status, &p.Reason, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = modules.PointStatus(status)
	return &p, nil
}

// GetPoint implements modules.PointStore
func (s *Store) GetPoint(ctx context.Context, id string) (*modules.RollbackPoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pointColumns+` FROM rollback_points WHERE id = $1`, id)
	p, err := scanPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", modules.ErrPointNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rollback point: %w", err)
	}
	return p, nil
}

func (s *Store) queryPoints(ctx context.Context, query string, args ...interface{}) ([]*modules.RollbackPoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollback points: %w", err)
	}
	defer rows.Close()

	out := make([]*modules.RollbackPoint, 0)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollback point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rollback points: %w", err)
	}
	return out, nil
}

// ListPoints implements modules.PointStore, newest first
func (s *Store) ListPoints(ctx context.Context, moduleKey string) ([]*modules.RollbackPoint, error) {
	return s.queryPoints(ctx, `
		SELECT `+pointColumns+` FROM rollback_points
		WHERE module_key = $1
		ORDER BY created_at DESC
	`, moduleKey)
}

// ListPointsBefore implements modules.PointStore
func (s *Store) ListPointsBefore(ctx context.Context, cutoff time.Time, status modules.PointStatus) ([]*modules.RollbackPoint, error) {
	return s.queryPoints(ctx, `
		SELECT `+pointColumns+` FROM rollback_points
		WHERE created_at < $1 AND status = $2
		ORDER BY created_at DESC
	`, cutoff.UTC(), string(status))
}

// UpdatePointStatus implements modules.PointStore
func (s *Store) UpdatePointStatus(ctx context.Context, id string, status modules.PointStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rollback_points SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update rollback point: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", modules.ErrPointNotFound, id)
	}
	return nil
}
