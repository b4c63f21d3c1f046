package pointvalue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Point is a registered data point. Values of points that are not
// registered count as orphaned and are removed by DeleteOrphaned.
type Point struct {
	ID       int
	XID      string
	Name     string
	DataType DataType
}

const upsertPointSQL = `INSERT INTO data_points (id, xid, name, data_type) VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET xid = excluded.xid, name = excluded.name, data_type = excluded.data_type`

// RegisterPoint creates or updates p.
func (s *Store) RegisterPoint(ctx context.Context, p Point) error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPoint, p.ID)
	}
	if p.XID == "" {
		p.XID = fmt.Sprintf("DP_%d", p.ID)
	}

	_, err := withRetry(ctx, s.syncRetry, s.dialect.IsTransient, func(ctx context.Context) (struct{}, error) {
		_, err := s.db.ExecContext(ctx, upsertPointSQL, p.ID, p.XID, p.Name, int(p.DataType))
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("registering point %d: %w", p.ID, classify(err))
	}
	return nil
}

// UnregisterPoint removes the point's registration. Its values stay
// until DeleteOrphaned or PurgePoint removes them.
func (s *Store) UnregisterPoint(ctx context.Context, pointID int) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM data_points WHERE id = ?", pointID); err != nil {
		return fmt.Errorf("unregistering point %d: %w", pointID, err)
	}
	return nil
}

// GetPoint returns the registered point, or nil.
func (s *Store) GetPoint(ctx context.Context, pointID int) (*Point, error) {
	var (
		p  Point
		dt int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, xid, name, data_type FROM data_points WHERE id = ?", pointID,
	).Scan(&p.ID, &p.XID, &p.Name, &dt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying point %d: %w", pointID, err)
	}
	p.DataType = DataType(dt)
	return &p, nil
}

// Points returns every registered point ordered by id.
func (s *Store) Points(ctx context.Context) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, xid, name, data_type FROM data_points ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var (
			p  Point
			dt int
		)
		if err := rows.Scan(&p.ID, &p.XID, &p.Name, &dt); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		p.DataType = DataType(dt)
		out = append(out, p)
	}
	return out, rows.Err()
}
