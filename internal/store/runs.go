package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout has a fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SaveRun inserts a run with its splits. An empty ID is assigned a new UUID.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, ended_at, elapsed_ms, distance_km, target_speed_kmh)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.StartedAt.UTC().Format(timeLayout), r.EndedAt.UTC().Format(timeLayout),
		r.ElapsedMs, r.DistanceKm, r.TargetSpeedKmh,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, sp := range r.Splits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO splits (run_id, km, measured_ms, ideal_ms) VALUES (?, ?, ?, ?)
		`, r.ID, sp.Km, sp.MeasuredMs, sp.IdealMs)
		if err != nil {
			return fmt.Errorf("inserting split %d: %w", sp.Km, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run and its splits
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, elapsed_ms, distance_km, target_speed_kmh
		FROM runs
		WHERE id = ?
	`, id)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Splits, err = s.getSplits(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first, without splits.
// limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, ended_at, elapsed_ms, distance_km, target_speed_kmh
		FROM runs
		ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its splits
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) getSplits(ctx context.Context, runID string) ([]Split, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT km, measured_ms, ideal_ms
		FROM splits
		WHERE run_id = ?
		ORDER BY km
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var splits []Split
	for rows.Next() {
		var sp Split
		var ideal sql.NullInt64
		if err := rows.Scan(&sp.Km, &sp.MeasuredMs, &ideal); err != nil {
			return nil, err
		}
		if ideal.Valid {
			v := ideal.Int64
			sp.IdealMs = &v
		}
		splits = append(splits, sp)
	}
	return splits, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var startedAt, endedAt string

	err := row.Scan(&r.ID, &startedAt, &endedAt, &r.ElapsedMs, &r.DistanceKm, &r.TargetSpeedKmh)
	if err != nil {
		return nil, err
	}

	r.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	r.EndedAt, err = time.Parse(timeLayout, endedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing ended_at %q: %w", endedAt, err)
	}
	return &r, nil
}
