package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend-runtracker/internal/db"
	"backend-runtracker/internal/shared/geo"
	"backend-runtracker/internal/tracking"

	"github.com/jackc/pgx/v5"
)

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Load(ctx context.Context, runnerID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, note, photo_url, lat, lng, record_id, distance_m, duration_sec,
		       average_speed_mps, started_at, ended_at, path, created_at
		FROM journal_entries
		WHERE runner_id=$1
		ORDER BY created_at ASC
	`, runnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			lat, lng *float64
			path     []byte
		)
		if err := rows.Scan(&e.ID, &e.Note, &e.PhotoURL, &lat, &lng,
			&e.Record.ID, &e.Record.DistanceM, &e.Record.DurationSec, &e.Record.AverageSpeedMps,
			&e.Record.StartedAt, &e.Record.EndedAt, &path, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if lat != nil && lng != nil {
			e.Location = &geo.Coordinate{Lat: *lat, Lng: *lng}
		}
		if len(path) > 0 {
			if err := json.Unmarshal(path, &e.Record.Path); err != nil {
				return nil, fmt.Errorf("%w: decode path: %v", ErrPersistence, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entries, nil
}

// Save replaces the runner's journal in one transaction.
func (s *PostgresStore) Save(ctx context.Context, runnerID string, entries []Entry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := replaceEntries(ctx, tx, runnerID, entries); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func replaceEntries(ctx context.Context, tx pgx.Tx, runnerID string, entries []Entry) error {
	if _, err := tx.Exec(ctx, `DELETE FROM journal_entries WHERE runner_id=$1`, runnerID); err != nil {
		return err
	}
	for _, e := range entries {
		path, err := json.Marshal(pathOrEmpty(e.Record.Path))
		if err != nil {
			return err
		}
		var lat, lng *float64
		if e.Location != nil {
			lat, lng = &e.Location.Lat, &e.Location.Lng
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO journal_entries (id, runner_id, note, photo_url, lat, lng, record_id,
				distance_m, duration_sec, average_speed_mps, started_at, ended_at, path, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, e.ID, runnerID, e.Note, e.PhotoURL, lat, lng, e.Record.ID,
			e.Record.DistanceM, e.Record.DurationSec, e.Record.AverageSpeedMps,
			e.Record.StartedAt, e.Record.EndedAt, path, createdAt(e)); err != nil {
			return err
		}
	}
	return nil
}

func pathOrEmpty(p []tracking.PathPoint) []tracking.PathPoint {
	if p == nil {
		return []tracking.PathPoint{}
	}
	return p
}

func createdAt(e Entry) time.Time {
	if e.CreatedAt.IsZero() {
		return time.Now()
	}
	return e.CreatedAt
}
