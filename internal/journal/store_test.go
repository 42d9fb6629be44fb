package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"backend-runtracker/internal/shared/geo"
	"backend-runtracker/internal/tracking"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
)

func sampleEntry(id string) Entry {
	started := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	return Entry{
		ID:       id,
		Note:     "easy loop",
		Location: &geo.Coordinate{Lat: -6.2, Lng: 106.8},
		Record: tracking.Record{
			ID:              "20240501T070000-abcd1234",
			DistanceM:       1200,
			DurationSec:     600,
			AverageSpeedMps: 2,
			StartedAt:       started,
			EndedAt:         started.Add(10 * time.Minute),
			Path:            []tracking.PathPoint{{Lat: -6.2, Lng: 106.8, RecordedAt: started}},
		},
		CreatedAt: started.Add(11 * time.Minute),
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entries := []Entry{sampleEntry("a")}
	if err := store.Save(ctx, "runner-1", entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries[0].Note = "mutated"

	got, _ := store.Load(ctx, "runner-1")
	if len(got) != 1 || got[0].Note != "easy loop" {
		t.Fatalf("expected stored copy, got %+v", got)
	}
	if other, _ := store.Load(ctx, "runner-2"); len(other) != 0 {
		t.Fatalf("expected empty journal for other runner")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	empty, err := store.Load(ctx, "runner-1")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty journal, got %v %v", empty, err)
	}

	if err := store.Save(ctx, "runner-1", []Entry{sampleEntry("a"), sampleEntry("b")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("journal:runner-1") {
		t.Fatalf("expected journal key")
	}

	got, err := store.Load(ctx, "runner-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].ID != "b" || got[0].Record.DistanceM != 1200 || got[0].Location == nil {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestRedisStoreErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client)

	mr.Set("journal:runner-1", "not json")
	if _, err := store.Load(context.Background(), "runner-1"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error on bad payload, got %v", err)
	}

	mr.Close()
	if err := store.Save(context.Background(), "runner-1", nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error when redis is down, got %v", err)
	}
}

func TestPostgresStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	e := sampleEntry("entry-1")
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM journal_entries`).
		WithArgs("runner-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`INSERT INTO journal_entries`).
		WithArgs("entry-1", "runner-1", e.Note, e.PhotoURL, pgxmock.AnyArg(), pgxmock.AnyArg(), e.Record.ID,
			e.Record.DistanceM, e.Record.DurationSec, e.Record.AverageSpeedMps,
			e.Record.StartedAt, e.Record.EndedAt, pgxmock.AnyArg(), e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := NewPostgresStore(mock).Save(context.Background(), "runner-1", []Entry{e}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSaveRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM journal_entries`).
		WithArgs("runner-1").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewPostgresStore(mock).Save(context.Background(), "runner-1", []Entry{sampleEntry("a")})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreBeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	if err := NewPostgresStore(mock).Save(context.Background(), "runner-1", nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestPostgresStoreLoad(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	e := sampleEntry("entry-1")
	path, _ := json.Marshal(e.Record.Path)
	lat, lng := e.Location.Lat, e.Location.Lng
	cols := []string{"id", "note", "photo_url", "lat", "lng", "record_id", "distance_m", "duration_sec",
		"average_speed_mps", "started_at", "ended_at", "path", "created_at"}
	mock.ExpectQuery(`SELECT id, note, photo_url, lat, lng`).
		WithArgs("runner-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(e.ID, e.Note, "", &lat, &lng, e.Record.ID, e.Record.DistanceM, e.Record.DurationSec,
				e.Record.AverageSpeedMps, e.Record.StartedAt, e.Record.EndedAt, path, e.CreatedAt).
			AddRow("entry-2", "no gps", "", nil, nil, "rec-2", 0.0, int64(0),
				0.0, e.Record.StartedAt, e.Record.EndedAt, []byte("[]"), e.CreatedAt))

	got, err := NewPostgresStore(mock).Load(context.Background(), "runner-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Location == nil || got[0].Location.Lat != lat || len(got[0].Record.Path) != 1 {
		t.Fatalf("unexpected first entry %+v", got[0])
	}
	if got[1].Location != nil || len(got[1].Record.Path) != 0 {
		t.Fatalf("unexpected second entry %+v", got[1])
	}
}

func TestPostgresStoreLoadError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	mock.ExpectQuery(`SELECT id, note`).WithArgs("runner-1").WillReturnError(errors.New("timeout"))

	if _, err := NewPostgresStore(mock).Load(context.Background(), "runner-1"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}
