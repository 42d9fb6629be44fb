package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-runtracker/internal/observability"
	"backend-runtracker/internal/tracking"

	"github.com/google/uuid"
)

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	locks  runnerLocks
}

// runnerLocks serializes read-modify-write cycles per runner within this
// process.
type runnerLocks struct {
	mu    sync.Mutex
	locks map[string]*runnerLock
}

type runnerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *runnerLocks) lock(runnerID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*runnerLock{}
	}
	rl, ok := l.locks[runnerID]
	if !ok {
		rl = &runnerLock{}
		l.locks[runnerID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, runnerID)
		}
		l.mu.Unlock()
	}
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "journal"),
		now:    time.Now,
	}
}

// Post appends a new entry for rec to the runner's journal. Posting a record
// that is already in the journal returns the existing entry.
func (s *Service) Post(ctx context.Context, runnerID string, note Annotation, rec tracking.Record) (Entry, error) {
	unlock := s.locks.lock(runnerID)
	defer unlock()

	entries, err := s.store.Load(ctx, runnerID)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if rec.ID != "" && e.Record.ID == rec.ID {
			return e, nil
		}
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Note:      note.Note,
		PhotoURL:  note.PhotoURL,
		Location:  note.Location,
		Record:    rec,
		CreatedAt: s.now(),
	}
	if err := s.save(ctx, runnerID, append(entries, entry)); err != nil {
		return Entry{}, err
	}
	s.logger.Info("journal entry posted", "runner_id", runnerID, "entry_id", entry.ID, "record_id", rec.ID)
	return entry, nil
}

func (s *Service) List(ctx context.Context, runnerID string) ([]Entry, error) {
	entries, err := s.store.Load(ctx, runnerID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *Service) EditNote(ctx context.Context, runnerID, entryID, note string) (Entry, error) {
	unlock := s.locks.lock(runnerID)
	defer unlock()

	entries, err := s.store.Load(ctx, runnerID)
	if err != nil {
		return Entry{}, err
	}
	i := indexOf(entries, entryID)
	if i < 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	entries[i].Note = note
	if err := s.save(ctx, runnerID, entries); err != nil {
		return Entry{}, err
	}
	return entries[i], nil
}

func (s *Service) Delete(ctx context.Context, runnerID, entryID string) error {
	unlock := s.locks.lock(runnerID)
	defer unlock()

	entries, err := s.store.Load(ctx, runnerID)
	if err != nil {
		return err
	}
	i := indexOf(entries, entryID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	return s.save(ctx, runnerID, append(entries[:i], entries[i+1:]...))
}

func (s *Service) save(ctx context.Context, runnerID string, entries []Entry) error {
	if err := s.store.Save(ctx, runnerID, entries); err != nil {
		observability.JournalSaveErrors.Inc()
		s.logger.Error("journal save failed", "runner_id", runnerID, "err", err)
		return err
	}
	return nil
}

func indexOf(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
