package tracking

import (
	"sync"
)

// RecorderFactory builds the recorder owned by one runner.
type RecorderFactory func(runnerID string) *Recorder

// Registry keeps one Recorder per runner, created on first use.
type Registry struct {
	mu        sync.Mutex
	factory   RecorderFactory
	recorders map[string]*Recorder
	closed    bool
}

func NewRegistry(factory RecorderFactory) *Registry {
	return &Registry{
		factory:   factory,
		recorders: map[string]*Recorder{},
	}
}

func (g *Registry) Recorder(runnerID string) (*Recorder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrRecorderClosed
	}
	if r, ok := g.recorders[runnerID]; ok {
		return r, nil
	}
	r := g.factory(runnerID)
	g.recorders[runnerID] = r
	return r, nil
}

// Close tears down every recorder, stopping active sessions. Records left
// pending are returned keyed by runner.
func (g *Registry) Close() map[string]Record {
	g.mu.Lock()
	recorders := g.recorders
	g.recorders = map[string]*Recorder{}
	g.closed = true
	g.mu.Unlock()

	pending := map[string]Record{}
	for runnerID, r := range recorders {
		if rec, ok := r.Close(); ok {
			pending[runnerID] = rec
		}
	}
	return pending
}
