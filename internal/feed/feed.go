// Package feed is the in-process location service. Devices push samples over
// HTTP; each runner's Feed hands them to the recorder that subscribed to it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"backend-runtracker/internal/observability"
	"backend-runtracker/internal/shared/geo"
	"backend-runtracker/internal/tracking"
)

var (
	ErrNotTracking       = errors.New("runner is not tracking")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrAlreadySubscribed = errors.New("feed already has a subscriber")
)

type Hub struct {
	mu             sync.Mutex
	consentDefault bool
	consent        map[string]bool
	feeds          map[string]*Feed
}

func NewHub(consentDefault bool) *Hub {
	return &Hub{
		consentDefault: consentDefault,
		consent:        map[string]bool{},
		feeds:          map[string]*Feed{},
	}
}

func (h *Hub) ForRunner(runnerID string) *Feed {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[runnerID]
	if !ok {
		f = &Feed{hub: h, runnerID: runnerID}
		h.feeds[runnerID] = f
	}
	return f
}

// SetConsent records whether the runner allows location access.
func (h *Hub) SetConsent(runnerID string, granted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consent[runnerID] = granted
}

func (h *Hub) Consent(runnerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if granted, ok := h.consent[runnerID]; ok {
		return granted
	}
	return h.consentDefault
}

func (h *Hub) Publish(runnerID string, p tracking.PathPoint) (bool, error) {
	return h.ForRunner(runnerID).Publish(p)
}

// Feed implements tracking.PositionSource for one runner.
type Feed struct {
	hub      *Hub
	runnerID string

	mu  sync.Mutex
	sub *subscription
}

func (f *Feed) RequestAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.hub.Consent(f.runnerID) {
		return fmt.Errorf("%w: runner %s has not shared location", tracking.ErrPermissionDenied, f.runnerID)
	}
	return nil
}

func (f *Feed) Subscribe(onUpdate func(tracking.Update), opts tracking.SubscribeOptions) (tracking.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil && !f.sub.isCancelled() {
		return nil, ErrAlreadySubscribed
	}
	f.sub = &subscription{feed: f, onUpdate: onUpdate, opts: opts}
	return f.sub, nil
}

// Publish delivers p to the live subscription. It reports false when the
// sample was filtered out by the subscription options.
func (f *Feed) Publish(p tracking.PathPoint) (bool, error) {
	if !p.Coordinate().Valid() {
		return false, fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidPosition, p.Lat, p.Lng)
	}
	sub := f.current()
	if sub == nil {
		return false, ErrNotTracking
	}
	return sub.offer(p)
}

// Fail reports a feed failure to the live subscription.
func (f *Feed) Fail(err error) error {
	sub := f.current()
	if sub == nil {
		return ErrNotTracking
	}
	return sub.fail(err)
}

func (f *Feed) current() *subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

func (f *Feed) detach(s *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == s {
		f.sub = nil
	}
}

// subscription serializes deliveries under mu, which also makes Cancel wait
// for an in-flight callback.
type subscription struct {
	feed     *Feed
	onUpdate func(tracking.Update)
	opts     tracking.SubscribeOptions

	mu        sync.Mutex
	last      *geo.Coordinate
	cancelled bool
}

func (s *subscription) offer(p tracking.PathPoint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false, ErrNotTracking
	}

	if limit := s.opts.Accuracy.MaxErrorM(); limit > 0 && p.AccuracyM > limit {
		observability.PositionsIgnored.WithLabelValues("accuracy").Inc()
		return false, nil
	}
	c := p.Coordinate()
	if s.last != nil && s.opts.MinDistanceM > 0 && geo.HaversineMeters(*s.last, c) < s.opts.MinDistanceM {
		observability.PositionsIgnored.WithLabelValues("min_distance").Inc()
		return false, nil
	}
	s.last = &c

	s.onUpdate(tracking.Update{Position: p})
	return true, nil
}

func (s *subscription) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return ErrNotTracking
	}
	s.onUpdate(tracking.Update{Err: err})
	return nil
}

func (s *subscription) Cancel() {
	s.mu.Lock()
	already := s.cancelled
	s.cancelled = true
	s.mu.Unlock()
	if !already {
		s.feed.detach(s)
	}
}

func (s *subscription) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
