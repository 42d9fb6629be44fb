package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backend-runtracker/internal/observability"
	"backend-runtracker/internal/shared/geo"
)

const inboxSize = 128

type EventType string

const (
	EventStarted   EventType = "started"
	EventPoint     EventType = "point"
	EventTick      EventType = "tick"
	EventFeedError EventType = "feed_error"
	EventStopped   EventType = "stopped"
)

// Event is emitted by the recorder loop after each state change.
type Event struct {
	Type           EventType  `json:"type"`
	RunnerID       string     `json:"runner_id"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	Point          *PathPoint `json:"point,omitempty"`
	Record         *Record    `json:"record,omitempty"`
	Error          string     `json:"error,omitempty"`
}

type RecorderConfig struct {
	RunnerID string
	Source   PositionSource
	Timer    Ticker
	Options  SubscribeOptions
	// Observer runs on the recorder loop. It must not block or call back
	// into the recorder.
	Observer func(Event)
	Logger   *slog.Logger
	Now      func() time.Time
	Builder  Builder
}

// Recorder is the tracking state machine for one runner. Commands and
// position/tick events share a single inbox read by one goroutine, which is
// the only code that touches the session.
type Recorder struct {
	runnerID string
	source   PositionSource
	timer    Ticker
	opts     SubscribeOptions
	observer func(Event)
	logger   *slog.Logger
	now      func() time.Time
	builder  Builder

	inbox chan any
	done  chan struct{}

	// owned by the loop goroutine
	session Session
	pending *Record
	sub     Subscription
	cancel  context.CancelFunc
	gen     uint64
	feedErr error
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdConsume
	cmdConsumeRecord
	cmdPending
	cmdStatus
	cmdClose
)

type command struct {
	kind     cmdKind
	ctx      context.Context
	recordID string
	reply    chan reply
}

type reply struct {
	record Record
	status Status
	ok     bool
	err    error
}

type positionEvent struct {
	gen    uint64
	update Update
}

type tickEvent struct {
	gen uint64
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Timer == nil {
		cfg.Timer = NewSecondTimer(time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Recorder{
		runnerID: cfg.RunnerID,
		source:   cfg.Source,
		timer:    cfg.Timer,
		opts:     cfg.Options,
		observer: cfg.Observer,
		logger:   cfg.Logger.With("component", "recorder", "runner_id", cfg.RunnerID),
		now:      cfg.Now,
		builder:  cfg.Builder,
		inbox:    make(chan any, inboxSize),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Start begins a new session. From Stopped the pending record is discarded.
func (r *Recorder) Start(ctx context.Context) error {
	_, err := r.call(ctx, cmdStart)
	return err
}

// Stop ends the active session. The subscription and timer are released
// before Stop returns.
func (r *Recorder) Stop(ctx context.Context) (Record, error) {
	rep, err := r.call(ctx, cmdStop)
	return rep.record, err
}

// Consume hands over the pending record and returns the recorder to Idle.
func (r *Recorder) Consume(ctx context.Context) (Record, error) {
	rep, err := r.call(ctx, cmdConsume)
	return rep.record, err
}

// ConsumeRecord is Consume guarded by the record ID: it fails with
// ErrInvalidTransition unless recordID is still the pending record.
func (r *Recorder) ConsumeRecord(ctx context.Context, recordID string) (Record, error) {
	rep, err := r.send(ctx, command{kind: cmdConsumeRecord, ctx: ctx, recordID: recordID, reply: make(chan reply, 1)})
	return rep.record, err
}

// Pending returns the pending record without consuming it.
func (r *Recorder) Pending(ctx context.Context) (Record, error) {
	rep, err := r.call(ctx, cmdPending)
	return rep.record, err
}

func (r *Recorder) Status(ctx context.Context) (Status, error) {
	rep, err := r.call(ctx, cmdStatus)
	return rep.status, err
}

// Close tears the recorder down, stopping an active session first. It
// returns the record left pending, if any.
func (r *Recorder) Close() (Record, bool) {
	rep, err := r.call(context.Background(), cmdClose)
	if err != nil {
		return Record{}, false
	}
	return rep.record, rep.ok
}

func (r *Recorder) call(ctx context.Context, kind cmdKind) (reply, error) {
	return r.send(ctx, command{kind: kind, ctx: ctx, reply: make(chan reply, 1)})
}

func (r *Recorder) send(ctx context.Context, cmd command) (reply, error) {
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return reply{}, ErrRecorderClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case rep := <-cmd.reply:
		return rep, rep.err
	case <-r.done:
		select {
		case rep := <-cmd.reply:
			return rep, rep.err
		default:
			return reply{}, ErrRecorderClosed
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for msg := range r.inbox {
		switch m := msg.(type) {
		case command:
			rep, exit := r.handleCommand(m)
			m.reply <- rep
			if exit {
				return
			}
		case positionEvent:
			r.handlePosition(m)
		case tickEvent:
			r.handleTick(m)
		}
	}
}

func (r *Recorder) handleCommand(cmd command) (reply, bool) {
	switch cmd.kind {
	case cmdStart:
		return reply{err: r.start(cmd.ctx)}, false
	case cmdStop:
		if r.session.State != StateActive {
			return reply{err: r.invalid("stop")}, false
		}
		return reply{record: r.finalize(), ok: true}, false
	case cmdConsume:
		if r.session.State != StateStopped || r.pending == nil {
			return reply{err: r.invalid("consume")}, false
		}
		return reply{record: r.takePending(), ok: true}, false
	case cmdConsumeRecord:
		if r.session.State != StateStopped || r.pending == nil {
			return reply{err: r.invalid("consume")}, false
		}
		if r.pending.ID != cmd.recordID {
			return reply{err: fmt.Errorf("%w: pending record is %s, not %s", ErrInvalidTransition, r.pending.ID, cmd.recordID)}, false
		}
		return reply{record: r.takePending(), ok: true}, false
	case cmdPending:
		if r.pending == nil {
			return reply{err: fmt.Errorf("%w: no pending record", ErrInvalidTransition)}, false
		}
		return reply{record: r.pending.Clone(), ok: true}, false
	case cmdStatus:
		return reply{status: r.status(), ok: true}, false
	case cmdClose:
		if r.session.State == StateActive {
			r.logger.Warn("closing recorder with active session, stopping it")
			r.finalize()
		}
		if r.pending != nil {
			return reply{record: r.takePending(), ok: true}, true
		}
		return reply{}, true
	}
	return reply{err: fmt.Errorf("unknown command %d", cmd.kind)}, false
}

func (r *Recorder) start(ctx context.Context) error {
	if r.session.State == StateActive {
		return r.invalid("start")
	}
	if r.session.State == StateStopped {
		if r.pending != nil {
			r.logger.Info("discarding pending record", "record_id", r.pending.ID)
		}
		r.pending = nil
		r.session = Session{State: StateIdle}
	}

	if err := r.source.RequestAccess(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			observability.PermissionDenied.Inc()
			r.logger.Info("location access denied")
		}
		return err
	}

	r.gen++
	gen := r.gen
	sessCtx, cancel := context.WithCancel(context.Background())

	r.feedErr = nil
	r.session = Session{
		State:     StateActive,
		StartedAt: r.now(),
		Path:      make([]PathPoint, 0, 64),
	}

	r.timer.Start(func() {
		r.deliver(sessCtx, tickEvent{gen: gen})
	})

	sub, err := r.source.Subscribe(func(u Update) {
		r.deliver(sessCtx, positionEvent{gen: gen, update: u})
	}, r.opts)
	if err != nil {
		cancel()
		r.timer.Stop()
		r.session = Session{State: StateIdle}
		r.logger.Error("subscribe failed", "err", err)
		return fmt.Errorf("%w: %v", ErrSubscription, err)
	}

	r.sub = sub
	r.cancel = cancel
	observability.SessionsStarted.Inc()
	r.logger.Info("session started", "started_at", r.session.StartedAt)
	r.emit(Event{Type: EventStarted})
	return nil
}

// deliver enqueues an event unless the session it belongs to is over.
func (r *Recorder) deliver(ctx context.Context, msg any) {
	if ctx.Err() != nil {
		return
	}
	select {
	case r.inbox <- msg:
	case <-ctx.Done():
	}
}

func (r *Recorder) handlePosition(ev positionEvent) {
	if ev.gen != r.gen || r.session.State != StateActive {
		observability.PositionsIgnored.WithLabelValues("inactive").Inc()
		return
	}
	if ev.update.Err != nil {
		r.feedErr = ev.update.Err
		r.logger.Warn("position feed failed", "err", ev.update.Err)
		r.emit(Event{Type: EventFeedError, Error: ev.update.Err.Error()})
		return
	}

	p := ev.update.Position
	if p.RecordedAt.IsZero() {
		p.RecordedAt = r.now()
	}
	r.session.Path = append(r.session.Path, p)
	observability.PositionsAccepted.Inc()
	r.emit(Event{Type: EventPoint, Point: &p})
}

func (r *Recorder) handleTick(ev tickEvent) {
	if ev.gen != r.gen || r.session.State != StateActive {
		return
	}
	r.session.ElapsedSeconds++
	observability.Ticks.Inc()
	r.emit(Event{Type: EventTick})
}

func (r *Recorder) finalize() Record {
	r.cancel()
	r.timer.Stop()
	r.sub.Cancel()
	r.cancel, r.sub = nil, nil

	endedAt := r.now()
	coords := make([]geo.Coordinate, len(r.session.Path))
	for i, p := range r.session.Path {
		coords[i] = p.Coordinate()
	}
	distance := geo.PathLength(coords)
	duration := r.session.ElapsedSeconds
	speed := averageSpeed(distance, duration)

	rec := r.builder.Build(r.session, distance, duration, speed, endedAt)
	r.session.State = StateStopped
	pending := rec.Clone()
	r.pending = &pending

	observability.SessionsStopped.Inc()
	observability.RecordDistance.Observe(rec.DistanceM)
	r.logger.Info("session stopped",
		"record_id", rec.ID,
		"points", len(rec.Path),
		"distance_m", rec.DistanceM,
		"duration_sec", rec.DurationSec,
		"wall_clock_sec", endedAt.Sub(rec.StartedAt).Seconds(),
	)
	emitted := rec.Clone()
	r.emit(Event{Type: EventStopped, Record: &emitted})
	return rec
}

// takePending hands the pending record over and returns to Idle.
func (r *Recorder) takePending() Record {
	rec := *r.pending
	r.pending = nil
	r.session = Session{State: StateIdle}
	return rec
}

func (r *Recorder) status() Status {
	st := Status{
		State:          r.session.State,
		StartedAt:      r.session.StartedAt,
		ElapsedSeconds: r.session.ElapsedSeconds,
		PointCount:     len(r.session.Path),
		HasPending:     r.pending != nil,
	}
	if r.feedErr != nil {
		st.FeedError = r.feedErr.Error()
	}
	return st
}

func (r *Recorder) emit(ev Event) {
	if r.observer == nil {
		return
	}
	ev.RunnerID = r.runnerID
	ev.ElapsedSeconds = r.session.ElapsedSeconds
	r.observer(ev)
}

func (r *Recorder) invalid(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, r.session.State)
}
