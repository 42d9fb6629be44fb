package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"backend-runtracker/internal/observability"
	"backend-runtracker/internal/tracking"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "runner:"
	channelSuffix  = ":live"
	channelPattern = channelPrefix + "*" + channelSuffix
	outboxSize     = 256
)

// Hub fans recorder events out to websocket listeners. With redis configured
// every event goes through pub/sub so listeners on any instance see it;
// without redis delivery is local.
type Hub struct {
	redis  *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string]map[*Listener]struct{}
	closed    bool

	outbox chan outgoing
	wg     sync.WaitGroup
	once   sync.Once
}

type Listener struct {
	RunnerID string
	Send     chan []byte
}

type outgoing struct {
	runnerID string
	payload  []byte
}

func NewHub(redisClient *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = observability.Discard()
	}
	h := &Hub{
		redis:     redisClient,
		logger:    logger.With("component", "stream"),
		listeners: map[string]map[*Listener]struct{}{},
	}

	if redisClient != nil {
		ctx := context.Background()
		h.pubsub = redisClient.PSubscribe(ctx, channelPattern)
		if _, err := h.pubsub.Receive(ctx); err != nil {
			h.logger.Warn("redis subscribe failed, falling back to local delivery", "err", err)
			_ = h.pubsub.Close()
			h.pubsub = nil
			h.redis = nil
		}
	}

	if h.redis != nil {
		h.outbox = make(chan outgoing, outboxSize)
		h.wg.Add(2)
		go h.publishLoop()
		go h.subscribeLoop()
	}
	return h
}

func (h *Hub) Register(runnerID string) *Listener {
	l := &Listener{
		RunnerID: runnerID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[runnerID] == nil {
		h.listeners[runnerID] = map[*Listener]struct{}{}
	}
	h.listeners[runnerID][l] = struct{}{}
	return l
}

func (h *Hub) Unregister(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.listeners[l.RunnerID]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, l.RunnerID)
	}
	close(l.Send)
}

// Observe is a tracking.RecorderConfig Observer. It never blocks the caller.
func (h *Hub) Observe(ev tracking.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "err", err)
		return
	}
	h.Broadcast(ev.RunnerID, payload)
}

func (h *Hub) Broadcast(runnerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if h.outbox == nil {
		h.deliverLocked(runnerID, payload)
		return
	}
	select {
	case h.outbox <- outgoing{runnerID: runnerID, payload: payload}:
	default:
		h.logger.Warn("stream outbox full, dropping event", "runner_id", runnerID)
	}
}

// Close stops the redis loops. Local listeners are left registered.
func (h *Hub) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		if h.outbox != nil {
			close(h.outbox)
		}
		h.mu.Unlock()
		if h.pubsub != nil {
			_ = h.pubsub.Close()
		}
		h.wg.Wait()
	})
}

func (h *Hub) deliver(runnerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(runnerID, payload)
}

func (h *Hub) deliverLocked(runnerID string, payload []byte) {
	for l := range h.listeners[runnerID] {
		select {
		case l.Send <- payload:
		default:
		}
	}
}

func (h *Hub) publishLoop() {
	defer h.wg.Done()
	for msg := range h.outbox {
		err := h.redis.Publish(context.Background(), redisChannel(msg.runnerID), msg.payload).Err()
		if err != nil {
			h.logger.Warn("redis publish failed, delivering locally", "err", err)
			h.deliver(msg.runnerID, msg.payload)
		}
	}
}

func (h *Hub) subscribeLoop() {
	defer h.wg.Done()
	for msg := range h.pubsub.Channel() {
		runnerID := runnerIDFromChannel(msg.Channel)
		if runnerID == "" {
			continue
		}
		h.deliver(runnerID, []byte(msg.Payload))
	}
}

func redisChannel(runnerID string) string {
	return channelPrefix + runnerID + channelSuffix
}

func runnerIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
