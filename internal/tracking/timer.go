package tracking

import (
	"sync"
	"time"
)

// Ticker drives the elapsed-time counter of a session.
type Ticker interface {
	Start(onTick func())
	// Stop is idempotent; no tick fires after it returns.
	Stop()
}

type SecondTimer struct {
	Interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSecondTimer(interval time.Duration) *SecondTimer {
	if interval <= 0 {
		interval = time.Second
	}
	return &SecondTimer{Interval: interval}
}

func (t *SecondTimer) Start(onTick func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// both cases may be ready; stop wins
				select {
				case <-stop:
					return
				default:
				}
				onTick()
			}
		}
	}()
}

func (t *SecondTimer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
