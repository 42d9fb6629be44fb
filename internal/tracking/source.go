package tracking

import (
	"context"
	"strings"
)

type Accuracy int

const (
	AccuracyHigh Accuracy = iota
	AccuracyBalanced
	AccuracyLow
)

// ParseAccuracy maps a config value to an Accuracy; unknown values map to high.
func ParseAccuracy(s string) Accuracy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "balanced":
		return AccuracyBalanced
	case "low":
		return AccuracyLow
	default:
		return AccuracyHigh
	}
}

// MaxErrorM is the worst reported accuracy a sample may have for this class.
// Zero means no limit.
func (a Accuracy) MaxErrorM() float64 {
	switch a {
	case AccuracyHigh:
		return 20
	case AccuracyBalanced:
		return 100
	default:
		return 0
	}
}

type SubscribeOptions struct {
	Accuracy     Accuracy
	MinDistanceM float64
}

// PositionSource delivers position samples asynchronously, in arrival order.
type PositionSource interface {
	// RequestAccess returns an error wrapping ErrPermissionDenied when the
	// runner has not granted location access.
	RequestAccess(ctx context.Context) error
	Subscribe(onUpdate func(Update), opts SubscribeOptions) (Subscription, error)
}

// Subscription.Cancel is idempotent. Once it returns no new callbacks start.
type Subscription interface {
	Cancel()
}
