package tracking

import (
	"fmt"
	"time"

	"backend-runtracker/internal/shared/geo"
)

type State int

const (
	StateIdle State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "active":
		*s = StateActive
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

type PathPoint struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (p PathPoint) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lng: p.Lng}
}

// Session is the mutable state of one tracking interval. Only the recorder
// loop reads or writes it.
type Session struct {
	State          State
	StartedAt      time.Time
	ElapsedSeconds int64
	Path           []PathPoint
}

// Record is the finalized summary of a stopped session. All magnitudes are SI.
type Record struct {
	ID              string      `json:"id"`
	DistanceM       float64     `json:"distance_m"`
	DurationSec     int64       `json:"duration_sec"`
	AverageSpeedMps float64     `json:"average_speed_mps"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         time.Time   `json:"ended_at"`
	Path            []PathPoint `json:"path"`
}

// Clone returns r with its own copy of Path.
func (r Record) Clone() Record {
	if r.Path != nil {
		r.Path = append([]PathPoint(nil), r.Path...)
	}
	return r
}

type Status struct {
	State          State     `json:"state"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	PointCount     int       `json:"point_count"`
	FeedError      string    `json:"feed_error,omitempty"`
	HasPending     bool      `json:"has_pending"`
}

// Update is a single delivery from a PositionSource. A non-nil Err reports a
// feed failure; Position is then zero.
type Update struct {
	Position PathPoint
	Err      error
}
