package tracking

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Builder struct {
	newID func(startedAt time.Time) string
}

func NewBuilder() Builder {
	return Builder{newID: recordID}
}

// Build snapshots a terminated session into a Record.
func (b Builder) Build(session Session, distanceM float64, durationSec int64, speedMps float64, endedAt time.Time) Record {
	newID := b.newID
	if newID == nil {
		newID = recordID
	}
	if durationSec < 0 {
		durationSec = 0
	}

	path := make([]PathPoint, len(session.Path))
	copy(path, session.Path)

	return Record{
		ID:              newID(session.StartedAt),
		DistanceM:       nonNegative(distanceM),
		DurationSec:     durationSec,
		AverageSpeedMps: nonNegative(speedMps),
		StartedAt:       session.StartedAt,
		EndedAt:         endedAt,
		Path:            path,
	}
}

func recordID(startedAt time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return startedAt.UTC().Format("20060102T150405") + "-" + suffix
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// averageSpeed returns 0 for a zero duration.
func averageSpeed(distanceM float64, durationSec int64) float64 {
	if durationSec <= 0 {
		return 0
	}
	return distanceM / float64(durationSec)
}
