package journal

import (
	"time"

	"backend-runtracker/internal/shared/geo"
	"backend-runtracker/internal/tracking"
)

// Entry is a saved run: the finished Record plus what the runner wrote
// about it.
type Entry struct {
	ID        string          `json:"id"`
	Note      string          `json:"note"`
	PhotoURL  string          `json:"photo_url,omitempty"`
	Location  *geo.Coordinate `json:"location,omitempty"`
	Record    tracking.Record `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
}

type Annotation struct {
	Note     string          `json:"note"`
	PhotoURL string          `json:"photo_url"`
	Location *geo.Coordinate `json:"location"`
}
