package domain

import (
	"time"
)

// Bulletin is the raw daily memorandum text for one broadcast source.
type Bulletin struct {
	Source    string
	FetchedAt time.Time
	Text      string
}

// Report is one safety warning cut from a Bulletin.
type Report struct {
	Source  string
	Text    string
	InForce *time.Time // broadcast DTG from the bulletin header, if present
}

// Coordinate is a WGS-84 position in signed decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ExtractedFields holds the structured attributes pulled from a report.
// Absent values stay nil; placeholders are applied by [ToRow].
type ExtractedFields struct {
	NavArea      *string    `json:"nav_area,omitempty"`
	MessageDTG   *time.Time `json:"message_dtg,omitempty"`
	Cancellation *time.Time `json:"cancellation,omitempty"`
	Region       *string    `json:"region,omitempty"`
	Countries    []string   `json:"countries,omitempty"`
	Charts       []string   `json:"charts,omitempty"`
	Vessels      []string   `json:"vessels,omitempty"`
}

// OutputRecord is the domain-rich result of transforming one Report.
type OutputRecord struct {
	ID          string
	Source      string
	Fields      ExtractedFields
	Geometry    Geometry
	Raw         string
	InForce     *time.Time
	Malformed   bool
	ProcessedAt time.Time
}

// MalformedReport is a report routed to manual review.
type MalformedReport struct {
	Source string
	Text   string
	Reason string
}

// OutputEvent is the serialized form destined for a message sink.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
