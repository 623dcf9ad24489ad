package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Placeholders written in place of absent values.
const (
	NavAreaPlaceholder = "---"
	RegionPlaceholder  = "----"
	VesselPlaceholder  = "----"
)

// RowHeader lists the output table columns in order.
var RowHeader = []string{
	"source",
	"nav_area",
	"message_dtg",
	"in_force",
	"cancellation_date",
	"region",
	"country",
	"chart",
	"raw_report",
	"vessels",
	"points",
	"tracklines",
	"polygons",
}

// Row is the flat, placeholder-substituted form of an OutputRecord.
type Row struct {
	ID               string `json:"id" bson:"_id"`
	Source           string `json:"source" bson:"source"`
	NavArea          string `json:"nav_area" bson:"nav_area"`
	MessageDTG       string `json:"message_dtg" bson:"message_dtg"`
	InForce          string `json:"in_force" bson:"in_force"`
	CancellationDate string `json:"cancellation_date" bson:"cancellation_date"`
	Region           string `json:"region" bson:"region"`
	Country          string `json:"country" bson:"country"`
	Chart            string `json:"chart" bson:"chart"`
	RawReport        string `json:"raw_report" bson:"raw_report"`
	Vessels          string `json:"vessels" bson:"vessels"`
	Points           string `json:"points" bson:"points"`
	Tracklines       string `json:"tracklines" bson:"tracklines"`
	Polygons         string `json:"polygons" bson:"polygons"`
	Malformed        bool   `json:"malformed" bson:"malformed"`
	ProcessedAt      string `json:"processed_at" bson:"processed_at"`
}

// ToRow applies placeholders and renders geometries as WKT.
func ToRow(rec OutputRecord) Row {
	f := rec.Fields
	vessels := VesselPlaceholder
	if len(f.Vessels) > 0 {
		vessels = strings.Join(f.Vessels, "; ")
	}
	return Row{
		ID:               rec.ID,
		Source:           rec.Source,
		NavArea:          stringOr(f.NavArea, NavAreaPlaceholder),
		MessageDTG:       formatTime(f.MessageDTG),
		InForce:          formatTime(rec.InForce),
		CancellationDate: formatTime(f.Cancellation),
		Region:           stringOr(f.Region, RegionPlaceholder),
		Country:          strings.Join(f.Countries, ","),
		Chart:            strings.Join(f.Charts, ","),
		RawReport:        rec.Raw,
		Vessels:          vessels,
		Points:           rec.Geometry.Points.WKT(),
		Tracklines:       rec.Geometry.Lines.WKT(),
		Polygons:         rec.Geometry.Polygons.WKT(),
		Malformed:        rec.Malformed,
		ProcessedAt:      formatTime(&rec.ProcessedAt),
	}
}

// Values returns the row's cells in RowHeader order.
func (r Row) Values() []string {
	return []string{
		r.Source,
		r.NavArea,
		r.MessageDTG,
		r.InForce,
		r.CancellationDate,
		r.Region,
		r.Country,
		r.Chart,
		r.RawReport,
		r.Vessels,
		r.Points,
		r.Tracklines,
		r.Polygons,
	}
}

// RecordID returns a deterministic key for a report so that re-processing
// the same bulletin upserts instead of duplicating.
func RecordID(source, text string) string {
	hash := sha256.Sum256([]byte(source + "|" + text))
	short := hex.EncodeToString(hash[:8])
	if source == "" {
		return short
	}
	return strings.ToLower(source) + "-" + short
}

// SerializeRecord marshals rec as a JSON row for a message sink.
func SerializeRecord(rec OutputRecord, runID string) (OutputEvent, error) {
	data, err := json.Marshal(ToRow(rec))
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize record %s: %w", rec.ID, err)
	}
	return OutputEvent{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: map[string]string{
			"source":       rec.Source,
			"run_id":       runID,
			"processed_at": rec.ProcessedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
