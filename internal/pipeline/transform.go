package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ReportTransformer turns one segmented report into an output record,
// routing reports with an unexpected shape to review.
type ReportTransformer struct {
	rules     domain.Rules
	extractor *domain.Extractor
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewTransformer creates a ReportTransformer over rules. A nil clock uses
// real time.
func NewTransformer(rules domain.Rules, clk clockwork.Clock, logger *slog.Logger) *ReportTransformer {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &ReportTransformer{
		rules:     rules.Clone(),
		extractor: domain.NewExtractor(rules, clk),
		clock:     clk,
		logger:    logger,
	}
}

// Transform corrects the report text, extracts its fields and geometry, and
// classifies its shape. The record is always returned; bad is non-nil when
// the report also needs manual review. A panic while parsing is recovered
// and treated as a malformed report.
func (t *ReportTransformer) Transform(r domain.Report) (rec domain.OutputRecord, bad *domain.MalformedReport) {
	text := r.Text
	rec = domain.OutputRecord{
		ID:          domain.RecordID(r.Source, text),
		Source:      r.Source,
		Raw:         text,
		InForce:     r.InForce,
		ProcessedAt: t.clock.Now().UTC(),
	}

	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("report transform panicked",
				"source", r.Source, "id", rec.ID, "panic", fmt.Sprint(p))
			rec.Malformed = true
			bad = &domain.MalformedReport{Source: r.Source, Text: text, Reason: domain.ReasonPanic}
		}
	}()

	text = t.extractor.Correct(text)
	rec.ID = domain.RecordID(r.Source, text)
	rec.Raw = text
	rec.Fields = t.extractor.Extract(text)

	geom, err := domain.BuildGeometry(text)
	rec.Geometry = geom

	_, reason, malformed := domain.Classify(text, t.rules)
	if err != nil {
		t.logger.Warn("unparseable coordinates in report",
			"source", r.Source, "id", rec.ID, "error", err)
		if !malformed {
			reason, malformed = domain.ReasonCoordinates, true
		}
	}

	if malformed {
		rec.Malformed = true
		bad = &domain.MalformedReport{Source: r.Source, Text: text, Reason: reason}
	}
	return rec, bad
}
