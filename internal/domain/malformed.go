package domain

import "strings"

// Reasons a report is routed to manual review.
const (
	ReasonTooFewParagraphs = "fewer than three paragraphs"
	ReasonSummaryListing   = "second paragraph is a warnings-in-force listing"
	ReasonCoordinates      = "unparseable coordinates"
	ReasonPanic            = "transform panicked"
)

// Classify determines the region label of a report and whether the report
// has the expected identifier / region / body shape.
//
// The first exception keyword found in the text becomes the region and the
// report is well formed regardless of its paragraphs. Otherwise the report is
// split on period-newline and the second paragraph is the region. Reports
// with too few paragraphs, or whose second paragraph is the warnings-in-force
// boilerplate, are malformed and get a nil region.
func Classify(report string, rules Rules) (region *string, reason string, malformed bool) {
	if kw, ok := rules.exceptionKeyword(report); ok {
		return &kw, "", false
	}

	parsed := reportParagraphs(report)
	if len(parsed) <= 2 {
		return nil, ReasonTooFewParagraphs, true
	}
	if strings.Contains(parsed[1], rules.BoilerplateKeyword) {
		return nil, ReasonSummaryListing, true
	}

	label := strings.TrimSpace(strings.ReplaceAll(parsed[1], "\n", " "))
	return &label, "", false
}

// reportParagraphs splits a report on period-newline after dropping the
// closing ".//" terminator.
func reportParagraphs(report string) []string {
	report = strings.TrimSuffix(strings.TrimSpace(report), ".//")
	return strings.Split(report, ".\n")
}

// MalformedSet collects malformed reports for one run, keyed by exact text.
// The first occurrence wins and insertion order is kept.
type MalformedSet struct {
	seen    map[string]struct{}
	reports []MalformedReport
}

// NewMalformedSet returns an empty set.
func NewMalformedSet() *MalformedSet {
	return &MalformedSet{seen: make(map[string]struct{})}
}

// Add records r unless a report with identical text is already present.
// It reports whether r was added.
func (s *MalformedSet) Add(r MalformedReport) bool {
	if _, ok := s.seen[r.Text]; ok {
		return false
	}
	s.seen[r.Text] = struct{}{}
	s.reports = append(s.reports, r)
	return true
}

// Len returns the number of distinct reports.
func (s *MalformedSet) Len() int {
	return len(s.reports)
}

// Reports returns the collected reports in insertion order.
func (s *MalformedSet) Reports() []MalformedReport {
	out := make([]MalformedReport, len(s.reports))
	copy(out, s.reports)
	return out
}
