package domain

import (
	"regexp"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
)

var (
	// navAreaRe matches the warning identifier line, e.g. "HYDROPAC 1502/22(97)."
	// or "NAVAREA XII 245/22(GEN).".
	navAreaRe = regexp.MustCompile(`(?m)^[ \t]*((?:NAVAREA|HYDRO)[^.\n]*)\.`)

	chartRe = regexp.MustCompile(`CHART \d*`)
	dncRe   = regexp.MustCompile(`DNC \d{2}`)
)

// Extractor pulls structured fields out of report text. It is safe for
// concurrent use once constructed.
type Extractor struct {
	rules     Rules
	vesselRes []*regexp.Regexp
	clock     clockwork.Clock
}

// NewExtractor compiles the vessel patterns for rules. A nil clock uses real
// time; the clock only supplies the year for DTGs that omit one.
func NewExtractor(rules Rules, clk clockwork.Clock) *Extractor {
	rules = rules.Clone()
	res := make([]*regexp.Regexp, 0, len(rules.VesselTerminators))
	for _, term := range rules.VesselTerminators {
		res = append(res, regexp.MustCompile(`M/V ([A-Z0-9\- ]*)`+regexp.QuoteMeta(term)))
	}
	return &Extractor{rules: rules, vesselRes: res, clock: orRealClock(clk)}
}

// Correct applies the configured corrections table. Call it exactly once per
// report; corrections are not idempotent.
func (e *Extractor) Correct(text string) string {
	return e.rules.Correct(text)
}

// Rules returns a copy of the tables the extractor was built with.
func (e *Extractor) Rules() Rules {
	return e.rules.Clone()
}

// Extract returns the fields found in an already-corrected report. Absent
// values are left nil.
func (e *Extractor) Extract(report string) ExtractedFields {
	year := e.clock.Now().UTC().Year()

	fields := ExtractedFields{
		NavArea:    e.navArea(report),
		MessageDTG: parseDTG(dtgRe.FindString(report), year),
		Countries:  e.countries(report),
		Charts:     charts(report),
		Vessels:    e.vessels(report),
	}
	// The cancel paragraph may wrap between the keyword and the DTG.
	if m := cancelDTGRe.FindStringSubmatch(SingleLine(report)); m != nil {
		fields.Cancellation = parseDTG(m[1], year)
	}
	fields.Region, _, _ = Classify(report, e.rules)
	return fields
}

func (e *Extractor) navArea(report string) *string {
	m := navAreaRe.FindStringSubmatch(report)
	if m == nil {
		return nil
	}
	id := strings.TrimSpace(m[1])
	return &id
}

// countries returns the sorted gazetteer entries that appear in report.
func (e *Extractor) countries(report string) []string {
	var found []string
	for _, c := range e.rules.Countries {
		if strings.Contains(report, c) && !slices.Contains(found, c) {
			found = append(found, c)
		}
	}
	slices.Sort(found)
	return found
}

// charts extracts chart references. CHART numbers win over DNC numbers; the
// two modes never mix.
func charts(report string) []string {
	var raw []string
	switch {
	case strings.Contains(report, "CHART"):
		raw = chartRe.FindAllString(report, -1)
	case strings.Contains(report, "DNC "):
		raw = dncRe.FindAllString(report, -1)
	default:
		return nil
	}

	var out []string
	for _, c := range raw {
		c = strings.TrimSpace(c)
		// "CHART" with no number carries no reference.
		if c == "CHART" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// vessels collects "M/V <name>" mentions ended by each terminator in turn. A
// mention ended by more than one terminator appears once per terminator.
func (e *Extractor) vessels(report string) []string {
	if !strings.Contains(report, "M/V") {
		return nil
	}
	for _, ex := range e.rules.VesselExclusions {
		if strings.Contains(report, ex) {
			return nil
		}
	}

	var names []string
	for _, re := range e.vesselRes {
		for _, m := range re.FindAllStringSubmatch(report, -1) {
			names = append(names, "M/V "+m[1])
		}
	}
	return names
}
