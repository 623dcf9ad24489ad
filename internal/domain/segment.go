package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// dtgLineRe matches a DTG standing alone on its line, which is how every
	// warning in a memorandum begins: "041130Z MAY 22".
	dtgLineRe = regexp.MustCompile(`(?m)^[ \t]*\d{6}Z [A-Z]{3}(?: \d{2})?[ \t]*$`)

	// paragraphMarkerRe matches numbered and lettered sub-paragraph markers in
	// single-line text, e.g. " 1. " or " B. ".
	paragraphMarkerRe = regexp.MustCompile(` [1-9A-Z]\. `)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// DefaultHeaderBlocks is the number of blank-line separated blocks at the top
// of a memorandum that carry boilerplate rather than warnings.
const DefaultHeaderBlocks = 3

// Segmenter cuts bulletins into reports.
type Segmenter struct {
	headerBlocks int
	clock        clockwork.Clock
}

// NewSegmenter creates a Segmenter that skips headerBlocks leading blocks.
// A negative value selects DefaultHeaderBlocks. A nil clock uses real time.
func NewSegmenter(headerBlocks int, clk clockwork.Clock) *Segmenter {
	if headerBlocks < 0 {
		headerBlocks = DefaultHeaderBlocks
	}
	return &Segmenter{headerBlocks: headerBlocks, clock: orRealClock(clk)}
}

// Split returns the reports of a bulletin in order of appearance. Each report
// starts at a standalone DTG line and runs to the next one. Text between the
// header and the first DTG line carries no DTG and is discarded.
func (s *Segmenter) Split(b Bulletin) []Report {
	text := normalizeBulletin(b.Text)
	header, body := s.splitHeader(text)

	inForce := s.findInForce(header)

	bounds := dtgLineRe.FindAllStringIndex(body, -1)
	reports := make([]Report, 0, len(bounds))
	for i, loc := range bounds {
		end := len(body)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		chunk := strings.TrimSpace(body[loc[0]:end])
		if chunk == "" {
			continue
		}
		reports = append(reports, Report{
			Source:  b.Source,
			Text:    chunk,
			InForce: inForce,
		})
	}
	return reports
}

// splitHeader separates the leading header blocks from the rest of the text.
func (s *Segmenter) splitHeader(text string) (header, body string) {
	blocks := strings.Split(text, "\n\n")
	nonEmpty := 0
	for i, blk := range blocks {
		if strings.TrimSpace(blk) == "" {
			continue
		}
		if nonEmpty == s.headerBlocks {
			return strings.Join(blocks[:i], "\n\n"), strings.Join(blocks[i:], "\n\n")
		}
		nonEmpty++
	}
	return text, ""
}

// findInForce returns the broadcast DTG from the first header block.
func (s *Segmenter) findInForce(header string) *time.Time {
	for _, blk := range strings.Split(header, "\n\n") {
		if strings.TrimSpace(blk) == "" {
			continue
		}
		return parseDTG(dtgRe.FindString(blk), s.clock.Now().UTC().Year())
	}
	return nil
}

// normalizeBulletin strips carriage returns and the stray space some
// bulletins leave between a period and the newline.
func normalizeBulletin(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	return strings.ReplaceAll(text, ". \n", ".\n")
}

// SingleLine collapses every whitespace run, newlines included, to a single
// space.
func SingleLine(text string) string {
	return whitespaceRe.ReplaceAllString(text, " ")
}

// SplitParagraphs splits single-line report text on numbered and lettered
// sub-paragraph markers.
func SplitParagraphs(single string) []string {
	return paragraphMarkerRe.Split(single, -1)
}
