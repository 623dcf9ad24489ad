package domain

import (
	"errors"
	"regexp"
	"strings"
)

// boundByRe marks an area warning: "BOUND BY" and the truncated "BOUND B".
var boundByRe = regexp.MustCompile(`BOUND BY?`)

// MultiPoint is a set of positions. A nil or empty value is MULTIPOINT EMPTY.
type MultiPoint []Coordinate

// MultiLineString is a set of tracklines, each of at least two positions.
type MultiLineString [][]Coordinate

// MultiPolygon is a set of single-ring polygons. Every ring is closed: its
// last position equals its first.
type MultiPolygon [][]Coordinate

// Geometry holds the three geometry slots produced for every report. More
// than one slot may be populated when the text matches several triggers.
type Geometry struct {
	Points   MultiPoint
	Lines    MultiLineString
	Polygons MultiPolygon
}

// IsEmpty reports whether no slot holds a geometry.
func (g Geometry) IsEmpty() bool {
	return len(g.Points) == 0 && len(g.Lines) == 0 && len(g.Polygons) == 0
}

// BuildGeometry derives point, trackline and area geometries from report
// text. The three extractions run independently:
//
//   - points, unless the text mentions TRACKLINE, BOUND B or (NAIS)
//   - one line per sub-paragraph with at least two positions, if TRACKLINE
//   - one closed ring per sub-paragraph with at least three positions, if
//     BOUND B or BOUND BY
//
// A scope whose latitude and longitude counts differ contributes nothing. A
// scope containing a token that fails [ParseCoordinate] also contributes
// nothing, and the token is reported in the returned error. The geometry is
// valid even when err is non-nil.
func BuildGeometry(report string) (Geometry, error) {
	single := SingleLine(report)
	paragraphs := SplitParagraphs(single)

	var (
		g    Geometry
		errs []error
	)

	if !strings.Contains(single, "TRACKLINE") &&
		!strings.Contains(single, "BOUND B") &&
		!strings.Contains(single, "(NAIS)") {
		coords, err := scopeCoordinates(single)
		if err != nil {
			errs = append(errs, err)
		}
		g.Points = MultiPoint(coords)
	}

	if strings.Contains(single, "TRACKLINE") {
		for _, p := range paragraphs {
			coords, err := scopeCoordinates(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(coords) >= 2 {
				g.Lines = append(g.Lines, coords)
			}
		}
	}

	if boundByRe.MatchString(single) {
		for _, p := range paragraphs {
			coords, err := scopeCoordinates(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if len(coords) >= 3 {
				g.Polygons = append(g.Polygons, closeRing(coords))
			}
		}
	}

	return g, errors.Join(errs...)
}

// scopeCoordinates extracts and pairs the positions in one scope. It returns
// nil when the latitude and longitude counts differ.
func scopeCoordinates(text string) ([]Coordinate, error) {
	lats, lons, err := extractLatLons(text)
	if err != nil {
		return nil, err
	}
	if len(lats) == 0 {
		return nil, nil
	}
	return pairCoordinates(lats, lons), nil
}

func closeRing(coords []Coordinate) []Coordinate {
	ring := make([]Coordinate, 0, len(coords)+1)
	ring = append(ring, coords...)
	return append(ring, coords[0])
}
