package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	// latRe and lonRe find candidate coordinate tokens in free text, e.g.
	// "30-00N" or "070-21.2W". They are deliberately loose; every hit is
	// validated by ParseCoordinate.
	latRe = regexp.MustCompile(`\d{1,2}-[\d\-.]+\d[NS]`)
	lonRe = regexp.MustCompile(`\d{1,3}-[\d\-.]+\d[WE]`)

	// coordDMRe: degrees-decimal minutes, e.g. "070-21.2W".
	coordDMRe = regexp.MustCompile(`^(\d{1,3})-(\d+(?:\.\d+)?)([NSEW])$`)
	// coordDMSRe: degrees-minutes-decimal seconds, e.g. "20-54-41N".
	coordDMSRe = regexp.MustCompile(`^(\d{1,3})-(\d+)-(\d+(?:\.\d+)?)([NSEW])$`)
)

// FormatError reports a coordinate token outside the accepted grammar.
type FormatError struct {
	Token string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid coordinate %q", e.Token)
}

// ParseCoordinate converts a hemisphere-suffixed degrees token into signed
// decimal degrees. Two dash-separated groups are degrees and decimal minutes;
// three are degrees, whole minutes and decimal seconds. S and W are negative.
func ParseCoordinate(token string) (float64, error) {
	var (
		dd   float64
		hemi string
	)

	if m := coordDMSRe.FindStringSubmatch(token); m != nil {
		d, _ := strconv.ParseFloat(m[1], 64)
		mins, _ := strconv.ParseFloat(m[2], 64)
		secs, _ := strconv.ParseFloat(m[3], 64)
		dd = d + mins/60 + secs/3600
		hemi = m[4]
	} else if m := coordDMRe.FindStringSubmatch(token); m != nil {
		d, _ := strconv.ParseFloat(m[1], 64)
		mins, _ := strconv.ParseFloat(m[2], 64)
		dd = d + mins/60
		hemi = m[3]
	} else {
		return 0, &FormatError{Token: token}
	}

	if hemi == "S" || hemi == "W" {
		dd = -dd
	}
	return dd, nil
}

// PositionalPairing documents how latitudes and longitudes are combined:
// both lists are extracted independently and zipped by index. Source text
// that lists coordinates out of order produces wrong pairs rather than an
// error. The behavior is kept for compatibility with existing output.
const PositionalPairing = "lat/lon tokens are paired by order of appearance"

// extractLatLons finds and parses every latitude and longitude token in
// text. Any token that fails to parse invalidates the whole scope.
func extractLatLons(text string) (lats, lons []float64, err error) {
	var errs []error
	for _, tok := range latRe.FindAllString(text, -1) {
		v, perr := ParseCoordinate(tok)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		lats = append(lats, v)
	}
	for _, tok := range lonRe.FindAllString(text, -1) {
		v, perr := ParseCoordinate(tok)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		lons = append(lons, v)
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	return lats, lons, nil
}

// pairCoordinates zips lats and lons by position. It returns nil when the
// counts differ.
func pairCoordinates(lats, lons []float64) []Coordinate {
	if len(lats) != len(lons) {
		return nil
	}
	coords := make([]Coordinate, len(lats))
	for i := range lats {
		coords[i] = Coordinate{Lat: lats[i], Lon: lons[i]}
	}
	return coords
}
