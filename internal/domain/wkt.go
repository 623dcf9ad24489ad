package domain

import (
	"strconv"
	"strings"
)

// WKT renders the points as "MULTIPOINT((x y),(x y))".
func (mp MultiPoint) WKT() string {
	if len(mp) == 0 {
		return "MULTIPOINT EMPTY"
	}
	var b strings.Builder
	b.WriteString("MULTIPOINT(")
	for i, c := range mp {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		writePosition(&b, c)
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// WKT renders the lines as "MULTILINESTRING((x y,x y),(x y,x y))".
func (ml MultiLineString) WKT() string {
	if len(ml) == 0 {
		return "MULTILINESTRING EMPTY"
	}
	var b strings.Builder
	b.WriteString("MULTILINESTRING(")
	for i, line := range ml {
		if i > 0 {
			b.WriteByte(',')
		}
		writeSequence(&b, line)
	}
	b.WriteByte(')')
	return b.String()
}

// WKT renders the polygons as "MULTIPOLYGON(((x y,x y,x y,x y)),...)".
func (mp MultiPolygon) WKT() string {
	if len(mp) == 0 {
		return "MULTIPOLYGON EMPTY"
	}
	var b strings.Builder
	b.WriteString("MULTIPOLYGON(")
	for i, ring := range mp {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		writeSequence(&b, ring)
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

func writeSequence(b *strings.Builder, coords []Coordinate) {
	b.WriteByte('(')
	for i, c := range coords {
		if i > 0 {
			b.WriteByte(',')
		}
		writePosition(b, c)
	}
	b.WriteByte(')')
}

// writePosition writes "lon lat" with six decimals.
func writePosition(b *strings.Builder, c Coordinate) {
	b.WriteString(strconv.FormatFloat(c.Lon, 'f', 6, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(c.Lat, 'f', 6, 64))
}
