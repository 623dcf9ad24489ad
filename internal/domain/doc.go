// Package domain models NGA Maritime Safety Information (MSI) broadcast
// warnings and the rules for turning their free text into structured rows.
//
// # Data Source
//
// The NGA publishes a daily memorandum per broadcast area as plain text:
// NAVAREA IV (Atlantic), NAVAREA XII (Pacific), HYDROLANT, HYDROPAC and
// HYDROARC. Each memorandum starts with a few header blocks followed by the
// individual warnings. A warning looks like:
//
//	041130Z MAY 22
//	HYDROPAC 1502/22(97).
//	EAST CHINA SEA.
//	1. HAZARDOUS OPERATIONS 0100Z TO 0900Z DAILY
//	   IN AREA BOUND BY
//	   30-00N 123-00E, 30-00N 124-00E,
//	   29-00N 124-00E.
//	2. CANCEL THIS MSG 100900Z MAY 22.//
//
// # Conventions
//
// Date-time groups (DTG):
//
//	"DDHHMMZ MON YY", e.g. "041130Z MAY 22" = 4 May 2022 11:30 UTC.
//	The year is sometimes omitted; the processing year is assumed.
//
// Coordinates:
//
//	Degrees and decimal minutes:        "070-21.2W"   → -(70 + 21.2/60)
//	Degrees, minutes, decimal seconds:  "20-54-41N"   → 20 + 54/60 + 41/3600
//	Latitudes and longitudes appear as separate tokens and are paired by
//	their order of appearance. See [PositionalPairing].
//
// Paragraphs:
//
//	The warning body is split into the NAV identifier, the region label and
//	the numbered body by a period followed by a newline. Numbered ("1.") and
//	lettered ("A.") sub-paragraphs delimit the individual tracklines or areas
//	of a multi-part warning.
//
// # Geometry
//
// Geometries are rendered as well-known text (WKT) multi-geometries with the
// x (longitude) before y (latitude). Empty geometries use the EMPTY keyword
// so downstream GIS consumers can parse every row.
//
// # ID Generation
//
// Record IDs are SHA-256 hashes of source|report text, so re-running a
// bulletin produces identical keys for idempotent upserts. See [RecordID].
package domain
