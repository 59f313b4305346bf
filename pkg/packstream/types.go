package packstream

import "time"

// Node is a hydrated Node structure (spec §3, signature SigNode).
type Node struct {
	Id        int64
	Labels    []string
	Props     map[string]any
	ElementId string
}

// Relationship is a hydrated Relationship structure (spec §3, SigRelationship).
type Relationship struct {
	Id             int64
	StartId, EndId int64
	Type           string
	Props          map[string]any
	ElementId      string
	StartElementId string
	EndElementId   string
}

// UnboundRelationship is a Relationship without its endpoints, as it
// appears embedded in a Path (spec §3, SigUnboundRelationship).
type UnboundRelationship struct {
	Id        int64
	Type      string
	Props     map[string]any
	ElementId string
}

// Path is an alternating sequence of nodes and relationships (spec §3).
type Path struct {
	Nodes         []Node
	Relationships []UnboundRelationship
	// Sequence alternates relationship-index (1-based, negative for
	// reversed traversal direction) and node-index (0-based) pairs, per
	// the wire Path structure's compact encoding.
	Sequence []int64
}

// Point2D is a 2D spatial value (spec §3, SigPoint2D).
type Point2D struct {
	SRID uint32
	X, Y float64
}

// Point3D is a 3D spatial value (spec §3, SigPoint3D).
type Point3D struct {
	SRID    uint32
	X, Y, Z float64
}

// Date is a calendar date with no time-of-day component (SigDate).
type Date time.Time

// Time is a time-of-day with a UTC offset, no calendar date (SigTime).
type Time time.Time

// LocalTime is a time-of-day with no offset or calendar date (SigLocalTime).
type LocalTime time.Time

// LocalDateTime is a wall-clock date+time with no offset (SigLocalDateTime).
type LocalDateTime time.Time

// DateTime is a full date+time with either a fixed UTC offset or a named
// zone (SigLegacyDateTimeOffset/ZoneID, SigUtcDateTimeOffset/ZoneID). It is
// represented as a standard time.Time; the Location carries the zone.
type DateTime time.Time

// Duration is an ISO-8601-like duration split into calendar and clock
// components (SigDuration): months and days are calendar units (no fixed
// length), seconds and nanoseconds are exact clock units.
type Duration struct {
	Months, Days, Seconds int64
	Nanos                 int
}

// Struct is the fallback representation for a structure whose signature is
// not recognized by the active protocol version's dispatch table (spec
// §4.2 "Structure dispatch"): callers can inspect it but it is never
// hydrated into one of the domain types above.
type Struct struct {
	Tag    byte
	Fields []any
}
