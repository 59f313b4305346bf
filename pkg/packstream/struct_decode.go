package packstream

import "time"

// HydratorOptions configures DefaultHydrator for a particular protocol
// version (spec §4.2 "look up its signature in a per-protocol-version
// table"). UseUtc selects which DateTime signatures are recognized.
type HydratorOptions struct {
	UseUtc bool
}

// DefaultHydrator returns a Hydrator recognizing every structure signature
// listed in spec §6.3/§3, appropriate for opts. Protocol versions that
// don't support a given structure (e.g. no ElementId before Bolt 5.0)
// simply never receive a Fields slice of the corresponding length, so the
// same hydrator table is safe to share across versions — see the Node/
// Relationship arity branches below.
func DefaultHydrator(opts HydratorOptions) Hydrator {
	return func(s Struct) (any, bool) {
		switch s.Tag {
		case SigNode:
			return hydrateNode(s)
		case SigRelationship:
			return hydrateRelationship(s)
		case SigUnboundRelationship:
			return hydrateUnboundRelationship(s)
		case SigPath:
			return hydratePath(s)
		case SigPoint2D:
			return hydratePoint2D(s)
		case SigPoint3D:
			return hydratePoint3D(s)
		case SigDate:
			return hydrateDate(s)
		case SigTime:
			return hydrateTime(s)
		case SigLocalTime:
			return hydrateLocalTime(s)
		case SigLocalDateTime:
			return hydrateLocalDateTime(s)
		case SigDuration:
			return hydrateDuration(s)
		case SigLegacyDateTimeOffset:
			if opts.UseUtc {
				return nil, false
			}
			return hydrateDateTimeOffset(s, false)
		case SigLegacyDateTimeZoneID:
			if opts.UseUtc {
				return nil, false
			}
			return hydrateDateTimeZoneID(s, false)
		case SigUtcDateTimeOffset:
			if !opts.UseUtc {
				return nil, false
			}
			return hydrateDateTimeOffset(s, true)
		case SigUtcDateTimeZoneID:
			if !opts.UseUtc {
				return nil, false
			}
			return hydrateDateTimeZoneID(s, true)
		default:
			return nil, false
		}
	}
}

func asInt64(v any) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func hydrateNode(s Struct) (any, bool) {
	if len(s.Fields) < 3 {
		return nil, false
	}
	id, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	labelsAny, ok := asList(s.Fields[1])
	if !ok {
		return nil, false
	}
	props, ok := asMap(s.Fields[2])
	if !ok {
		return nil, false
	}
	labels := make([]string, 0, len(labelsAny))
	for _, l := range labelsAny {
		if str, ok := asString(l); ok {
			labels = append(labels, str)
		}
	}
	n := Node{Id: id, Labels: labels, Props: props}
	if len(s.Fields) > 3 {
		if eid, ok := asString(s.Fields[3]); ok {
			n.ElementId = eid
		}
	}
	return n, true
}

func hydrateRelationship(s Struct) (any, bool) {
	if len(s.Fields) < 5 {
		return nil, false
	}
	id, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	startID, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	endID, ok := asInt64(s.Fields[2])
	if !ok {
		return nil, false
	}
	relType, ok := asString(s.Fields[3])
	if !ok {
		return nil, false
	}
	props, ok := asMap(s.Fields[4])
	if !ok {
		return nil, false
	}
	r := Relationship{Id: id, StartId: startID, EndId: endID, Type: relType, Props: props}
	if len(s.Fields) > 7 {
		if eid, ok := asString(s.Fields[5]); ok {
			r.ElementId = eid
		}
		if seid, ok := asString(s.Fields[6]); ok {
			r.StartElementId = seid
		}
		if eeid, ok := asString(s.Fields[7]); ok {
			r.EndElementId = eeid
		}
	}
	return r, true
}

func hydrateUnboundRelationship(s Struct) (any, bool) {
	if len(s.Fields) < 3 {
		return nil, false
	}
	id, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	relType, ok := asString(s.Fields[1])
	if !ok {
		return nil, false
	}
	props, ok := asMap(s.Fields[2])
	if !ok {
		return nil, false
	}
	u := UnboundRelationship{Id: id, Type: relType, Props: props}
	if len(s.Fields) > 3 {
		if eid, ok := asString(s.Fields[3]); ok {
			u.ElementId = eid
		}
	}
	return u, true
}

func hydratePath(s Struct) (any, bool) {
	if len(s.Fields) != 3 {
		return nil, false
	}
	nodesAny, ok := asList(s.Fields[0])
	if !ok {
		return nil, false
	}
	relsAny, ok := asList(s.Fields[1])
	if !ok {
		return nil, false
	}
	seqAny, ok := asList(s.Fields[2])
	if !ok {
		return nil, false
	}
	p := Path{
		Nodes:         make([]Node, 0, len(nodesAny)),
		Relationships: make([]UnboundRelationship, 0, len(relsAny)),
		Sequence:      make([]int64, 0, len(seqAny)),
	}
	for _, na := range nodesAny {
		if n, ok := na.(Node); ok {
			p.Nodes = append(p.Nodes, n)
		}
	}
	for _, ra := range relsAny {
		if r, ok := ra.(UnboundRelationship); ok {
			p.Relationships = append(p.Relationships, r)
		}
	}
	for _, sa := range seqAny {
		if i, ok := asInt64(sa); ok {
			p.Sequence = append(p.Sequence, i)
		}
	}
	return p, true
}

func hydratePoint2D(s Struct) (any, bool) {
	if len(s.Fields) != 3 {
		return nil, false
	}
	srid, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	x, ok := s.Fields[1].(float64)
	if !ok {
		return nil, false
	}
	y, ok := s.Fields[2].(float64)
	if !ok {
		return nil, false
	}
	return Point2D{SRID: uint32(srid), X: x, Y: y}, true
}

func hydratePoint3D(s Struct) (any, bool) {
	if len(s.Fields) != 4 {
		return nil, false
	}
	srid, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	x, ok := s.Fields[1].(float64)
	if !ok {
		return nil, false
	}
	y, ok := s.Fields[2].(float64)
	if !ok {
		return nil, false
	}
	z, ok := s.Fields[3].(float64)
	if !ok {
		return nil, false
	}
	return Point3D{SRID: uint32(srid), X: x, Y: y, Z: z}, true
}

func hydrateDate(s Struct) (any, bool) {
	if len(s.Fields) != 1 {
		return nil, false
	}
	days, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	return Date(time.Unix(days*60*60*24, 0).UTC()), true
}

func hydrateTime(s Struct) (any, bool) {
	if len(s.Fields) != 2 {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	offsetSecs, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	loc := time.FixedZone("Offset", int(offsetSecs))
	midnight := time.Date(1970, 1, 1, 0, 0, 0, 0, loc)
	return Time(midnight.Add(time.Duration(nanos))), true
}

func hydrateLocalTime(s Struct) (any, bool) {
	if len(s.Fields) != 1 {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	midnight := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	return LocalTime(midnight.Add(time.Duration(nanos))), true
}

func hydrateLocalDateTime(s Struct) (any, bool) {
	if len(s.Fields) != 2 {
		return nil, false
	}
	secs, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	return LocalDateTime(time.Unix(secs, nanos).UTC()), true
}

func hydrateDuration(s Struct) (any, bool) {
	if len(s.Fields) != 4 {
		return nil, false
	}
	months, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	days, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	secs, ok := asInt64(s.Fields[2])
	if !ok {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[3])
	if !ok {
		return nil, false
	}
	return Duration{Months: months, Days: days, Seconds: secs, Nanos: int(nanos)}, true
}

func hydrateDateTimeOffset(s Struct, utc bool) (any, bool) {
	if len(s.Fields) != 3 {
		return nil, false
	}
	secs, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	offsetSecs, ok := asInt64(s.Fields[2])
	if !ok {
		return nil, false
	}
	loc := time.FixedZone("Offset", int(offsetSecs))
	if utc {
		return DateTime(time.Unix(secs, nanos).In(loc)), true
	}
	// Legacy encoding stores secs already shifted by the offset.
	return DateTime(time.Unix(secs-offsetSecs, nanos).In(loc)), true
}

func hydrateDateTimeZoneID(s Struct, utc bool) (any, bool) {
	if len(s.Fields) != 3 {
		return nil, false
	}
	secs, ok := asInt64(s.Fields[0])
	if !ok {
		return nil, false
	}
	nanos, ok := asInt64(s.Fields[1])
	if !ok {
		return nil, false
	}
	zoneName, ok := asString(s.Fields[2])
	if !ok {
		return nil, false
	}
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		loc = time.UTC
	}
	if utc {
		return DateTime(time.Unix(secs, nanos).In(loc)), true
	}
	t := time.Unix(secs, nanos).In(loc)
	_, offset := t.Zone()
	return DateTime(time.Unix(secs-int64(offset), nanos).In(loc)), true
}
