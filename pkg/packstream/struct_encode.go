package packstream

import "time"

// packStruct encodes the temporal/spatial domain types, following the real
// driver's outgoing.go packStruct switch (see the vendored fragment under
// _examples/other_examples). useUtc selects between the legacy
// offset/zone-name encoding ('F'/'f') and the UTC-based one ('I'/'i')
// introduced for Bolt 5.0+ (spec §4.2 "temporal ... structures").
func (p *Packer) packStruct(x any) error {
	switch v := x.(type) {
	case Point2D:
		p.StructHeader(SigPoint2D, 3)
		p.Uint32(v.SRID)
		p.Float64(v.X)
		p.Float64(v.Y)
	case *Point2D:
		return p.packStruct(*v)
	case Point3D:
		p.StructHeader(SigPoint3D, 4)
		p.Uint32(v.SRID)
		p.Float64(v.X)
		p.Float64(v.Y)
		p.Float64(v.Z)
	case *Point3D:
		return p.packStruct(*v)
	case Date:
		t := time.Time(v)
		days := t.Unix() / (60 * 60 * 24)
		p.StructHeader(SigDate, 1)
		p.Int64(days)
	case *Date:
		return p.packStruct(*v)
	case LocalTime:
		t := time.Time(v)
		nanos := int64(t.Hour())*int64(time.Hour) +
			int64(t.Minute())*int64(time.Minute) +
			int64(t.Second())*int64(time.Second) +
			int64(t.Nanosecond())
		p.StructHeader(SigLocalTime, 1)
		p.Int64(nanos)
	case *LocalTime:
		return p.packStruct(*v)
	case Time:
		t := time.Time(v)
		_, offset := t.Zone()
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		p.StructHeader(SigTime, 2)
		p.Int64(int64(t.Sub(midnight)))
		p.Int(offset)
	case *Time:
		return p.packStruct(*v)
	case LocalDateTime:
		t := time.Time(v)
		p.StructHeader(SigLocalDateTime, 2)
		p.Int64(t.Unix())
		p.Int(t.Nanosecond())
	case *LocalDateTime:
		return p.packStruct(*v)
	case Duration:
		p.StructHeader(SigDuration, 4)
		p.Int64(v.Months)
		p.Int64(v.Days)
		p.Int64(v.Seconds)
		p.Int(v.Nanos)
	case *Duration:
		return p.packStruct(*v)
	case DateTime:
		return p.packDateTime(time.Time(v), p.useUtc)
	case *DateTime:
		return p.packDateTime(time.Time(*v), p.useUtc)
	case time.Time:
		return p.packDateTime(v, p.useUtc)
	}
	return nil
}

func (p *Packer) packDateTime(t time.Time, useUtc bool) error {
	zone, offset := t.Zone()
	named := zone != "" && zone != "UTC" && zone != "Offset"
	if useUtc {
		if named {
			p.StructHeader(SigUtcDateTimeZoneID, 3)
			p.Int64(t.Unix())
			p.Int(t.Nanosecond())
			p.String(t.Location().String())
			return nil
		}
		p.StructHeader(SigUtcDateTimeOffset, 3)
		p.Int64(t.Unix())
		p.Int(t.Nanosecond())
		p.Int(offset)
		return nil
	}
	if named {
		p.StructHeader(SigLegacyDateTimeZoneID, 3)
		p.Int64(t.Unix() + int64(offset))
		p.Int(t.Nanosecond())
		p.String(t.Location().String())
		return nil
	}
	p.StructHeader(SigLegacyDateTimeOffset, 3)
	p.Int64(t.Unix() + int64(offset))
	p.Int(t.Nanosecond())
	p.Int(offset)
	return nil
}
