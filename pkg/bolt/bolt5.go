package bolt

import (
	"github.com/orneryd/bolt-core/pkg/packstream"
)

// boltV5 implements Bolt 5.0 through 5.4. Capabilities phase in across the
// minor series (spec §4.3): UTC DateTime and elementId from 5.0; reauth
// (LOGON/LOGOFF) from 5.1; notification filtering from 5.2; bolt_agent in
// HELLO from 5.3; TELEMETRY from 5.4.
type boltV5 struct {
	minor byte
}

// NewBolt5 returns the Bolt 5.x protocol for the given minor version
// (0..4).
func NewBolt5(minor byte) Protocol { return boltV5{minor: minor} }

func (b boltV5) Version() Version { return Version{Major: 5, Minor: b.minor} }

func (b boltV5) Capabilities() Capabilities {
	return Capabilities{
		MultiDatabase:         true,
		ServerSideRouting:     true,
		Reauth:                b.minor >= 1,
		NotificationFiltering: b.minor >= 2,
		Telemetry:             b.minor >= 4,
		UTCDateTime:           true,
		ElementID:             true,
	}
}

func (b boltV5) Hydrator() packstream.Hydrator {
	return packstream.DefaultHydrator(packstream.HydratorOptions{UseUtc: true})
}

func (b boltV5) EncodeHello(p *packstream.Packer, userAgent, boltAgent string, auth map[string]any, routingContext map[string]string) error {
	writeMessageHeader(p, sigHello, 1)
	meta := map[string]any{"user_agent": userAgent}
	if b.minor >= 3 && boltAgent != "" {
		meta["bolt_agent"] = map[string]any{"product": boltAgent}
	}
	if len(routingContext) > 0 {
		ctx := make(map[string]any, len(routingContext))
		for k, v := range routingContext {
			ctx[k] = v
		}
		meta["routing"] = ctx
	}
	if !b.Capabilities().Reauth {
		for k, v := range auth {
			meta[k] = v
		}
	}
	return p.Map(meta)
}

func (b boltV5) EncodeLogon(p *packstream.Packer, auth map[string]any) error {
	if !b.Capabilities().Reauth {
		return &ErrNotSupported{Version: b.Version(), Op: "LOGON"}
	}
	writeMessageHeader(p, sigLogon, 1)
	return p.Map(auth)
}

func (b boltV5) EncodeLogoff(p *packstream.Packer) error {
	if !b.Capabilities().Reauth {
		return &ErrNotSupported{Version: b.Version(), Op: "LOGOFF"}
	}
	writeMessageHeader(p, sigLogoff, 0)
	return nil
}

func (boltV5) EncodeGoodbye(p *packstream.Packer) error {
	writeMessageHeader(p, sigGoodbye, 0)
	return nil
}

func (boltV5) EncodeReset(p *packstream.Packer) error {
	writeMessageHeader(p, sigReset, 0)
	return nil
}

func (b boltV5) EncodeRun(p *packstream.Packer, query string, params map[string]any, tx TxMetadata) error {
	writeMessageHeader(p, sigRun, 3)
	p.String(query)
	if params == nil {
		params = map[string]any{}
	}
	if err := p.Map(params); err != nil {
		return err
	}
	return p.Map(txMetaMap(tx, true, true, b.Capabilities().NotificationFiltering))
}

func (b boltV5) EncodeBegin(p *packstream.Packer, tx TxMetadata) error {
	writeMessageHeader(p, sigBegin, 1)
	return p.Map(txMetaMap(tx, true, true, b.Capabilities().NotificationFiltering))
}

func (boltV5) EncodeCommit(p *packstream.Packer) error {
	writeMessageHeader(p, sigCommit, 0)
	return nil
}

func (boltV5) EncodeRollback(p *packstream.Packer) error {
	writeMessageHeader(p, sigRollback, 0)
	return nil
}

func (boltV5) EncodePull(p *packstream.Packer, n int64, qid int64) error {
	writeMessageHeader(p, sigPull, 1)
	meta := map[string]any{"n": n}
	if qid >= 0 {
		meta["qid"] = qid
	}
	return p.Map(meta)
}

func (boltV5) EncodeDiscard(p *packstream.Packer, n int64, qid int64) error {
	writeMessageHeader(p, sigDiscard, 1)
	meta := map[string]any{"n": n}
	if qid >= 0 {
		meta["qid"] = qid
	}
	return p.Map(meta)
}

func (b boltV5) EncodeRoute(p *packstream.Packer, routingContext map[string]string, bookmarks []string, db, impersonatedUser string) error {
	writeMessageHeader(p, sigRoute, 3)
	ctx := make(map[string]any, len(routingContext))
	for k, v := range routingContext {
		ctx[k] = v
	}
	if err := p.Map(ctx); err != nil {
		return err
	}
	p.Strings(bookmarks)
	extra := map[string]any{}
	if db != "" {
		extra["db"] = db
	}
	if impersonatedUser != "" {
		extra["imp_user"] = impersonatedUser
	}
	return p.Map(extra)
}

func (b boltV5) EncodeTelemetry(p *packstream.Packer, api int64) error {
	if !b.Capabilities().Telemetry {
		return &ErrNotSupported{Version: b.Version(), Op: "TELEMETRY"}
	}
	writeMessageHeader(p, sigTelemetry, 1)
	p.Int64(api)
	return nil
}
