package bolt

import (
	"github.com/orneryd/bolt-core/pkg/packstream"
)

// boltV4 implements Bolt 4.0 through 4.4. qid-addressed PULL/DISCARD and
// multi-database BEGIN/RUN metadata exist from 4.0 on. The minor version
// gates what was added mid-series: ROUTE (server-side routing) and the
// HELLO routing context from 4.3, and imp_user in ROUTE from 4.4 (spec
// §4.3 "its numeric version ... whether it supports ... server-side
// routing").
type boltV4 struct {
	minor byte
}

// NewBolt4 returns the Bolt 4.x protocol for the given minor version
// (0..4).
func NewBolt4(minor byte) Protocol { return boltV4{minor: minor} }

func (b boltV4) Version() Version { return Version{Major: 4, Minor: b.minor} }

func (b boltV4) Capabilities() Capabilities {
	return Capabilities{
		MultiDatabase:     true,
		ServerSideRouting: b.minor >= 3,
	}
}

func (b boltV4) Hydrator() packstream.Hydrator {
	return packstream.DefaultHydrator(packstream.HydratorOptions{UseUtc: false})
}

func (b boltV4) EncodeHello(p *packstream.Packer, userAgent, _ string, auth map[string]any, routingContext map[string]string) error {
	writeMessageHeader(p, sigHello, 1)
	meta := map[string]any{"user_agent": userAgent}
	if b.minor >= 3 && len(routingContext) > 0 {
		ctx := make(map[string]any, len(routingContext))
		for k, v := range routingContext {
			ctx[k] = v
		}
		meta["routing"] = ctx
	}
	for k, v := range auth {
		meta[k] = v
	}
	return p.Map(meta)
}

func (b boltV4) EncodeLogon(p *packstream.Packer, _ map[string]any) error {
	return &ErrNotSupported{Version: b.Version(), Op: "LOGON"}
}

func (b boltV4) EncodeLogoff(p *packstream.Packer) error {
	return &ErrNotSupported{Version: b.Version(), Op: "LOGOFF"}
}

func (boltV4) EncodeGoodbye(p *packstream.Packer) error {
	writeMessageHeader(p, sigGoodbye, 0)
	return nil
}

func (boltV4) EncodeReset(p *packstream.Packer) error {
	writeMessageHeader(p, sigReset, 0)
	return nil
}

func (boltV4) EncodeRun(p *packstream.Packer, query string, params map[string]any, tx TxMetadata) error {
	writeMessageHeader(p, sigRun, 3)
	p.String(query)
	if params == nil {
		params = map[string]any{}
	}
	if err := p.Map(params); err != nil {
		return err
	}
	return p.Map(txMetaMap(tx, true, true, false))
}

func (boltV4) EncodeBegin(p *packstream.Packer, tx TxMetadata) error {
	writeMessageHeader(p, sigBegin, 1)
	return p.Map(txMetaMap(tx, true, true, false))
}

func (boltV4) EncodeCommit(p *packstream.Packer) error {
	writeMessageHeader(p, sigCommit, 0)
	return nil
}

func (boltV4) EncodeRollback(p *packstream.Packer) error {
	writeMessageHeader(p, sigRollback, 0)
	return nil
}

func (boltV4) EncodePull(p *packstream.Packer, n int64, qid int64) error {
	writeMessageHeader(p, sigPull, 1)
	meta := map[string]any{"n": n}
	if qid >= 0 {
		meta["qid"] = qid
	}
	return p.Map(meta)
}

func (boltV4) EncodeDiscard(p *packstream.Packer, n int64, qid int64) error {
	writeMessageHeader(p, sigDiscard, 1)
	meta := map[string]any{"n": n}
	if qid >= 0 {
		meta["qid"] = qid
	}
	return p.Map(meta)
}

func (b boltV4) EncodeRoute(p *packstream.Packer, routingContext map[string]string, bookmarks []string, db, impersonatedUser string) error {
	if b.minor < 3 {
		return &ErrNotSupported{Version: b.Version(), Op: "ROUTE"}
	}
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
	if b.minor >= 4 && impersonatedUser != "" {
		extra["imp_user"] = impersonatedUser
	}
	return p.Map(extra)
}

func (b boltV4) EncodeTelemetry(p *packstream.Packer, _ int64) error {
	return &ErrNotSupported{Version: b.Version(), Op: "TELEMETRY"}
}
