package bolt

import (
	"github.com/orneryd/bolt-core/pkg/packstream"
)

// boltV3 implements Bolt 3.0: no multi-database, no server-side routing, no
// reauth (LOGON/LOGOFF don't exist yet — credentials travel in HELLO), no
// telemetry, no notification filtering, legacy offset/zone-name DateTime
// only (spec §4.3, §6.3).
type boltV3 struct{}

// NewBolt3 returns the Bolt 3.0 protocol.
func NewBolt3() Protocol { return boltV3{} }

func (boltV3) Version() Version { return Version{Major: 3, Minor: 0} }

func (boltV3) Capabilities() Capabilities {
	return Capabilities{}
}

func (b boltV3) Hydrator() packstream.Hydrator {
	return packstream.DefaultHydrator(packstream.HydratorOptions{UseUtc: false})
}

func (b boltV3) EncodeHello(p *packstream.Packer, userAgent, _ string, auth map[string]any, _ map[string]string) error {
	writeMessageHeader(p, sigHello, 1)
	meta := map[string]any{"user_agent": userAgent}
	for k, v := range auth {
		meta[k] = v
	}
	return p.Map(meta)
}

func (b boltV3) EncodeLogon(p *packstream.Packer, auth map[string]any) error {
	return &ErrNotSupported{Version: b.Version(), Op: "LOGON"}
}

func (b boltV3) EncodeLogoff(p *packstream.Packer) error {
	return &ErrNotSupported{Version: b.Version(), Op: "LOGOFF"}
}

func (boltV3) EncodeGoodbye(p *packstream.Packer) error {
	writeMessageHeader(p, sigGoodbye, 0)
	return nil
}

func (boltV3) EncodeReset(p *packstream.Packer) error {
	writeMessageHeader(p, sigReset, 0)
	return nil
}

func (boltV3) EncodeRun(p *packstream.Packer, query string, params map[string]any, tx TxMetadata) error {
	writeMessageHeader(p, sigRun, 3)
	p.String(query)
	if params == nil {
		params = map[string]any{}
	}
	if err := p.Map(params); err != nil {
		return err
	}
	return p.Map(txMetaMap(tx, false, false, false))
}

func (boltV3) EncodeBegin(p *packstream.Packer, tx TxMetadata) error {
	writeMessageHeader(p, sigBegin, 1)
	return p.Map(txMetaMap(tx, false, false, false))
}

func (boltV3) EncodeCommit(p *packstream.Packer) error {
	writeMessageHeader(p, sigCommit, 0)
	return nil
}

func (boltV3) EncodeRollback(p *packstream.Packer) error {
	writeMessageHeader(p, sigRollback, 0)
	return nil
}

// EncodePull ignores qid: bolt3 has only one open result stream at a time,
// addressed implicitly.
func (boltV3) EncodePull(p *packstream.Packer, n int64, _ int64) error {
	writeMessageHeader(p, sigPull, 1)
	return p.Map(map[string]any{"n": n})
}

func (boltV3) EncodeDiscard(p *packstream.Packer, n int64, _ int64) error {
	writeMessageHeader(p, sigDiscard, 1)
	return p.Map(map[string]any{"n": n})
}

func (b boltV3) EncodeRoute(p *packstream.Packer, _ map[string]string, _ []string, _, _ string) error {
	return &ErrNotSupported{Version: b.Version(), Op: "ROUTE"}
}

func (b boltV3) EncodeTelemetry(p *packstream.Packer, _ int64) error {
	return &ErrNotSupported{Version: b.Version(), Op: "TELEMETRY"}
}
