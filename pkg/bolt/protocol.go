// Package bolt implements the Bolt wire protocol client: per-version message
// builders (spec §4.3), the request/response multiplexer, and the
// Connection state machine (spec §4.4). It keeps the teacher's
// pkg/bolt/server.go message-signature constants and chunk-framing shape,
// but flips the transport direction from server (Accept/handle) to client
// (Dial/request) throughout.
package bolt

import (
	"fmt"

	"github.com/orneryd/bolt-core/pkg/packstream"
)

// Version is a negotiated protocol version (spec §4.3 "its numeric version
// (major, minor, range)").
type Version struct {
	Major, Minor byte
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Capabilities reports what a given protocol version supports (spec §4.3).
type Capabilities struct {
	MultiDatabase         bool
	Reauth                bool
	ServerSideRouting     bool
	Telemetry             bool
	NotificationFiltering bool
	UTCDateTime           bool
	ElementID             bool
}

// TxMetadata carries BEGIN/RUN's transaction-scoped metadata (spec §4.3
// "Begin/commit/rollback").
type TxMetadata struct {
	Bookmarks         []string
	TimeoutMs         int64
	Metadata          map[string]any
	AccessMode        string // "r" or "w"
	Database          string
	ImpersonatedUser  string
	NotificationFilter map[string]any
}

// Observer is the callback set attached to one outstanding request
// (GLOSSARY: "Observer — a callback set (onKeys, onRecord, onSuccess,
// onFailure) attached to a request"). Any field may be nil.
type Observer struct {
	OnKeys    func(keys []string)
	OnRecord  func(fields []any)
	OnSuccess func(meta map[string]any)
	OnFailure func(err error)
	// keepAliveOnSuccess is not set or read anywhere in this package. The
	// RUN observer stays queued across its SUCCESS through the connection's
	// own queue entry (pendingObserver.awaitingRunSuccess), so it can keep
	// receiving RECORDs from a subsequent PULL (spec §4.3 "except for RUN
	// whose observer remains active").
	keepAliveOnSuccess bool
}

func (o *Observer) success(meta map[string]any) {
	if o == nil || o.OnSuccess == nil {
		return
	}
	o.OnSuccess(meta)
}

func (o *Observer) failure(err error) {
	if o == nil || o.OnFailure == nil {
		return
	}
	o.OnFailure(err)
}

func (o *Observer) record(fields []any) {
	if o == nil || o.OnRecord == nil {
		return
	}
	o.OnRecord(fields)
}

// Protocol builds outbound Bolt messages for one negotiated version and
// supplies the structure hydrator used to decode inbound ones (spec §4.3
// "per-version message builders"). Implementations never touch the
// transport or the observer queue directly — that's Connection's job (spec
// §9 DESIGN NOTES: "the protocol does not own the connection").
type Protocol interface {
	Version() Version
	Capabilities() Capabilities
	Hydrator() packstream.Hydrator

	EncodeHello(p *packstream.Packer, userAgent, boltAgent string, auth map[string]any, routingContext map[string]string) error
	EncodeLogon(p *packstream.Packer, auth map[string]any) error
	EncodeLogoff(p *packstream.Packer) error
	EncodeGoodbye(p *packstream.Packer) error
	EncodeReset(p *packstream.Packer) error
	EncodeRun(p *packstream.Packer, query string, params map[string]any, tx TxMetadata) error
	EncodeBegin(p *packstream.Packer, tx TxMetadata) error
	EncodeCommit(p *packstream.Packer) error
	EncodeRollback(p *packstream.Packer) error
	EncodePull(p *packstream.Packer, n int64, qid int64) error
	EncodeDiscard(p *packstream.Packer, n int64, qid int64) error
	EncodeRoute(p *packstream.Packer, routingContext map[string]string, bookmarks []string, db, impersonatedUser string) error
	EncodeTelemetry(p *packstream.Packer, api int64) error
}

// ErrNotSupported is returned by an Encode* method a protocol version
// doesn't implement (e.g. EncodeLogon on bolt3).
type ErrNotSupported struct {
	Version Version
	Op      string
}

func (e *ErrNotSupported) Error() string {
	return fmt.Sprintf("bolt: protocol %s does not support %s", e.Version, e.Op)
}

// writeMessageHeader is the shared helper every version's encoder uses to
// start a request message (spec §6.4 signatures).
func writeMessageHeader(p *packstream.Packer, sig byte, fieldCount int) {
	p.StructHeader(sig, fieldCount)
}

const (
	sigHello     = packstream.MsgHello
	sigLogon     = packstream.MsgLogon
	sigLogoff    = packstream.MsgLogoff
	sigGoodbye   = packstream.MsgGoodbye
	sigReset     = packstream.MsgReset
	sigRun       = packstream.MsgRun
	sigBegin     = packstream.MsgBegin
	sigCommit    = packstream.MsgCommit
	sigRollback  = packstream.MsgRollback
	sigDiscard   = packstream.MsgDiscardN
	sigPull      = packstream.MsgPullN
	sigRoute     = packstream.MsgRoute
	sigTelemetry = packstream.MsgTelemetry
)

// NewProtocol instantiates the Protocol matching a negotiated handshake
// version (spec §4.3 "The negotiated version instantiates the matching
// protocol").
func NewProtocol(v Version) (Protocol, error) {
	switch v.Major {
	case 3:
		return NewBolt3(), nil
	case 4:
		if v.Minor > 4 {
			return nil, &ErrNotSupported{Version: v, Op: "handshake"}
		}
		return NewBolt4(v.Minor), nil
	case 5:
		if v.Minor > 4 {
			return nil, &ErrNotSupported{Version: v, Op: "handshake"}
		}
		return NewBolt5(v.Minor), nil
	default:
		return nil, &ErrNotSupported{Version: v, Op: "handshake"}
	}
}

func txMetaMap(tx TxMetadata, includeDB, includeImpersonation, includeNotificationFilter bool) map[string]any {
	m := map[string]any{}
	if len(tx.Bookmarks) > 0 {
		m["bookmarks"] = tx.Bookmarks
	}
	if tx.TimeoutMs > 0 {
		m["tx_timeout"] = tx.TimeoutMs
	}
	if len(tx.Metadata) > 0 {
		m["tx_metadata"] = tx.Metadata
	}
	if tx.AccessMode == "r" {
		m["mode"] = "r"
	}
	if includeDB && tx.Database != "" {
		m["db"] = tx.Database
	}
	if includeImpersonation && tx.ImpersonatedUser != "" {
		m["imp_user"] = tx.ImpersonatedUser
	}
	if includeNotificationFilter && len(tx.NotificationFilter) > 0 {
		m["notifications"] = tx.NotificationFilter
	}
	return m
}
