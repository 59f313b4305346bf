package bolt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/orneryd/bolt-core/pkg/boltcore"
	"github.com/orneryd/bolt-core/pkg/boltlog"
	"github.com/orneryd/bolt-core/pkg/buffer"
	"github.com/orneryd/bolt-core/pkg/chunk"
	"github.com/orneryd/bolt-core/pkg/packstream"
	"github.com/orneryd/bolt-core/pkg/transport"
)

// State is a Connection's lifecycle stage (spec §4.4: "new -> connecting ->
// ready -> (in_flight <-> ready) -> broken or closed").
type State int

const (
	StateNew State = iota
	StateConnecting
	StateReady
	StateInFlight
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateInFlight:
		return "in_flight"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrorHandlers is the triple of routing-aware callbacks a session installs
// on a connection (spec §4.8 "The connection acquires an error-handler
// triple").
type ErrorHandlers struct {
	OnUnavailability func(address string)
	OnWriteFailure   func(address string)
	OnSecurity       func(err *boltcore.DriverError)
}

type pendingObserver struct {
	obs               *Observer
	awaitingRunSuccess bool
}

// Connection owns one Channel and one negotiated Protocol, and multiplexes
// its request/response stream onto a FIFO of observers (spec §4.4). It is
// not safe for concurrent use by more than one goroutine at a time — per
// spec §5, a connection is never shared between concurrent requesters.
type Connection struct {
	mu sync.Mutex

	identity   string
	address    string
	createdAt  time.Time
	lastIdleAt time.Time

	channel  transport.Channel
	protocol Protocol
	version  Version

	state    State
	fatalErr error

	recvTimeout time.Duration // 0 = not armed

	authToken map[string]any
	errors    ErrorHandlers

	queue []*pendingObserver

	chunker   *chunk.Chunker
	dechunker *chunk.Dechunker
	packBuf   *buffer.Buffer

	log logr.Logger
}

// NewConnection wraps an already-dialed Channel. Call Connect to perform
// the Bolt handshake and HELLO/LOGON before issuing any request.
func NewConnection(ch transport.Channel, address string, log logr.Logger) *Connection {
	return &Connection{
		identity:  uuid.NewString(),
		address:   address,
		createdAt: time.Now(),
		channel:   ch,
		state:     StateNew,
		chunker:   chunk.NewChunker(),
		dechunker: chunk.NewDechunker(),
		packBuf:   buffer.New(4096),
		log:       boltlog.OrDefault(log),
	}
}

func (c *Connection) Identity() string { return c.identity }
func (c *Connection) Address() string  { return c.address }
func (c *Connection) Version() Version { return c.version }
func (c *Connection) CreatedAt() time.Time { return c.createdAt }
func (c *Connection) LastIdleAt() time.Time { return c.lastIdleAt }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsBroken reports whether the connection has suffered a fatal error and
// must never be reused (spec §3: "once broken, never reused").
func (c *Connection) IsBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateBroken
}

// IsHealthy reports whether the transport is open, the connection is not
// broken, and no unrecoverable protocol state exists (spec §4.4).
func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateBroken && c.state != StateClosed
}

// HasOngoingObservableRequests reports whether the pending-observer queue
// is nonempty (spec §4.4).
func (c *Connection) HasOngoingObservableRequests() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// MarkIdle stamps the last-idle timestamp, called by the pool on release.
func (c *Connection) MarkIdle() { c.lastIdleAt = time.Now() }

// SetErrorHandlers installs the routing-aware error transforms a session
// attaches for the lifetime of a borrowed connection (spec §4.8).
func (c *Connection) SetErrorHandlers(h ErrorHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = h
}

var boltProposals = []transport.VersionRange{
	{Major: 5, Minor: 4, MinorRange: 4},
	{Major: 4, Minor: 4, MinorRange: 4},
	{Major: 3, Minor: 0, MinorRange: 0},
}

// Connect performs the version handshake, HELLO, and LOGON (if the
// negotiated protocol supports reauth), per spec §4.4. It fails with
// `authentication`, `protocol_error`, or `connection_failure`.
func (c *Connection) Connect(ctx context.Context, userAgent, boltAgent string, auth map[string]any, routingContext map[string]string) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.channel.SetDeadline(deadline)
	}

	negotiated, err := transport.Handshake(c.channel, boltProposals)
	if err != nil {
		return c.fail(boltcore.New(boltcore.CodeProtocolError, "handshake failed").WithCause(err))
	}
	proto, err := NewProtocol(Version{Major: negotiated.Major, Minor: negotiated.Minor})
	if err != nil {
		return c.fail(boltcore.New(boltcore.CodeProtocolError, "unsupported negotiated version").WithCause(err))
	}
	c.mu.Lock()
	c.protocol = proto
	c.version = proto.Version()
	c.authToken = auth
	c.mu.Unlock()

	helloMeta := map[string]any{}
	helloErr := c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return proto.EncodeHello(p, userAgent, boltAgent, auth, routingContext)
	}, func(meta map[string]any) { helloMeta = meta })
	if helloErr != nil {
		return c.fail(boltcore.New(boltcore.CodeAuthentication, "HELLO failed").WithCause(helloErr))
	}
	applyHints(helloMeta, c, c.log)

	if proto.Capabilities().Reauth {
		logonErr := c.roundTripOnce(ctx, func(p *packstream.Packer) error {
			return proto.EncodeLogon(p, auth)
		}, nil)
		if logonErr != nil {
			return c.fail(boltcore.New(boltcore.CodeAuthentication, "LOGON failed").WithCause(logonErr))
		}
	}

	c.mu.Lock()
	c.state = StateReady
	c.mu.Unlock()
	return nil
}

// applyHints arms the receive-timeout hint from HELLO's SUCCESS metadata
// (spec §4.3 "Hints"). Values that are null, <= 0, non-integer, or beyond
// representable seconds are ignored with an info log entry, never armed.
func applyHints(meta map[string]any, c *Connection, log logr.Logger) {
	raw, ok := meta["hints"]
	if !ok {
		return
	}
	hints, ok := raw.(map[string]any)
	if !ok {
		return
	}
	v, ok := hints["connection.recv_timeout_seconds"]
	if !ok {
		return
	}
	secs, ok := v.(int64)
	if !ok || secs <= 0 || secs > (1<<63-1)/int64(time.Second) {
		log.Info("ignoring invalid connection.recv_timeout_seconds hint", "value", v)
		return
	}
	c.mu.Lock()
	c.recvTimeout = time.Duration(secs) * time.Second
	c.mu.Unlock()
}

// Run issues RUN and blocks until the server's first SUCCESS (or FAILURE)
// for it arrives; the observer remains installed to receive RECORDs from a
// following Pull/Discard (spec §4.3 "Run/pull semantics").
func (c *Connection) Run(ctx context.Context, query string, params map[string]any, tx TxMetadata, obs *Observer) error {
	return c.sendStreaming(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeRun(p, query, params, tx)
	}, obs)
}

// Pull requests up to n more records for qid (-1 = the most recent query),
// reusing the observer installed by Run (spec §4.3).
func (c *Connection) Pull(ctx context.Context, n, qid int64, obs *Observer) error {
	return c.continueStreaming(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodePull(p, n, qid)
	}, obs)
}

// Discard cancels the remainder of a result stream (spec §5 "A
// session.close cancels any outstanding stream (sends DISCARD)").
func (c *Connection) Discard(ctx context.Context, n, qid int64, obs *Observer) error {
	return c.continueStreaming(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeDiscard(p, n, qid)
	}, obs)
}

func (c *Connection) BeginTransaction(ctx context.Context, tx TxMetadata) error {
	return c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeBegin(p, tx)
	}, nil)
}

func (c *Connection) Commit(ctx context.Context) (map[string]any, error) {
	var meta map[string]any
	err := c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeCommit(p)
	}, func(m map[string]any) { meta = m })
	return meta, err
}

func (c *Connection) Rollback(ctx context.Context) error {
	return c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeRollback(p)
	}, nil)
}

func (c *Connection) Route(ctx context.Context, routingContext map[string]string, bookmarks []string, db, impersonatedUser string) (map[string]any, error) {
	var meta map[string]any
	err := c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeRoute(p, routingContext, bookmarks, db, impersonatedUser)
	}, func(m map[string]any) { meta = m })
	return meta, err
}

// Goodbye sends GOODBYE without awaiting a reply (the server closes the
// socket instead of replying), matching spec §6.4's asymmetric message.
func (c *Connection) Goodbye(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := packstream.NewPacker(c.packBuf)
	p.SetUseUtc(c.protocol.Capabilities().UTCDateTime)
	c.packBuf.Reset()
	c.chunker.BeginMessage()
	if err := c.protocol.EncodeGoodbye(p); err != nil {
		return err
	}
	c.chunker.Write(c.packBuf.Bytes())
	c.chunker.EndMessage()
	return c.chunker.Send(ctx, c.channel)
}

// ResetAndFlush sends RESET and resolves when SUCCESS arrives, rejecting
// every observer still queued with `ignored` (spec §4.4).
func (c *Connection) ResetAndFlush(ctx context.Context) error {
	c.mu.Lock()
	stale := c.queue
	c.queue = nil
	c.mu.Unlock()
	ignoredErr := boltcore.New(boltcore.CodeClientError, "ignored: connection reset before response")
	for _, po := range stale {
		po.obs.failure(ignoredErr)
	}
	return c.roundTripOnce(ctx, func(p *packstream.Packer) error {
		return c.protocol.EncodeReset(p)
	}, nil)
}

// sendStreaming is Run's helper: the observer it installs is not popped on
// its first SUCCESS. A FAILURE for RUN itself is both reported to obs and
// returned directly from this call, the same way roundTripOnce resolves its
// own caller.
func (c *Connection) sendStreaming(ctx context.Context, encode func(*packstream.Packer) error, obs *Observer) error {
	if obs == nil {
		obs = &Observer{}
	}
	if err := c.write(encode); err != nil {
		return c.fail(boltcore.New(boltcore.CodeProtocolError, "encode failed").WithCause(err))
	}
	var resolveErr error
	shim := &Observer{
		OnRecord:  obs.record,
		OnSuccess: obs.success,
		OnFailure: func(err error) {
			resolveErr = err
			obs.failure(err)
		},
	}
	c.pushObserver(shim, true)
	if err := c.flush(ctx); err != nil {
		return c.fail(boltcore.New(boltcore.CodeServiceUnavailable, "flush failed").WithCause(err))
	}
	if err := c.consumeUntil(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, po := range c.queue {
			if po.obs == shim {
				return !po.awaitingRunSuccess
			}
		}
		return true
	}); err != nil {
		return err
	}
	return resolveErr
}

// continueStreaming sends PULL/DISCARD against the connection's single open
// result stream: it takes over the existing queue slot (replacing whichever
// observer was previously attached to it) rather than appending a new one,
// since this connection never has more than one result stream pending at a
// time. This lets every PULL/DISCARD call supply its own fresh Observer
// instead of having to reuse the exact pointer RUN installed.
func (c *Connection) continueStreaming(ctx context.Context, encode func(*packstream.Packer) error, obs *Observer) error {
	if err := c.write(encode); err != nil {
		return c.fail(boltcore.New(boltcore.CodeProtocolError, "encode failed").WithCause(err))
	}
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.queue = append(c.queue, &pendingObserver{obs: obs, awaitingRunSuccess: false})
	} else {
		tail := c.queue[len(c.queue)-1]
		tail.obs = obs
		tail.awaitingRunSuccess = false
	}
	c.mu.Unlock()
	if err := c.flush(ctx); err != nil {
		return c.fail(boltcore.New(boltcore.CodeServiceUnavailable, "flush failed").WithCause(err))
	}
	return c.consumeUntil(ctx, c.notQueued(obs))
}

// roundTripOnce is the generic request/single-SUCCESS-reply helper used by
// HELLO, LOGON, BEGIN, COMMIT, ROLLBACK, ROUTE, RESET.
func (c *Connection) roundTripOnce(ctx context.Context, encode func(*packstream.Packer) error, onMeta func(map[string]any)) error {
	obs := &Observer{OnSuccess: onMeta}
	var resolveErr error
	obs.OnFailure = func(err error) { resolveErr = err }
	if err := c.write(encode); err != nil {
		return err
	}
	c.pushObserver(obs, false)
	if err := c.flush(ctx); err != nil {
		return c.fail(boltcore.New(boltcore.CodeServiceUnavailable, "flush failed").WithCause(err))
	}
	if err := c.consumeUntil(ctx, c.notQueued(obs)); err != nil {
		return err
	}
	return resolveErr
}

// notQueued returns a predicate satisfied once obs is no longer anywhere
// in the pending queue (i.e. it has been popped by SUCCESS/FAILURE/IGNORED).
func (c *Connection) notQueued(obs *Observer) func() bool {
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, po := range c.queue {
			if po.obs == obs {
				return false
			}
		}
		return true
	}
}

func (c *Connection) write(encode func(*packstream.Packer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packBuf.Reset()
	p := packstream.NewPacker(c.packBuf)
	if c.protocol != nil {
		p.SetUseUtc(c.protocol.Capabilities().UTCDateTime)
	}
	c.chunker.BeginMessage()
	if err := encode(p); err != nil {
		return err
	}
	c.chunker.Write(c.packBuf.Bytes())
	c.chunker.EndMessage()
	return nil
}

func (c *Connection) flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateInFlight
	return c.chunker.Send(ctx, c.channel)
}

func (c *Connection) pushObserver(obs *Observer, awaitingRunSuccess bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasEmpty := len(c.queue) == 0
	c.queue = append(c.queue, &pendingObserver{obs: obs, awaitingRunSuccess: awaitingRunSuccess})
	if wasEmpty && c.recvTimeout > 0 {
		_ = c.channel.SetDeadline(time.Now().Add(c.recvTimeout))
	}
}

// consumeUntil reads and dispatches messages until done reports true —
// e.g. a specific observer has been popped, or (for RUN) has received its
// first SUCCESS/FAILURE while remaining queued for a following PULL.
func (c *Connection) consumeUntil(ctx context.Context, done func() bool) error {
	for {
		if done() {
			c.mu.Lock()
			empty := len(c.queue) == 0
			c.mu.Unlock()
			c.settleState(empty)
			return nil
		}
		if err := c.dispatchOne(ctx); err != nil {
			return c.fail(boltcore.New(boltcore.CodeServiceUnavailable, "read failed").WithCause(err))
		}
	}
}

func (c *Connection) settleState(queueEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBroken && c.state != StateClosed {
		c.state = StateReady
	}
	if queueEmpty {
		_ = c.channel.SetDeadline(time.Time{})
	}
}

// dispatchOne reads one full Bolt message and applies spec §4.3's
// request/response muxing rules to the head of the queue.
func (c *Connection) dispatchOne(ctx context.Context) error {
	raw, err := c.dechunker.Next(c.channel)
	if err != nil {
		return err
	}
	msgBuf := buffer.New(len(raw))
	msgBuf.Write(raw)
	msgBuf.Rewind()
	u := packstream.NewUnpacker(msgBuf, c.protocolHydrator())
	v, err := u.Next()
	if err != nil {
		return fmt.Errorf("bolt: decoding response: %w", err)
	}
	s, ok := v.(packstream.Struct)
	if !ok {
		return fmt.Errorf("bolt: top-level response was not a structure: %T", v)
	}

	switch s.Tag {
	case packstream.MsgSuccess:
		meta, _ := fieldAsMap(s, 0)
		c.onSuccess(meta)
	case packstream.MsgRecord:
		fields, _ := s.Fields[0].([]any)
		c.onRecord(fields)
	case packstream.MsgIgnored:
		c.onIgnored()
	case packstream.MsgFailure:
		meta, _ := fieldAsMap(s, 0)
		c.onFailure(meta)
	default:
		return fmt.Errorf("bolt: unexpected response signature 0x%02X", s.Tag)
	}
	return nil
}

func (c *Connection) protocolHydrator() packstream.Hydrator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.protocol == nil {
		return nil
	}
	return c.protocol.Hydrator()
}

func fieldAsMap(s packstream.Struct, i int) (map[string]any, bool) {
	if i >= len(s.Fields) {
		return nil, false
	}
	m, ok := s.Fields[i].(map[string]any)
	return m, ok
}

func (c *Connection) onSuccess(meta map[string]any) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.queue[0]
	if head.awaitingRunSuccess {
		head.awaitingRunSuccess = false
	} else {
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()
	head.obs.success(meta)
}

func (c *Connection) onRecord(fields []any) {
	c.mu.Lock()
	var head *pendingObserver
	if len(c.queue) > 0 {
		head = c.queue[0]
	}
	c.mu.Unlock()
	if head != nil {
		head.obs.record(fields)
	}
}

func (c *Connection) onIgnored() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()
	head.obs.failure(boltcore.New(boltcore.CodeClientError, "ignored"))
}

func (c *Connection) onFailure(meta map[string]any) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	code := boltcore.Code(stringField(meta, "code"))
	if code == "" {
		code = boltcore.CodeClientError
	}
	driverErr := boltcore.Newf(code, "%s", stringField(meta, "message"))
	c.applyErrorHandlers(driverErr)
	head.obs.failure(driverErr)

	// spec §4.3 FAILURE: "connection enters an 'ignored-until-ack' state;
	// send RESET". Protocol-class errors are fatal to the connection (§7);
	// everything else goes to sendImplicitReset, which sends an explicit
	// RESET on bolt3, 4.x and 5.0 and nothing on 5.1+ (DESIGN.md Open
	// Question 2).
	if code == boltcore.CodeProtocolError {
		_ = c.fail(driverErr)
		return
	}
	_ = c.sendImplicitReset()
}

func (c *Connection) applyErrorHandlers(err *boltcore.DriverError) {
	c.mu.Lock()
	h := c.errors
	addr := c.address
	c.mu.Unlock()
	switch {
	case boltcore.IsSecurity(err.Code) && h.OnSecurity != nil:
		h.OnSecurity(err)
	case boltcore.IsAvailability(err.Code) && h.OnUnavailability != nil:
		h.OnUnavailability(addr)
	case boltcore.IsWriteFailure(err.Code) && h.OnWriteFailure != nil:
		h.OnWriteFailure(addr)
	}
}

// sendImplicitReset issues RESET without going through roundTripOnce's
// caller-facing error propagation — a best-effort housekeeping send after a
// FAILURE, per DESIGN.md Open Question 2 (bolt3/4.x path).
func (c *Connection) sendImplicitReset() error {
	c.mu.Lock()
	proto := c.protocol
	c.mu.Unlock()
	if proto == nil {
		return nil
	}
	if proto.Capabilities().UTCDateTime && proto.Version().Major >= 5 && proto.Version().Minor > 0 {
		// Bolt 5.1+ relies on the server's implicit post-failure reset.
		return nil
	}
	return c.roundTripOnce(context.Background(), func(p *packstream.Packer) error {
		return proto.EncodeReset(p)
	}, nil)
}

func stringField(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// fail is the shared implementation of spec §4.4's _handleFatalError: sets
// broken=true, keeps the *earliest* failure (a prior protocol FAILURE wins
// over a later transport error), and rejects every queued observer.
func (c *Connection) fail(err *boltcore.DriverError) error {
	c.mu.Lock()
	if c.fatalErr == nil {
		c.fatalErr = err
	}
	alreadyBroken := c.state == StateBroken
	c.state = StateBroken
	stale := c.queue
	c.queue = nil
	c.mu.Unlock()

	if !alreadyBroken {
		c.log.Error(err, "connection broken", "address", c.address, "identity", c.identity)
	}
	for _, po := range stale {
		po.obs.failure(err)
	}
	return err
}

// FatalError returns the earliest fatal error recorded, if any.
func (c *Connection) FatalError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// Close closes the underlying channel. It does not send GOODBYE; callers
// that want a clean shutdown should call Goodbye first.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return c.channel.Close()
}
