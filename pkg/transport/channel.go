// Package transport provides the reliable ordered byte transport Bolt runs
// over (spec §2 "Channel", §6.5 URL schemes): plain TCP for bolt://, and
// WebSocket for browser-build ws://. Both implementations sit behind the
// same Channel interface so pkg/bolt never branches on transport kind.
// Grounded on the teacher's pkg/bolt/server.go net.Conn lifecycle, which
// this package generalizes from "accept one listener's connections" to
// "dial one of several transports."
package transport

import (
	"context"
	"io"
	"time"
)

// Channel is a reliable, ordered byte stream with read/write deadlines, the
// minimal surface pkg/chunk and pkg/bolt need (spec §2: "Reliable ordered
// byte transport (TCP or WebSocket) with read/write timeouts").
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
	// SetDeadline arms both read and write deadlines; zero time disarms them.
	SetDeadline(t time.Time) error
	// RemoteAddr identifies the peer, for pool/routing diagnostics.
	RemoteAddr() string
}

// Dialer opens a Channel to address, honoring ctx for cancellation during
// the dial (spec §5 "Suspension points" doesn't name dial explicitly, but
// connect() is the operation it composes into).
type Dialer interface {
	Dial(ctx context.Context, address string) (Channel, error)
}
