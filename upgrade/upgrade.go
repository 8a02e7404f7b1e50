// Package upgrade implements protocol upgrade (spec §4.3): version
// negotiation, the optional handshake frame, and the Approve marker
// exchange that promotes a freshly opened substream into message mode.
package upgrade

import (
	"bytes"
	"io"
	"time"

	"github.com/spectrum-network/spectrum/wire"
)

// Spec parameterizes the upgrade procedure for one protocol.
type Spec struct {
	Id wire.ProtocolId

	// SupportedVersions are offered in preference order; SelectVersion
	// applies the reversed-ordering rule (spec §3).
	SupportedVersions []wire.ProtocolVer

	// HandshakeRequired selects whether a handshake frame precedes the
	// Approve marker.
	HandshakeRequired bool

	// ApprovalRequired selects whether the opener must wait for an
	// Approve marker before entering message mode. Discovery-style
	// protocols with no local vetting may set this false.
	ApprovalRequired bool

	// MaxMessageSize bounds every frame read on this protocol's
	// substream once in message mode.
	MaxMessageSize uint32

	// NewHandshake constructs an empty handshake value to decode into.
	NewHandshake func() wire.Message

	// OpenTimeout bounds the whole upgrade procedure.
	OpenTimeout time.Duration
}

// deadlineConn is satisfied by any stream that supports a read/write
// deadline, letting NegotiateOutbound/NegotiateInbound enforce OpenTimeout
// without a background goroutine.
type deadlineConn interface {
	SetDeadline(t time.Time) error
}

func applyDeadline(rw io.ReadWriter, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	if dc, ok := rw.(deadlineConn); ok {
		_ = dc.SetDeadline(time.Now().Add(timeout))
	}
}

func clearDeadline(rw io.ReadWriter) {
	if dc, ok := rw.(deadlineConn); ok {
		_ = dc.SetDeadline(time.Time{})
	}
}

// NegotiateOutbound performs the locally-initiated upgrade: write the
// local handshake (if required), then — if approval is required — read
// exactly the Approve marker. Returns the negotiated tag.
func NegotiateOutbound(rw io.ReadWriter, spec Spec, offered []wire.ProtocolVer, handshake wire.Message) (wire.ProtocolTag, error) {
	ver, ok := wire.SelectVersion(spec.SupportedVersions, offered)
	if !ok {
		return wire.ProtocolTag{}, wire.ErrUnsupportedProtocolVer
	}
	tag := wire.ProtocolTag{Id: spec.Id, Ver: ver}

	applyDeadline(rw, spec.OpenTimeout)
	defer clearDeadline(rw)

	if spec.HandshakeRequired {
		if err := writeHandshake(rw, handshake); err != nil {
			return wire.ProtocolTag{}, timeoutAware(err)
		}
	}

	if spec.ApprovalRequired {
		if err := wire.ReadApprove(rw); err != nil {
			if err == wire.ErrInvalidApprove {
				return wire.ProtocolTag{}, wire.ErrInvalidApprove
			}
			return wire.ProtocolTag{}, timeoutAware(err)
		}
	}

	return tag, nil
}

// NegotiateInbound performs the first stage of a peer-initiated upgrade:
// select a version and read the peer's handshake, if required. It does
// NOT write the Approve marker — that only happens once local behavior
// approves, via ApproveInbound, matching the PendingApprove stash in
// spec §3's enabled-protocol state machine.
func NegotiateInbound(rw io.ReadWriter, spec Spec, offered []wire.ProtocolVer) (wire.ProtocolTag, wire.Message, error) {
	ver, ok := wire.SelectVersion(spec.SupportedVersions, offered)
	if !ok {
		return wire.ProtocolTag{}, nil, wire.ErrUnsupportedProtocolVer
	}
	tag := wire.ProtocolTag{Id: spec.Id, Ver: ver}

	if !spec.HandshakeRequired {
		return tag, nil, nil
	}

	applyDeadline(rw, spec.OpenTimeout)
	defer clearDeadline(rw)

	handshake := spec.NewHandshake()
	frame, err := wire.ReadFrame(rw, spec.MaxMessageSize)
	if err != nil {
		return wire.ProtocolTag{}, nil, timeoutAware(err)
	}
	if err := handshake.Decode(bytes.NewReader(frame)); err != nil {
		return wire.ProtocolTag{}, nil, wire.ErrDecodeFailed
	}

	return tag, handshake, nil
}

// ApproveInbound writes the Approve marker, completing the inbound
// upgrade once local behavior has approved the protocol.
func ApproveInbound(w io.Writer) error {
	return wire.WriteApprove(w)
}

func writeHandshake(w io.Writer, msg wire.Message) error {
	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		return err
	}
	return wire.WriteFrame(w, buf.Bytes())
}

// timeoutAware maps a deadline-exceeded read/write error onto
// ErrHandshakeTimeout so callers can branch on the taxonomy in spec §7
// without inspecting net.Error directly.
func timeoutAware(err error) error {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok && te.Timeout() {
		return wire.ErrHandshakeTimeout
	}
	return err
}
