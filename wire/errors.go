package wire

import "github.com/go-errors/errors"

// Protocol-fatal errors (§7): the connection handler closes the connection
// and reports the cause via peer.ConnLossReason.
var (
	// ErrInvalidApprove is returned when the Approve marker read during
	// upgrade does not match the fixed literal.
	ErrInvalidApprove = errors.New("wire: invalid approve marker")

	// ErrUnsupportedProtocolVer is returned when version negotiation
	// finds no overlap between supported and offered versions.
	ErrUnsupportedProtocolVer = errors.New("wire: unsupported protocol version")

	// ErrHandshakeTimeout is returned when a handshake is not completed
	// within the configured open_timeout.
	ErrHandshakeTimeout = errors.New("wire: handshake timeout")

	// ErrDecodeFailed wraps a framing or payload decode failure.
	ErrDecodeFailed = errors.New("wire: decode failed")
)
