package conn

import "github.com/go-errors/errors"

// ErrSyncChannelExhausted is the fault recorded when a protocol's bounded
// incoming buffer overflows because the controller is draining it slower
// than the peer is sending (spec §5). It is fatal to the connection.
var ErrSyncChannelExhausted = errors.New("conn: sync channel exhausted")
