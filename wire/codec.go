package wire

import (
	"bytes"
	"fmt"
	"io"
)

// Factory constructs an empty Message for a given MessageType, the way
// lnwire.makeEmptyMessage dispatches on MessageType. Each protocol
// (discovery, diffusion, aggregation) supplies its own Factory.
type Factory func(MessageType) (Message, error)

// WriteMessage frames one message as a single length-prefixed frame whose
// payload is [1-byte MessageType][encoded body], the data-frame format a
// substream carries once in message mode (spec §6).
func WriteMessage(w io.Writer, msg Message) error {
	var body bytes.Buffer
	if err := msg.Encode(&body); err != nil {
		return err
	}

	payload := make([]byte, 0, body.Len()+1)
	payload = append(payload, byte(msg.MsgType()))
	payload = append(payload, body.Bytes()...)

	return WriteFrame(w, payload)
}

// ReadMessage reads one data frame from r and decodes it via factory,
// rejecting frames larger than maxSize.
func ReadMessage(r io.Reader, maxSize uint32, factory Factory) (Message, error) {
	frame, err := ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(frame) < 1 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecodeFailed)
	}

	msg, err := factory(MessageType(frame[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	if err := msg.Decode(bytes.NewReader(frame[1:])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	return msg, nil
}
