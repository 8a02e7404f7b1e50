package peer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// byteOrder matches channeldb's convention: big endian, so that any future
// range scan over serialized fields iterates in a sane order.
var byteOrder = binary.BigEndian

func encodePersistedPeer(pp persistedPeer) ([]byte, error) {
	var buf bytes.Buffer

	if _, err := buf.Write(pp.Id[:]); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, byteOrder, pp.Reputation); err != nil {
		return nil, err
	}

	if pp.LastHandshake != nil {
		if err := buf.WriteByte(1); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, byteOrder, pp.LastHandshake.Unix()); err != nil {
			return nil, err
		}
	} else {
		if err := buf.WriteByte(0); err != nil {
			return nil, err
		}
	}

	if pp.KnownAddr != nil {
		addrBytes := []byte(*pp.KnownAddr)
		if err := binary.Write(&buf, byteOrder, uint16(len(addrBytes))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(addrBytes); err != nil {
			return nil, err
		}
	} else {
		if err := binary.Write(&buf, byteOrder, uint16(0)); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodePersistedPeer(raw []byte) (persistedPeer, error) {
	r := bytes.NewReader(raw)
	var pp persistedPeer

	if _, err := io.ReadFull(r, pp.Id[:]); err != nil {
		return pp, fmt.Errorf("peer: decode id: %w", err)
	}

	if err := binary.Read(r, byteOrder, &pp.Reputation); err != nil {
		return pp, fmt.Errorf("peer: decode reputation: %w", err)
	}

	var hasHandshake byte
	if err := binary.Read(r, byteOrder, &hasHandshake); err != nil {
		return pp, fmt.Errorf("peer: decode handshake flag: %w", err)
	}
	if hasHandshake == 1 {
		var unixSec int64
		if err := binary.Read(r, byteOrder, &unixSec); err != nil {
			return pp, fmt.Errorf("peer: decode handshake time: %w", err)
		}
		t := time.Unix(unixSec, 0).UTC()
		pp.LastHandshake = &t
	}

	var addrLen uint16
	if err := binary.Read(r, byteOrder, &addrLen); err != nil {
		return pp, fmt.Errorf("peer: decode addr length: %w", err)
	}
	if addrLen > 0 {
		addrBytes := make([]byte, addrLen)
		if _, err := io.ReadFull(r, addrBytes); err != nil {
			return pp, fmt.Errorf("peer: decode addr: %w", err)
		}
		addr := Address(addrBytes)
		pp.KnownAddr = &addr
	}

	return pp, nil
}
