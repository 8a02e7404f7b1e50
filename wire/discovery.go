package wire

import (
	"encoding/binary"
	"io"
)

// Discovery v1 message types.
const (
	MsgGetPeers MessageType = iota
	MsgPeers
)

// GetPeers requests the peer's known-peer set. It carries no payload.
type GetPeers struct{}

func (m *GetPeers) MsgType() MessageType       { return MsgGetPeers }
func (m *GetPeers) Encode(w io.Writer) error   { return nil }
func (m *GetPeers) Decode(r io.Reader) error   { return nil }

// Peers replies to GetPeers with a bounded set of known peer destinations.
type Peers struct {
	Destinations []PeerDestination
}

func (m *Peers) MsgType() MessageType { return MsgPeers }

func (m *Peers) Encode(w io.Writer) error {
	if err := writeUvarint(w, uint64(len(m.Destinations))); err != nil {
		return err
	}
	for _, d := range m.Destinations {
		if _, err := w.Write(d.Id[:]); err != nil {
			return err
		}
		if d.Addr == nil {
			if err := writeUvarint(w, 0); err != nil {
				return err
			}
			continue
		}
		addrBytes := []byte(*d.Addr)
		if err := writeUvarint(w, uint64(len(addrBytes))+1); err != nil {
			return err
		}
		if _, err := w.Write(addrBytes); err != nil {
			return err
		}
	}
	return nil
}

func (m *Peers) Decode(r io.Reader) error {
	count, err := readUvarint(r)
	if err != nil {
		return err
	}

	dests := make([]PeerDestination, 0, count)
	for i := uint64(0); i < count; i++ {
		var d PeerDestination
		if _, err := io.ReadFull(r, d.Id[:]); err != nil {
			return err
		}

		addrLen, err := readUvarint(r)
		if err != nil {
			return err
		}
		if addrLen > 0 {
			buf := make([]byte, addrLen-1)
			if _, err := io.ReadFull(r, buf); err != nil {
				return err
			}
			addr := PeerAddress(buf)
			d.Addr = &addr
		}

		dests = append(dests, d)
	}

	m.Destinations = dests
	return nil
}

func writeUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readUvarint(r io.Reader) (uint64, error) {
	return binary.ReadUvarint(newByteReader(r))
}
