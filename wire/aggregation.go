package wire

import (
	"fmt"
	"io"
)

// PeerIx is a committee member's index in the ordered committee [0, n).
type PeerIx uint32

// Aggregation v1 message types.
const (
	MsgAggRequest MessageType = iota
	MsgAggResponse
)

// PartialSig is a verified committee member's BIP-0340 partial signature:
// the commitment point R (32-byte x-only encoding) and the response scalar
// z (32 bytes).
type PartialSig struct {
	R [32]byte
	Z [32]byte
}

// ExclusionProof is a standalone BIP-0340 signature produced by the
// committee member who held a non-responder's commitment secret,
// attesting that the holder has not contributed to the aggregate.
type ExclusionProof struct {
	R [32]byte
	S [32]byte
}

// Contribution bundles one committee member's response: exactly one of
// Partial or Exclusion is set.
type Contribution struct {
	Index     PeerIx
	Partial   *PartialSig
	Exclusion *ExclusionProof
}

func (c Contribution) validate() error {
	if (c.Partial == nil) == (c.Exclusion == nil) {
		return fmt.Errorf("wire: contribution must set exactly one of partial/exclusion")
	}
	return nil
}

func encodeContribution(w io.Writer, c Contribution) error {
	if err := c.validate(); err != nil {
		return err
	}
	var idxBuf [4]byte
	putUint32(idxBuf[:], uint32(c.Index))
	if _, err := w.Write(idxBuf[:]); err != nil {
		return err
	}
	if c.Partial != nil {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
		if _, err := w.Write(c.Partial.R[:]); err != nil {
			return err
		}
		if _, err := w.Write(c.Partial.Z[:]); err != nil {
			return err
		}
		return nil
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	if _, err := w.Write(c.Exclusion.R[:]); err != nil {
		return err
	}
	_, err := w.Write(c.Exclusion.S[:])
	return err
}

func decodeContribution(r io.Reader) (Contribution, error) {
	var idxBuf [4]byte
	if _, err := io.ReadFull(r, idxBuf[:]); err != nil {
		return Contribution{}, err
	}
	c := Contribution{Index: PeerIx(getUint32(idxBuf[:]))}

	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return Contribution{}, err
	}

	switch kind[0] {
	case 0:
		var p PartialSig
		if _, err := io.ReadFull(r, p.R[:]); err != nil {
			return Contribution{}, err
		}
		if _, err := io.ReadFull(r, p.Z[:]); err != nil {
			return Contribution{}, err
		}
		c.Partial = &p
	case 1:
		var e ExclusionProof
		if _, err := io.ReadFull(r, e.R[:]); err != nil {
			return Contribution{}, err
		}
		if _, err := io.ReadFull(r, e.S[:]); err != nil {
			return Contribution{}, err
		}
		c.Exclusion = &e
	default:
		return Contribution{}, fmt.Errorf("wire: unknown contribution kind %d", kind[0])
	}

	return c, nil
}

// Request asks the recipient (at the given overlay level) for its partial
// signature, piggybacking every contribution already verified at lower
// levels so the recipient can skip redundant round trips.
type Request struct {
	Level      uint8
	Piggyback  []Contribution
}

func (m *Request) MsgType() MessageType { return MsgAggRequest }

func (m *Request) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{m.Level}); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(m.Piggyback))); err != nil {
		return err
	}
	for _, c := range m.Piggyback {
		if err := encodeContribution(w, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Request) Decode(r io.Reader) error {
	var level [1]byte
	if _, err := io.ReadFull(r, level[:]); err != nil {
		return err
	}
	m.Level = level[0]

	count, err := readUvarint(r)
	if err != nil {
		return err
	}
	piggyback := make([]Contribution, count)
	for i := range piggyback {
		c, err := decodeContribution(r)
		if err != nil {
			return err
		}
		piggyback[i] = c
	}
	m.Piggyback = piggyback
	return nil
}

// Response answers a Request with the sender's own contribution at Level.
type Response struct {
	Level        uint8
	Contribution Contribution
}

func (m *Response) MsgType() MessageType { return MsgAggResponse }

func (m *Response) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{m.Level}); err != nil {
		return err
	}
	return encodeContribution(w, m.Contribution)
}

func (m *Response) Decode(r io.Reader) error {
	var level [1]byte
	if _, err := io.ReadFull(r, level[:]); err != nil {
		return err
	}
	m.Level = level[0]

	c, err := decodeContribution(r)
	if err != nil {
		return err
	}
	m.Contribution = c
	return nil
}
