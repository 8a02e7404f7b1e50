package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// StatementId identifies a multicast statement by its content hash, the
// key every relay dedups on (spec §4.9: "deduplicates by statement hash").
type StatementId = chainhash.Hash

// Multicast v1 message types.
const (
	MsgStatement MessageType = iota
	MsgStatementAck
)

// Statement is one DAG-overlay broadcast unit: an opaque payload plus the
// id every relay on the path dedups by.
type Statement struct {
	Id      StatementId
	Payload []byte
}

func (m *Statement) MsgType() MessageType { return MsgStatement }

func (m *Statement) Encode(w io.Writer) error {
	if _, err := w.Write(m.Id[:]); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(m.Payload))); err != nil {
		return err
	}
	_, err := w.Write(m.Payload)
	return err
}

func (m *Statement) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, m.Id[:]); err != nil {
		return err
	}
	n, err := readUvarint(r)
	if err != nil {
		return err
	}
	m.Payload = make([]byte, n)
	_, err = io.ReadFull(r, m.Payload)
	return err
}

// StatementAck signals receipt of a statement back toward the relay that
// forwarded it, the building block for the initiator-facing on_response
// signal (spec §4.9).
type StatementAck struct {
	Id StatementId
}

func (m *StatementAck) MsgType() MessageType { return MsgStatementAck }

func (m *StatementAck) Encode(w io.Writer) error {
	_, err := w.Write(m.Id[:])
	return err
}

func (m *StatementAck) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Id[:])
	return err
}
