package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockId identifies a block section by its content hash.
type BlockId = chainhash.Hash

// OriginBlockId is the sentinel identifying the genesis/origin point, used
// when a remote's tail is empty and nothing shorter can be named.
var OriginBlockId BlockId

// ModifierType distinguishes the kind of block-section payload being
// requested/delivered by GetModifiers/Modifiers, independent of the
// message's own MessageType.
type ModifierType uint8

const (
	// ModifierBlock carries full block sections.
	ModifierBlock ModifierType = iota
	// ModifierHeader carries header-only sections.
	ModifierHeader
)

// Diffusion v1 message types.
const (
	MsgSyncStatus MessageType = iota
	MsgGetModifiers
	MsgModifiers
	MsgBlockRequest
	MsgBlockResponse
)

// SyncStatus is the diffusion handshake: the sender's height and its tail
// of last-known blocks, newest first.
type SyncStatus struct {
	Height     uint64
	LastBlocks []BlockId
}

func (m *SyncStatus) MsgType() MessageType { return MsgSyncStatus }

func (m *SyncStatus) Encode(w io.Writer) error {
	var heightBuf [8]byte
	putUint64(heightBuf[:], m.Height)
	if _, err := w.Write(heightBuf[:]); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(m.LastBlocks))); err != nil {
		return err
	}
	for _, id := range m.LastBlocks {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *SyncStatus) Decode(r io.Reader) error {
	var heightBuf [8]byte
	if _, err := io.ReadFull(r, heightBuf[:]); err != nil {
		return err
	}
	m.Height = getUint64(heightBuf[:])

	count, err := readUvarint(r)
	if err != nil {
		return err
	}
	blocks := make([]BlockId, count)
	for i := range blocks {
		if _, err := io.ReadFull(r, blocks[i][:]); err != nil {
			return err
		}
	}
	m.LastBlocks = blocks
	return nil
}

// GetModifiers requests the payloads for a set of block section ids.
type GetModifiers struct {
	Type ModifierType
	Ids  []BlockId
}

func (m *GetModifiers) MsgType() MessageType { return MsgGetModifiers }

func (m *GetModifiers) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(m.Type)}); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(m.Ids))); err != nil {
		return err
	}
	for _, id := range m.Ids {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *GetModifiers) Decode(r io.Reader) error {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return err
	}
	m.Type = ModifierType(typeBuf[0])

	count, err := readUvarint(r)
	if err != nil {
		return err
	}
	ids := make([]BlockId, count)
	for i := range ids {
		if _, err := io.ReadFull(r, ids[i][:]); err != nil {
			return err
		}
	}
	m.Ids = ids
	return nil
}

// Modifiers replies to GetModifiers with the serialized section payloads,
// in the same order as the request's Ids.
type Modifiers struct {
	Type     ModifierType
	Payloads [][]byte
}

func (m *Modifiers) MsgType() MessageType { return MsgModifiers }

func (m *Modifiers) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(m.Type)}); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(m.Payloads))); err != nil {
		return err
	}
	for _, p := range m.Payloads {
		if err := writeUvarint(w, uint64(len(p))); err != nil {
			return err
		}
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Modifiers) Decode(r io.Reader) error {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return err
	}
	m.Type = ModifierType(typeBuf[0])

	count, err := readUvarint(r)
	if err != nil {
		return err
	}
	payloads := make([][]byte, count)
	for i := range payloads {
		n, err := readUvarint(r)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		payloads[i] = buf
	}
	m.Payloads = payloads
	return nil
}

// BlockRequest asks for up to Cap block ids strictly following Tip.
type BlockRequest struct {
	Tip BlockId
	Cap uint32
}

func (m *BlockRequest) MsgType() MessageType { return MsgBlockRequest }

func (m *BlockRequest) Encode(w io.Writer) error {
	if _, err := w.Write(m.Tip[:]); err != nil {
		return err
	}
	var capBuf [4]byte
	putUint32(capBuf[:], m.Cap)
	_, err := w.Write(capBuf[:])
	return err
}

func (m *BlockRequest) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, m.Tip[:]); err != nil {
		return err
	}
	var capBuf [4]byte
	if _, err := io.ReadFull(r, capBuf[:]); err != nil {
		return err
	}
	m.Cap = getUint32(capBuf[:])
	return nil
}

// BlockResponse carries the extension ids returned for a BlockRequest.
type BlockResponse struct {
	Ids []BlockId
}

func (m *BlockResponse) MsgType() MessageType { return MsgBlockResponse }

func (m *BlockResponse) Encode(w io.Writer) error {
	if err := writeUvarint(w, uint64(len(m.Ids))); err != nil {
		return err
	}
	for _, id := range m.Ids {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *BlockResponse) Decode(r io.Reader) error {
	count, err := readUvarint(r)
	if err != nil {
		return err
	}
	ids := make([]BlockId, count)
	for i := range ids {
		if _, err := io.ReadFull(r, ids[i][:]); err != nil {
			return err
		}
	}
	m.Ids = ids
	return nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[3-i] = byte(v >> (8 * i))
	}
}

func getUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}
