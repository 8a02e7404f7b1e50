package peer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbName           = "peerbook.db"
	dbFilePermission = 0600
)

var peerBucket = []byte("peers")

// persistedPeer is the on-disk tuple named in spec §6: (peer_id,
// best_known_address?, reputation, last_handshake?).
type persistedPeer struct {
	Id            Id
	KnownAddr     *Address
	Reputation    int32
	LastHandshake *time.Time
}

// Book is the in-memory, reputation-scored peer store, optionally backed by
// a bbolt database for the persisted subset of each record (spec §6),
// grounded on channeldb.DB's Open/Close lifecycle.
type Book struct {
	mu      sync.Mutex
	records map[Id]*Record
	db      *bbolt.DB
}

// NewBook creates an in-memory-only book, useful for tests and for nodes
// run without a data directory.
func NewBook() *Book {
	return &Book{records: make(map[Id]*Record)}
}

// OpenBook opens (creating if absent) a peer book persisted under dbPath,
// loading any previously saved records.
func OpenBook(dbPath string) (*Book, error) {
	path := filepath.Join(dbPath, dbName)

	db, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("peer: opening book: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peerBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	b := &Book{records: make(map[Id]*Record), db: db}
	if err := b.load(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

// Close releases the backing database, if any.
func (b *Book) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Book) load() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(peerBucket)
		return bucket.ForEach(func(k, v []byte) error {
			pp, err := decodePersistedPeer(v)
			if err != nil {
				return err
			}
			rec := newRecord(pp.Id)
			rec.Reputation = pp.Reputation
			rec.KnownAddr = pp.KnownAddr
			rec.LastHandshake = pp.LastHandshake
			b.records[pp.Id] = rec
			return nil
		})
	})
}

// persist writes the persisted subset of rec to the backing database. A
// no-op when the book is in-memory only.
func (b *Book) persist(rec *Record) error {
	if b.db == nil {
		return nil
	}

	pp := persistedPeer{
		Id:            rec.Id,
		KnownAddr:     rec.KnownAddr,
		Reputation:    rec.Reputation,
		LastHandshake: rec.LastHandshake,
	}
	encoded, err := encodePersistedPeer(pp)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(peerBucket).Put(rec.Id[:], encoded)
	})
}

// GetOrCreate returns the existing record for id, creating an absent one.
// Returns the record and whether it was newly created.
func (b *Book) GetOrCreate(id Id) (*Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.records[id]; ok {
		return rec, false
	}
	rec := newRecord(id)
	b.records[id] = rec
	return rec, true
}

// Get returns the record for id, if known.
func (b *Book) Get(id Id) (*Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	return rec, ok
}

// Delete forgets a peer, including its persisted record if the book is
// backed by a database. A reserved peer is never forgotten; Delete is a
// no-op for one (spec §3 invariant).
func (b *Book) Delete(id Id) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.records[id]; ok && rec.Reserved {
		return
	}
	delete(b.records, id)

	if b.db != nil {
		_ = b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(peerBucket).Delete(id[:])
		})
	}
}

// Mutate runs fn against id's record under the book's lock, creating the
// record if absent, and persists the result afterward. This is the single
// entry point every reputation/connection-state transition goes through so
// invariants are enforced in one place.
func (b *Book) Mutate(id Id, fn func(*Record)) {
	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		rec = newRecord(id)
		b.records[id] = rec
	}
	fn(rec)
	snapshot := *rec
	b.mu.Unlock()

	_ = b.persist(&snapshot)
}

// Reserved returns the set of reserved peer ids.
func (b *Book) Reserved() []Id {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Id
	for id, rec := range b.records {
		if rec.Reserved {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot returns a defensive copy of every known record, used by the
// allocator passes and by discovery's Peers reply.
func (b *Book) Snapshot() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, *rec)
	}
	return out
}

// Count returns the number of known peer records.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
