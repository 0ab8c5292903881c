package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// SequentialIDs generates UUIDs whose last eight bytes count up from 1:
// 00000000-0000-0000-0000-000000000001, ...0002, and so on.
//
// Unlike qc.FixedGenerator it never runs out, which suits scenarios whose
// segment count is not known up front. The same scenario with a fresh
// SequentialIDs produces byte-identical snapshots.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialIDs creates a generator whose first id ends in ...0001.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: 1}
}

// NewID implements qc.IDGenerator.
func (g *SequentialIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := SeqID(g.next)
	g.next++
	return id
}

// SeqID returns the n-th id a fresh SequentialIDs would produce.
func SeqID(n uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}
