package store

import (
	"context"
	"sync"
	"time"

	"github.com/awpearlm/rummikub-backend-sub007/internal/game"
)

// MemoryStore keeps records in-process. It is the default backend and
// the degradation target when an external store goes away.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	blobs   map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		blobs:   make(map[string][]byte),
	}
}

// Save overwrites the game's record, bumping the version.
func (m *MemoryStore) Save(_ context.Context, snap game.Snapshot) error {
	sum, data, err := checksum(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec := Record{
		GameID:   snap.ID,
		Version:  m.records[snap.ID].Version + 1,
		SavedAt:  time.Now(),
		Checksum: sum,
		State:    snap,
	}
	m.records[snap.ID] = rec
	m.blobs[snap.ID] = data
	return nil
}

// Load returns the stored snapshot after integrity validation.
func (m *MemoryStore) Load(_ context.Context, gameID string) (game.Snapshot, error) {
	m.mu.RLock()
	rec, ok := m.records[gameID]
	data := m.blobs[gameID]
	m.mu.RUnlock()
	if !ok {
		return game.Snapshot{}, ErrNotFound
	}
	return verify(gameID, rec.Checksum, data)
}

// Delete drops the game's record.
func (m *MemoryStore) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, gameID)
	delete(m.blobs, gameID)
	return nil
}

// Corrupt flips a byte of the stored blob. Test hook for the
// reject-corrupted-records contract.
func (m *MemoryStore) Corrupt(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.blobs[gameID]; ok && len(data) > 10 {
		data[10] ^= 0xFF
	}
}
