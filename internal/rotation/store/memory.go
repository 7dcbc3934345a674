package store

import (
	"context"
	"sync"
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

// Memory is the in-memory Store for unit tests and dev runs.
type Memory struct {
	mu      sync.RWMutex
	records map[id.PassID][]*Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[id.PassID][]*Record)}
}

func (m *Memory) Record(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.PassID] = append(m.records[rec.PassID], &cp)
	return nil
}

func (m *Memory) Current(_ context.Context, passID id.PassID, now time.Time) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[passID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ExpiresAt.After(now) {
			cp := *recs[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GCExpired(_ context.Context, passID id.PassID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[passID]
	kept := recs[:0]
	for _, rec := range recs {
		if rec.ExpiresAt.After(now) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		delete(m.records, passID)
		return nil
	}
	m.records[passID] = kept
	return nil
}

// Count reports stored records for a pass. Test helper; not part of Store.
func (m *Memory) Count(passID id.PassID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[passID])
}
