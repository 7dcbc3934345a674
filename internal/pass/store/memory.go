package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/musicamatics/queueskip/internal/pass/models"
	id "github.com/musicamatics/queueskip/pkg/domain"
)

// Memory is the in-memory Store used by unit tests and single-node dev runs.
// A coarse transaction mutex serializes RunInTx blocks; individual operations
// take the inner data lock, so a lone UpdateStatus is still atomic.
type Memory struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	passes      map[id.PassID]*models.Pass
	types       map[id.PassTypeID]*models.PassType
	redemptions map[string]*models.RedemptionRecord
	transfers   map[string]*models.TransferRecord
}

func NewMemory() *Memory {
	return &Memory{
		passes:      make(map[id.PassID]*models.Pass),
		types:       make(map[id.PassTypeID]*models.PassType),
		redemptions: make(map[string]*models.RedemptionRecord),
		transfers:   make(map[string]*models.TransferRecord),
	}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

func (m *Memory) CreatePass(_ context.Context, p *models.Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.passes[p.ID]; exists {
		return ErrInvalidState
	}
	cp := clonePass(p)
	m.passes[p.ID] = cp
	return nil
}

func (m *Memory) GetPass(_ context.Context, passID id.PassID) (*models.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passes[passID]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePass(p), nil
}

func (m *Memory) ListUserPasses(_ context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Pass
	for _, p := range m.passes {
		if p.UserID == userID && p.VenueID == venueID {
			out = append(out, clonePass(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// LockAllocation is a no-op: txMu already serializes whole RunInTx blocks,
// so concurrent allocations never interleave here.
func (m *Memory) LockAllocation(_ context.Context, _ id.UserID, _ id.PassTypeID) error {
	return nil
}

func (m *Memory) CountIssuedSince(_ context.Context, userID id.UserID, passTypeID id.PassTypeID, cutoff time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.passes {
		if p.UserID == userID && p.PassTypeID == passTypeID && !p.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateStatus(_ context.Context, passID id.PassID, from, to models.Status, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passes[passID]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrAlreadyUsed
	}
	if !now.Before(p.ValidUntil) {
		return ErrExpired
	}
	p.Status = to
	return nil
}

func (m *Memory) AppendRedemption(_ context.Context, rec *models.RedemptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.redemptions[rec.ID] = &cp
	return nil
}

func (m *Memory) AppendTransfer(_ context.Context, rec *models.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.transfers[rec.ID] = &cp
	return nil
}

func (m *Memory) SetPassReceipt(_ context.Context, passID id.PassID, receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.passes[passID]
	if !ok {
		return ErrNotFound
	}
	p.ReceiptID = receiptID
	return nil
}

func (m *Memory) SetRedemptionReceipt(_ context.Context, recordID, receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.redemptions[recordID]
	if !ok {
		return ErrNotFound
	}
	rec.ReceiptID = receiptID
	return nil
}

func (m *Memory) SetTransferReceipt(_ context.Context, recordID, receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.transfers[recordID]
	if !ok {
		return ErrNotFound
	}
	rec.ReceiptID = receiptID
	return nil
}

func (m *Memory) GetPassType(_ context.Context, typeID id.PassTypeID) (*models.PassType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.types[typeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pt
	return &cp, nil
}

func (m *Memory) CreatePassType(_ context.Context, pt *models.PassType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pt
	m.types[pt.ID] = &cp
	return nil
}

// GetRedemption returns an audit row by id. Test helper; not part of Store.
func (m *Memory) GetRedemption(recordID string) (*models.RedemptionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.redemptions[recordID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// GetTransfer returns an audit row by id. Test helper; not part of Store.
func (m *Memory) GetTransfer(recordID string) (*models.TransferRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.transfers[recordID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func clonePass(p *models.Pass) *models.Pass {
	cp := *p
	if p.Restrictions != nil {
		cp.Restrictions = append([]models.Restriction(nil), p.Restrictions...)
	}
	return &cp
}
