package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"lithipos/internal/device"
	"lithipos/internal/ledger"
	"lithipos/internal/operator"
	"lithipos/pkg/platform/sentinel"
)

// InMemoryStore implements the device and receipt stores over process
// memory. It backs tests and single-node development; one mutex guards
// devices and receipts together so the append's receipt-plus-tip write is
// atomic by construction.
type InMemoryStore struct {
	mu       sync.RWMutex
	devices  map[string]*device.Device
	receipts map[string][]*ledger.Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		devices:  make(map[string]*device.Device),
		receipts: make(map[string][]*ledger.Receipt),
	}
}

func (s *InMemoryStore) Create(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.devices[d.DeviceID]; ok {
		if existing.SerialNumber != d.SerialNumber {
			return sentinel.ErrConflict
		}
		return nil
	}
	cp := *d
	if cp.ChainTip == "" {
		cp.ChainTip = device.Genesis
	}
	s.devices[d.DeviceID] = &cp
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, deviceID string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) AttachCertificate(_ context.Context, deviceID, certificate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	d.Certificate = certificate
	d.Registered = true
	return nil
}

func (s *InMemoryStore) OpenDay(_ context.Context, deviceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	if d.IsDayOpen {
		return 0, sentinel.ErrInvalidState
	}
	d.IsDayOpen = true
	d.FiscalDayNo++
	return d.FiscalDayNo, nil
}

func (s *InMemoryStore) CloseDay(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	d.IsDayOpen = false
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, r *ledger.Receipt, expectedTip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[r.DeviceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !d.IsDayOpen {
		return sentinel.ErrConflict
	}
	if d.ChainTip != expectedTip {
		return sentinel.ErrConflict
	}
	for _, existing := range s.receipts[r.DeviceID] {
		if existing.GlobalNo == r.GlobalNo {
			return sentinel.ErrConflict
		}
	}
	cp := *r
	s.receipts[r.DeviceID] = append(s.receipts[r.DeviceID], &cp)
	d.ChainTip = r.Hash
	return nil
}

func (s *InMemoryStore) NextGlobalNo(_ context.Context, deviceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, r := range s.receipts[deviceID] {
		if r.GlobalNo > max {
			max = r.GlobalNo
		}
	}
	return max + 1, nil
}

func (s *InMemoryStore) FindByGlobalNo(_ context.Context, deviceID string, globalNo int64) (*ledger.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.receipts[deviceID] {
		if r.GlobalNo == globalNo {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByDevice(_ context.Context, deviceID string, limit int) ([]*ledger.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipts := s.receipts[deviceID]
	out := make([]*ledger.Receipt, 0, len(receipts))
	for _, r := range receipts {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalNo < out[j].GlobalNo })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status ledger.ReportStatus, limit int) ([]*ledger.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Receipt
	for _, receipts := range s.receipts {
		for _, r := range receipts {
			if r.ReportStatus == status {
				cp := *r
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListUnreported(_ context.Context, pendingBefore time.Time, limit int) ([]*ledger.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Receipt
	for _, receipts := range s.receipts {
		for _, r := range receipts {
			if r.ReportStatus == ledger.StatusQueued ||
				(r.ReportStatus == ledger.StatusPending && r.CreatedAt.Before(pendingBefore)) {
				cp := *r
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) SetReportStatus(_ context.Context, deviceID string, globalNo int64, status ledger.ReportStatus, serverSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.receipts[deviceID] {
		if r.GlobalNo == globalNo {
			r.ReportStatus = status
			r.ServerSignature = serverSignature
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// InMemoryOperatorStore keeps operators in a map.
type InMemoryOperatorStore struct {
	mu        sync.RWMutex
	operators map[string]*operator.Operator
}

func NewInMemoryOperatorStore() *InMemoryOperatorStore {
	return &InMemoryOperatorStore{operators: make(map[string]*operator.Operator)}
}

func (s *InMemoryOperatorStore) Create(_ context.Context, op *operator.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.operators {
		if existing.Username == op.Username {
			return sentinel.ErrConflict
		}
	}
	cp := *op
	s.operators[op.ID] = &cp
	return nil
}

func (s *InMemoryOperatorStore) FindByUsername(_ context.Context, username string) (*operator.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.operators {
		if op.Username == username {
			cp := *op
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
