// Package inmemory implements domain/store.Store with an in-process
// map guarded by a mutex: a single struct holding one map per entity
// kind plus a sync.RWMutex.
package inmemory

import (
	"context"
	"sync"

	"github.com/paymentfabric/slashpay-engine/internal/corerr"
	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

type timeValue = store.TimeValue
type amountValue = store.AmountValue

type Store struct {
	mu       sync.RWMutex
	ready    bool
	orders   map[string]*store.OrderRecord
	outgoing map[string]*store.OutgoingPaymentRecord
	incoming map[string]*store.IncomingPaymentRecord
}

func New() *Store {
	return &Store{
		orders:   make(map[string]*store.OrderRecord),
		outgoing: make(map[string]*store.OutgoingPaymentRecord),
		incoming: make(map[string]*store.IncomingPaymentRecord),
	}
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

func (s *Store) checkReady() error {
	if !s.ready {
		return corerr.ErrNotReady
	}
	return nil
}

func passesRemoved(removed bool, opts store.GetOptions) bool {
	switch opts.Removed {
	case store.RemovedOnly:
		return removed
	case store.RemovedAny:
		return true
	default:
		return !removed
	}
}

// --- orders ---

func (s *Store) SaveOrder(ctx context.Context, rec store.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	if _, exists := s.orders[rec.ID]; exists {
		return corerr.ErrDuplicateID
	}
	clone := rec
	s.orders[rec.ID] = &clone
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string, opts store.GetOptions) (*store.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	rec, ok := s.orders[id]
	if !ok || !passesRemoved(rec.Removed, opts) {
		return nil, corerr.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	rec, ok := s.orders[id]
	if !ok {
		return corerr.ErrNotFound
	}
	return applyOrderPatch(rec, patch)
}

func applyOrderPatch(rec *store.OrderRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldState:
			sv, ok := v.(string)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.State = sv
		case store.FieldLastPaymentAt:
			tp, ok := v.(store.TimePtrValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.LastPaymentAt = tp.T
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

// --- outgoing payments ---

func (s *Store) SaveOutgoingPayment(ctx context.Context, rec store.OutgoingPaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	if _, exists := s.outgoing[rec.ID]; exists {
		return corerr.ErrDuplicateID
	}
	clone := rec
	clone.State = *rec.State.Clone()
	s.outgoing[rec.ID] = &clone
	return nil
}

func (s *Store) GetOutgoingPayment(ctx context.Context, id string, opts store.GetOptions) (*store.OutgoingPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	rec, ok := s.outgoing[id]
	if !ok || !passesRemoved(rec.Removed, opts) {
		return nil, corerr.ErrNotFound
	}
	clone := *rec
	clone.State = *rec.State.Clone()
	return &clone, nil
}

func (s *Store) UpdateOutgoingPayment(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	rec, ok := s.outgoing[id]
	if !ok {
		return corerr.ErrNotFound
	}
	return applyOutgoingPatch(rec, patch)
}

func applyOutgoingPatch(rec *store.OutgoingPaymentRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldState:
			st, ok := v.(store.StateValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.State = st.S
		case store.FieldExecuteAt:
			t, ok := v.(timeValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.ExecuteAt = t.T
		case store.FieldPluginUpdate:
			m, ok := v.(store.MapValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.PluginUpdate = m.V
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

func (s *Store) GetOutgoingPayments(ctx context.Context, filter map[string]any, opts store.GetOptions) ([]store.OutgoingPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	var out []store.OutgoingPaymentRecord
	for _, rec := range s.outgoing {
		if !passesRemoved(rec.Removed, opts) {
			continue
		}
		if !matchesFilter(rec, filter) {
			continue
		}
		clone := *rec
		clone.State = *rec.State.Clone()
		out = append(out, clone)
	}
	return out, nil
}

func matchesFilter(rec *store.OutgoingPaymentRecord, filter map[string]any) bool {
	for k, v := range filter {
		switch k {
		case "orderId":
			if rec.OrderID != v {
				return false
			}
		case "clientOrderId":
			if rec.ClientOrderID != v {
				return false
			}
		case "id":
			if rec.ID != v {
				return false
			}
		}
	}
	return true
}

// --- incoming payments ---

func (s *Store) SaveIncomingPayment(ctx context.Context, rec store.IncomingPaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	if _, exists := s.incoming[rec.ID]; exists {
		return corerr.ErrDuplicateID
	}
	clone := rec
	s.incoming[rec.ID] = &clone
	return nil
}

func (s *Store) GetIncomingPayment(ctx context.Context, id string, opts store.GetOptions) (*store.IncomingPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	rec, ok := s.incoming[id]
	if !ok || !passesRemoved(rec.Removed, opts) {
		return nil, corerr.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *Store) UpdateIncomingPayment(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkReady(); err != nil {
		return err
	}
	rec, ok := s.incoming[id]
	if !ok {
		return corerr.ErrNotFound
	}
	return applyIncomingPatch(rec, patch)
}

func applyIncomingPatch(rec *store.IncomingPaymentRecord, patch map[string]any) error {
	for k, v := range patch {
		switch k {
		case store.FieldRemoved:
			b, ok := v.(bool)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.Removed = b
		case store.FieldInternalState:
			sv, ok := v.(string)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.InternalState = sv
		case store.FieldAmount:
			a, ok := v.(amountValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			amt := a.A
			rec.Amount = &amt
		case store.FieldReceivedByPlugins:
			rbp, ok := v.(store.ReceivedByPluginsValue)
			if !ok {
				return corerr.ErrInvalidPatch
			}
			rec.ReceivedByPlugins = rbp.V
		default:
			return corerr.ErrInvalidPatch
		}
	}
	return nil
}

func (s *Store) GetIncomingPayments(ctx context.Context, filter map[string]any, opts store.GetOptions) ([]store.IncomingPaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	var out []store.IncomingPaymentRecord
	for _, rec := range s.incoming {
		if !passesRemoved(rec.Removed, opts) {
			continue
		}
		if cid, ok := filter["clientOrderId"]; ok && rec.ClientOrderID != cid {
			continue
		}
		clone := *rec
		out = append(out, clone)
	}
	return out, nil
}
