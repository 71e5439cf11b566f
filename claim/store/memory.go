// Package store provides in-memory implementations of the claim contracts.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rdc/incentive-engine/claim"
	"github.com/rdc/incentive-engine/emr"
	"github.com/rdc/incentive-engine/notify"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements claim.Store, claim.Counter, claim.BatchStore,
// claim.ActivityLog, claim.ProfileStore, notify.NoticeStore and emr.Store.
// Every read returns a copy, so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	claims   map[string]*claim.Claim
	counters map[string]int64
	batches  map[string]*claim.PaymentBatch
	activity []claim.ActivityEntry
	profiles map[string]*claim.UserProfile
	notices  []*notify.Notice

	calls     map[string]*emr.Call
	interests map[string]*emr.Interest
}

func NewMemory() *Memory {
	return &Memory{
		claims:   make(map[string]*claim.Claim),
		counters: make(map[string]int64),
		batches:  make(map[string]*claim.PaymentBatch),
		profiles: make(map[string]*claim.UserProfile),

		calls:     make(map[string]*emr.Call),
		interests: make(map[string]*emr.Interest),
	}
}

// =============================================================================
// CLAIMS
// =============================================================================

func (m *Memory) Get(_ context.Context, id string) (*claim.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.claims[id]
	if !ok {
		return nil, &claim.NotFoundError{Kind: "claim", ID: id}
	}
	return c.Clone(), nil
}

func (m *Memory) Create(_ context.Context, c *claim.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Version = 1
	m.claims[c.ID] = c.Clone()
	return nil
}

// Update is a compare-and-set on Version.
func (m *Memory) Update(_ context.Context, c *claim.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.claims[c.ID]
	if !ok {
		return &claim.NotFoundError{Kind: "claim", ID: c.ID}
	}
	if stored.Version != c.Version {
		return claim.ErrConcurrentModification
	}
	c.Version++
	m.claims[c.ID] = c.Clone()
	return nil
}

func (m *Memory) Query(_ context.Context, f claim.Filter) ([]*claim.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*claim.Claim
	for _, c := range m.claims {
		if f.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ClaimID < out[j].ClaimID
	})
	return out, nil
}

// =============================================================================
// COUNTER
// =============================================================================

func (m *Memory) Next(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name]++
	return m.counters[name], nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (m *Memory) SaveBatch(_ context.Context, b *claim.PaymentBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches[b.Reference] = cloneBatch(b)
	return nil
}

func (m *Memory) GetBatch(_ context.Context, ref string) (*claim.PaymentBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[ref]
	if !ok {
		return nil, &claim.NotFoundError{Kind: "batch", ID: ref}
	}
	return cloneBatch(b), nil
}

func cloneBatch(b *claim.PaymentBatch) *claim.PaymentBatch {
	cp := *b
	cp.ClaimIDs = append([]string(nil), b.ClaimIDs...)
	cp.Remarks = make(map[string]string, len(b.Remarks))
	for k, v := range b.Remarks {
		cp.Remarks[k] = v
	}
	return &cp
}

// =============================================================================
// ACTIVITY LOG
// =============================================================================

func (m *Memory) Record(_ context.Context, e claim.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.activity = append(m.activity, e)
	return nil
}

// Activity returns every recorded entry in insertion order.
func (m *Memory) Activity() []claim.ActivityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]claim.ActivityEntry(nil), m.activity...)
}

// =============================================================================
// PROFILES
// =============================================================================

func (m *Memory) PutProfile(_ context.Context, p *claim.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if p.Bank != nil {
		bank := *p.Bank
		cp.Bank = &bank
	}
	m.profiles[p.UID] = &cp
	return nil
}

func (m *Memory) GetProfile(_ context.Context, uid string) (*claim.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[uid]
	if !ok {
		return nil, &claim.NotFoundError{Kind: "user", ID: uid}
	}
	cp := *p
	if p.Bank != nil {
		bank := *p.Bank
		cp.Bank = &bank
	}
	return &cp, nil
}

// =============================================================================
// NOTICES
// =============================================================================

func (m *Memory) SaveNotice(_ context.Context, n *notify.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	cp := *n
	m.notices = append(m.notices, &cp)
	return nil
}

// ListNotices returns a user's notices, newest first.
func (m *Memory) ListNotices(_ context.Context, uid string) ([]*notify.Notice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*notify.Notice
	for i := len(m.notices) - 1; i >= 0; i-- {
		if m.notices[i].UID == uid {
			cp := *m.notices[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) MarkNoticeRead(_ context.Context, uid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notices {
		if n.ID == id && n.UID == uid {
			n.Read = true
			return nil
		}
	}
	return &claim.NotFoundError{Kind: "notice", ID: id}
}

// =============================================================================
// EMR CALLS AND INTERESTS
// =============================================================================

func (m *Memory) CreateCall(_ context.Context, c *emr.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.calls[c.ID] = &cp
	return nil
}

func (m *Memory) GetCall(_ context.Context, id string) (*emr.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.calls[id]
	if !ok {
		return nil, &claim.NotFoundError{Kind: "call", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) ListCalls(_ context.Context) ([]*emr.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*emr.Call, 0, len(m.calls))
	for _, c := range m.calls {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out, nil
}

// CreateInterest enforces one interest per user per call under the write lock.
func (m *Memory) CreateInterest(_ context.Context, i *emr.Interest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.interests {
		if e.CallID == i.CallID && e.UID == i.UID {
			return &claim.DuplicateRegistrationError{UserID: i.UID, CallID: i.CallID}
		}
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	m.interests[i.ID] = i.Clone()
	return nil
}

func (m *Memory) GetInterest(_ context.Context, id string) (*emr.Interest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.interests[id]
	if !ok {
		return nil, &claim.NotFoundError{Kind: "interest", ID: id}
	}
	return i.Clone(), nil
}

func (m *Memory) UpdateInterest(_ context.Context, i *emr.Interest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interests[i.ID]; !ok {
		return &claim.NotFoundError{Kind: "interest", ID: i.ID}
	}
	m.interests[i.ID] = i.Clone()
	return nil
}

func (m *Memory) ListInterests(_ context.Context, callID string) ([]*emr.Interest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*emr.Interest
	for _, i := range m.interests {
		if i.CallID == callID {
			out = append(out, i.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].RegisteredAt.Before(out[b].RegisteredAt) })
	return out, nil
}
