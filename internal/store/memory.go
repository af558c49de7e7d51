package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitolworks/legis/internal/models"
)

// MemoryStore keeps full bill aggregates in process. Conditional writes run
// under one mutex, matching the guarantees of the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	bills    map[uuid.UUID]models.Bill
	payments map[uuid.UUID][]models.LobbyPayment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bills:    map[uuid.UUID]models.Bill{},
		payments: map[uuid.UUID][]models.LobbyPayment{},
	}
}

func cloneBill(b models.Bill) models.Bill {
	c := b
	c.CoSponsorIDs = append([]string(nil), b.CoSponsorIDs...)
	c.DebateRefs = append([]string(nil), b.DebateRefs...)
	c.Votes = append([]models.Vote(nil), b.Votes...)
	c.LobbyPositions = append([]models.LobbyPosition(nil), b.LobbyPositions...)
	c.Effects = append([]models.PolicyEffect(nil), b.Effects...)
	return c
}

func (m *MemoryStore) CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error) {
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[bill.ID] = cloneBill(bill)
	return bill, nil
}

func (m *MemoryStore) GetBill(ctx context.Context, id uuid.UUID) (models.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bill, ok := m.bills[id]
	if !ok {
		return models.Bill{}, ErrNotFound
	}
	return cloneBill(bill), nil
}

func (m *MemoryStore) ListBills(ctx context.Context, filter ListBillsFilter) ([]models.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bills []models.Bill
	for _, bill := range m.bills {
		if filter.Status != "" && bill.Status != filter.Status {
			continue
		}
		if filter.Chamber != "" && bill.Chamber != filter.Chamber {
			continue
		}
		if filter.SponsorID != "" && bill.SponsorID != filter.SponsorID {
			continue
		}
		bills = append(bills, cloneBill(bill))
	}
	sort.Slice(bills, func(i, j int) bool {
		return bills[i].SubmittedAt.After(bills[j].SubmittedAt)
	})
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > len(bills) {
		start = len(bills)
	}
	end := start + normalizeLimit(filter.Limit)
	if end > len(bills) {
		end = len(bills)
	}
	result := make([]models.Bill, end-start)
	copy(result, bills[start:end])
	return result, nil
}

func (m *MemoryStore) AppendVote(ctx context.Context, in AppendVoteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bill, ok := m.bills[in.BillID]
	if !ok {
		return ErrNotFound
	}
	if bill.Status != models.StatusActive {
		return ErrNotActive
	}
	if !in.Vote.CastAt.Before(bill.VotingDeadline) {
		return ErrVotingClosed
	}
	if bill.HasVoted(in.Vote.VoterID) {
		return ErrAlreadyVoted
	}
	delta := tallyDelta(in.Vote)
	bill.Votes = append(bill.Votes, in.Vote)
	bill.Tallies.Aye += delta.Aye
	bill.Tallies.Nay += delta.Nay
	bill.Tallies.Abstain += delta.Abstain
	bill.Tallies.Total += delta.Total
	m.bills[in.BillID] = bill
	if len(in.Payments) > 0 {
		m.payments[in.BillID] = append(m.payments[in.BillID], in.Payments...)
	}
	return nil
}

func (m *MemoryStore) TransitionBill(ctx context.Context, in TransitionInput) (models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bill, ok := m.bills[in.BillID]
	if !ok {
		return models.Bill{}, ErrNotFound
	}
	if bill.Status != models.StatusActive {
		return models.Bill{}, ErrNotActive
	}
	resolvedAt := in.ResolvedAt
	bill.Status = in.To
	bill.ResolvedAt = &resolvedAt
	bill.Enacted = in.Enacted
	bill.EnactedAt = in.EnactedAt
	bill.WithdrawnAt = in.WithdrawnAt
	m.bills[in.BillID] = bill
	return cloneBill(bill), nil
}

func (m *MemoryStore) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type expired struct {
		id       uuid.UUID
		deadline time.Time
	}
	var found []expired
	for id, bill := range m.bills {
		if bill.Status == models.StatusActive && !now.Before(bill.VotingDeadline) {
			found = append(found, expired{id: id, deadline: bill.VotingDeadline})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].deadline.Before(found[j].deadline)
	})
	limit = normalizeLimit(limit)
	if len(found) > limit {
		found = found[:limit]
	}
	ids := make([]uuid.UUID, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids, nil
}

func (m *MemoryStore) ListPaymentsByBill(ctx context.Context, billID uuid.UUID) ([]models.LobbyPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.LobbyPayment, len(m.payments[billID]))
	copy(result, m.payments[billID])
	return result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
