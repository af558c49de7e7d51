package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/capitolworks/legis/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotActive    = errors.New("bill not active")
	ErrAlreadyVoted = errors.New("voter already voted")
	ErrVotingClosed = errors.New("voting window closed")
)

// Store persists bills, their vote ledgers, and settlement records. AppendVote
// and TransitionBill are conditional writes: they re-verify the ACTIVE status
// (and, for votes, ledger uniqueness) at write time so the store is a second
// guard under the service's per-bill lock.
type Store interface {
	CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error)
	GetBill(ctx context.Context, id uuid.UUID) (models.Bill, error)
	ListBills(ctx context.Context, filter ListBillsFilter) ([]models.Bill, error)
	AppendVote(ctx context.Context, in AppendVoteInput) error
	TransitionBill(ctx context.Context, in TransitionInput) (models.Bill, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListPaymentsByBill(ctx context.Context, billID uuid.UUID) ([]models.LobbyPayment, error)
	Ping(ctx context.Context) error
}

type ListBillsFilter struct {
	Status    models.BillStatus
	Chamber   models.Chamber
	SponsorID string
	Limit     int
	Offset    int
}

// AppendVoteInput writes one vote and its payments as a single atomic unit.
// The store derives the counter increments from the vote itself, so the
// running tallies always equal the ledger sum even when appends from separate
// engine instances interleave on one bill.
type AppendVoteInput struct {
	BillID   uuid.UUID
	Vote     models.Vote
	Payments []models.LobbyPayment
}

// tallyDelta is the counter increment one vote contributes. A no_vote ballot
// contributes nothing.
func tallyDelta(v models.Vote) models.Tallies {
	var d models.Tallies
	switch v.Value {
	case models.VoteAye:
		d.Aye = v.SeatWeight
	case models.VoteNay:
		d.Nay = v.SeatWeight
	case models.VoteAbstain:
		d.Abstain = v.SeatWeight
	default:
		return d
	}
	d.Total = v.SeatWeight
	return d
}

// TransitionInput performs the single ACTIVE→terminal transition. The write
// is conditional on the bill still being ACTIVE; a bill already terminal
// yields ErrNotActive so callers can treat resolution as idempotent.
type TransitionInput struct {
	BillID      uuid.UUID
	To          models.BillStatus
	ResolvedAt  time.Time
	Enacted     bool
	EnactedAt   *time.Time
	WithdrawnAt *time.Time
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
