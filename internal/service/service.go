package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitolworks/legis/internal/archive"
	"github.com/capitolworks/legis/internal/chamber"
	"github.com/capitolworks/legis/internal/engine"
	"github.com/capitolworks/legis/internal/limiter"
	"github.com/capitolworks/legis/internal/models"
	"github.com/capitolworks/legis/internal/store"
)

// Dispatcher emits instructions to the economy/ledger collaborator.
type Dispatcher interface {
	DispatchEnactments(ctx context.Context, bill models.Bill, enactedAt time.Time) error
	DispatchSettlements(ctx context.Context, payments []models.LobbyPayment) error
}

const lockStripes = 256

// Service orchestrates the voting engine: it gates submissions through the
// anti-abuse limiter, serializes per-bill mutations on striped locks, applies
// the pure engine transitions, persists through the store, and emits
// settlement and enactment instructions after the write commits.
//
// Payment records are part of the vote's atomic unit (a failed payment write
// rolls the vote back); the Kafka notification is post-commit at-least-once,
// keyed for idempotent downstream application.
type Service struct {
	store      store.Store
	registry   *chamber.Registry
	limiter    limiter.Limiter
	dispatcher Dispatcher
	archiver   archive.Archiver
	logger     *log.Logger

	locks [lockStripes]sync.Mutex
}

// Options carries the optional collaborators. Dispatcher and Archiver may be
// nil; emission and archival are then skipped.
type Options struct {
	Dispatcher Dispatcher
	Archiver   archive.Archiver
	Logger     *log.Logger
}

func New(st store.Store, registry *chamber.Registry, lim limiter.Limiter, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[legis] ", log.LstdFlags)
	}
	return &Service{
		store:      st,
		registry:   registry,
		limiter:    lim,
		dispatcher: opts.Dispatcher,
		archiver:   opts.Archiver,
		logger:     logger,
	}
}

func (s *Service) lockBill(id uuid.UUID) func() {
	h := fnv.New32a()
	h.Write(id[:])
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

type SubmitBillRequest struct {
	Number         string
	Chamber        models.Chamber
	PolicyArea     models.PolicyArea
	Title          string
	Summary        string
	SponsorID      string
	CoSponsorIDs   []string
	DebateRefs     []string
	LobbyPositions []models.LobbyPosition
	Effects        []models.PolicyEffect
}

// SubmitBill validates the submission, reserves an anti-abuse slot, and
// persists the new ACTIVE bill. Validation runs before the reservation so a
// malformed submission never consumes limiter state.
func (s *Service) SubmitBill(ctx context.Context, req SubmitBillRequest, now time.Time) (models.Bill, error) {
	rules, err := s.registry.Rules(req.Chamber)
	if err != nil {
		return models.Bill{}, engine.NewError(engine.KindValidation, engine.CodeValidation, "unknown chamber %q", req.Chamber)
	}
	bill, err := engine.Create(engine.CreateInput{
		Number:         req.Number,
		Chamber:        req.Chamber,
		PolicyArea:     req.PolicyArea,
		Title:          req.Title,
		Summary:        req.Summary,
		SponsorID:      req.SponsorID,
		CoSponsorIDs:   req.CoSponsorIDs,
		DebateRefs:     req.DebateRefs,
		LobbyPositions: req.LobbyPositions,
		Effects:        req.Effects,
	}, rules, now)
	if err != nil {
		return models.Bill{}, err
	}

	decision, err := s.limiter.Reserve(ctx, req.SponsorID, req.Chamber, now)
	if err != nil {
		return models.Bill{}, err
	}
	if !decision.Allowed {
		return models.Bill{}, engine.NewError(engine.KindRateLimit, decision.Code, "%s", decision.Reason)
	}

	created, err := s.store.CreateBill(ctx, bill)
	if err != nil {
		if relErr := s.limiter.Release(ctx, req.SponsorID); relErr != nil {
			s.logger.Printf("release limiter slot for %s: %v", req.SponsorID, relErr)
		}
		return models.Bill{}, err
	}
	return created, nil
}

type CastVoteRequest struct {
	VoterID    string
	Value      models.VoteValue
	SeatWeight int
}

type CastVoteResult struct {
	Tally      engine.TallyResult
	PaymentIDs []uuid.UUID
}

// CastVote records one ballot and settles matching lobby positions. The vote,
// its payments, and the updated counters land in one store write; a store
// failure leaves no trace of the attempt.
func (s *Service) CastVote(ctx context.Context, billID uuid.UUID, req CastVoteRequest, now time.Time) (CastVoteResult, error) {
	unlock := s.lockBill(billID)
	defer unlock()

	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return CastVoteResult{}, mapStoreErr(err, billID)
	}
	rules, err := s.registry.Rules(bill.Chamber)
	if err != nil {
		return CastVoteResult{}, err
	}

	updated, vote, payments, err := engine.CastVote(bill, engine.CastInput{
		VoterID:    req.VoterID,
		Value:      req.Value,
		SeatWeight: req.SeatWeight,
	}, rules.MaxSeatWeight, now)
	if err != nil {
		return CastVoteResult{}, err
	}

	err = s.store.AppendVote(ctx, store.AppendVoteInput{
		BillID:   billID,
		Vote:     vote,
		Payments: payments,
	})
	if err != nil {
		return CastVoteResult{}, mapStoreErr(err, billID)
	}

	if s.dispatcher != nil && len(payments) > 0 {
		if err := s.dispatcher.DispatchSettlements(ctx, payments); err != nil {
			// Payment records are already durable; emission replays from them.
			s.logger.Printf("dispatch settlements for bill %s: %v", billID, err)
		}
	}
	return CastVoteResult{Tally: engine.Evaluate(updated), PaymentIDs: vote.PaymentIDs}, nil
}

func (s *Service) GetBill(ctx context.Context, billID uuid.UUID) (models.Bill, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return models.Bill{}, mapStoreErr(err, billID)
	}
	return bill, nil
}

func (s *Service) ListBills(ctx context.Context, filter store.ListBillsFilter) ([]models.Bill, error) {
	return s.store.ListBills(ctx, filter)
}

func (s *Service) ListPayments(ctx context.Context, billID uuid.UUID) ([]models.LobbyPayment, error) {
	return s.store.ListPaymentsByBill(ctx, billID)
}

type TallyStatus struct {
	Status      models.BillStatus  `json:"status"`
	Tally       engine.TallyResult `json:"tally"`
	RemainingMs int64              `json:"remainingMs"`
}

func (s *Service) GetTally(ctx context.Context, billID uuid.UUID, now time.Time) (TallyStatus, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return TallyStatus{}, mapStoreErr(err, billID)
	}
	return TallyStatus{
		Status:      bill.Status,
		Tally:       engine.Evaluate(bill),
		RemainingMs: engine.RemainingMs(bill, now),
	}, nil
}

// WithdrawBill transitions an ACTIVE bill to WITHDRAWN on behalf of its
// sponsor and releases the sponsor's active-bill slot.
func (s *Service) WithdrawBill(ctx context.Context, billID uuid.UUID, sponsorID string, now time.Time) (models.Bill, error) {
	unlock := s.lockBill(billID)
	defer unlock()

	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return models.Bill{}, mapStoreErr(err, billID)
	}
	updated, err := engine.Withdraw(bill, sponsorID, now)
	if err != nil {
		return models.Bill{}, err
	}

	persisted, err := s.store.TransitionBill(ctx, store.TransitionInput{
		BillID:      billID,
		To:          models.StatusWithdrawn,
		ResolvedAt:  *updated.ResolvedAt,
		WithdrawnAt: updated.WithdrawnAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotActive) {
			return models.Bill{}, engine.NewError(engine.KindState, engine.CodeNotActive, "bill %s is no longer active", billID)
		}
		return models.Bill{}, mapStoreErr(err, billID)
	}
	s.afterTerminal(ctx, persisted)
	return persisted, nil
}

// ResolveIfExpired resolves a bill whose voting window has elapsed and
// reports the (possibly pre-existing) terminal status. Calling it on a bill
// that is still inside its window, or already terminal, is a no-op.
func (s *Service) ResolveIfExpired(ctx context.Context, billID uuid.UUID, now time.Time) (models.BillStatus, error) {
	unlock := s.lockBill(billID)
	defer unlock()

	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return "", mapStoreErr(err, billID)
	}
	updated, res, err := engine.Resolve(bill, now)
	if err != nil {
		if engine.CodeOf(err) == engine.CodeNotExpired {
			return bill.Status, nil
		}
		return "", err
	}
	if bill.Status.Terminal() {
		return res.Status, nil
	}

	persisted, err := s.store.TransitionBill(ctx, store.TransitionInput{
		BillID:     billID,
		To:         res.Status,
		ResolvedAt: *updated.ResolvedAt,
		Enacted:    updated.Enacted,
		EnactedAt:  updated.EnactedAt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotActive) {
			// Lost the race to a concurrent resolver; report its outcome.
			current, getErr := s.store.GetBill(ctx, billID)
			if getErr != nil {
				return "", mapStoreErr(getErr, billID)
			}
			return current.Status, nil
		}
		return "", mapStoreErr(err, billID)
	}

	if res.Enact && s.dispatcher != nil {
		// The ACTIVE→PASSED transition above succeeds exactly once per bill,
		// so this block runs exactly once per bill.
		if err := s.dispatcher.DispatchEnactments(ctx, persisted, *persisted.EnactedAt); err != nil {
			s.logger.Printf("dispatch enactments for bill %s: %v", billID, err)
		}
	}
	s.afterTerminal(ctx, persisted)
	return persisted.Status, nil
}

// afterTerminal runs the side effects shared by every ACTIVE→terminal
// transition: limiter slot release and archival. Both are best-effort.
func (s *Service) afterTerminal(ctx context.Context, bill models.Bill) {
	if err := s.limiter.Release(ctx, bill.SponsorID); err != nil {
		s.logger.Printf("release limiter slot for %s: %v", bill.SponsorID, err)
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveBill(ctx, bill); err != nil {
			s.logger.Printf("archive bill %s: %v", bill.ID, err)
		}
	}
}

func mapStoreErr(err error, billID uuid.UUID) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return engine.NewError(engine.KindNotFound, engine.CodeNotFound, "bill %s not found", billID)
	case errors.Is(err, store.ErrAlreadyVoted):
		return engine.NewError(engine.KindConflict, engine.CodeAlreadyVoted, "duplicate vote on bill %s", billID)
	case errors.Is(err, store.ErrNotActive), errors.Is(err, store.ErrVotingClosed):
		return engine.NewError(engine.KindState, engine.CodeVotingClosed, "bill %s no longer accepts votes", billID)
	}
	return err
}
