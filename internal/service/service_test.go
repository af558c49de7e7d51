package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolworks/legis/internal/chamber"
	"github.com/capitolworks/legis/internal/engine"
	"github.com/capitolworks/legis/internal/limiter"
	"github.com/capitolworks/legis/internal/models"
	"github.com/capitolworks/legis/internal/store"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	enactments  []models.Bill
	settlements []models.LobbyPayment
	failNext    bool
}

func (f *fakeDispatcher) DispatchEnactments(ctx context.Context, bill models.Bill, enactedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("broker unavailable")
	}
	f.enactments = append(f.enactments, bill)
	return nil
}

func (f *fakeDispatcher) DispatchSettlements(ctx context.Context, payments []models.LobbyPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settlements = append(f.settlements, payments...)
	return nil
}

func (f *fakeDispatcher) enactmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enactments)
}

func newTestService(disp *fakeDispatcher) (*Service, *store.MemoryStore, *limiter.Memory) {
	st := store.NewMemoryStore()
	lim := limiter.NewMemory(limiter.DefaultLimits())
	opts := Options{}
	if disp != nil {
		opts.Dispatcher = disp
	}
	return New(st, chamber.Default(), lim, opts), st, lim
}

func submitReq(sponsor string, ch models.Chamber) SubmitBillRequest {
	return SubmitBillRequest{
		Number:     "S-2001",
		Chamber:    ch,
		PolicyArea: models.PolicyAreaEnergy,
		Title:      "Clean Grid Modernization Act",
		Summary:    strings.Repeat("Funds grid upgrades across all states. ", 3),
		SponsorID:  sponsor,
		LobbyPositions: []models.LobbyPosition{
			{LobbyID: "oil_gas", Stance: models.StanceAgainst, PaymentPerSeat: decimal.NewFromInt(120000)},
			{LobbyID: "renewable_energy", Stance: models.StanceFor, PaymentPerSeat: decimal.NewFromInt(120000)},
		},
		Effects: []models.PolicyEffect{
			{Scope: models.ScopeIndustry, TargetID: "energy", EffectType: "subsidy", Value: decimal.NewFromInt(5), Unit: "percent"},
		},
	}
}

func TestSubmitBill(t *testing.T) {
	svc, _, _ := newTestService(nil)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(context.Background(), submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, bill.Status)
	assert.Equal(t, 50, bill.QuorumRequired)
	assert.Equal(t, now.Add(24*time.Hour), bill.VotingDeadline)
}

// A malformed submission is rejected before the limiter runs, so it neither
// consumes the sponsor's cooldown nor a daily slot.
func TestSubmitBillValidationDoesNotConsumeLimiter(t *testing.T) {
	svc, _, _ := newTestService(nil)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bad := submitReq("sen-smith", models.ChamberSenate)
	bad.Title = "short"
	_, err := svc.SubmitBill(context.Background(), bad, now)
	require.Equal(t, engine.KindValidation, engine.KindOf(err))

	_, err = svc.SubmitBill(context.Background(), submitReq("sen-smith", models.ChamberSenate), now.Add(time.Minute))
	assert.NoError(t, err)
}

// Three ACTIVE bills deny the fourth with TOO_MANY_ACTIVE; withdrawing one
// frees the slot.
func TestSubmitBillActiveCap(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	var first models.Bill
	for i := 0; i < 3; i++ {
		bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), start.Add(time.Duration(i)*25*time.Hour))
		require.NoError(t, err)
		if i == 0 {
			first = bill
		}
	}

	attempt := start.Add(4 * 25 * time.Hour)
	_, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), attempt)
	require.Error(t, err)
	assert.Equal(t, engine.KindRateLimit, engine.KindOf(err))
	assert.Equal(t, engine.CodeTooManyActive, engine.CodeOf(err))

	_, err = svc.WithdrawBill(ctx, first.ID, "sen-smith", attempt)
	require.NoError(t, err)

	_, err = svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), attempt.Add(time.Second))
	assert.NoError(t, err)
}

// The central concurrency property: any number of concurrent castVote calls
// for one voter leaves exactly one ledger entry and exactly one set of
// payments.
func TestCastVoteAtMostOnce(t *testing.T) {
	disp := &fakeDispatcher{}
	svc, st, _ := newTestService(disp)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CastVote(ctx, bill.ID, CastVoteRequest{
				VoterID:    "sen-jones",
				Value:      models.VoteNay,
				SeatWeight: 1,
			}, now.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if engine.CodeOf(err) == engine.CodeAlreadyVoted {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)

	stored, err := st.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, stored.Votes, 1)
	assert.Equal(t, 1, stored.Tallies.Nay)
	assert.Equal(t, 1, stored.Tallies.Total)

	// Exactly one payment for the (bill, voter, oil_gas) triple.
	payments, err := st.ListPaymentsByBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "oil_gas", payments[0].LobbyID)
	assert.Len(t, disp.settlements, 1)
}

func TestCastVoteReturnsTallyAndPayments(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("rep-chair", models.ChamberHouse), now)
	require.NoError(t, err)

	res, err := svc.CastVote(ctx, bill.ID, CastVoteRequest{
		VoterID:    "rep-oh",
		Value:      models.VoteAye,
		SeatWeight: 23,
	}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 23, res.Tally.Aye)
	assert.Equal(t, 23, res.Tally.Total)
	assert.False(t, res.Tally.QuorumMet)
	require.Len(t, res.PaymentIDs, 1)
}

func TestCastVoteUnknownBill(t *testing.T) {
	svc, _, _ := newTestService(nil)
	_, err := svc.CastVote(context.Background(), uuid.New(), CastVoteRequest{
		VoterID: "sen-a", Value: models.VoteAye, SeatWeight: 1,
	}, time.Now())
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

// Concurrent resolution: the sweeper, a direct resolve call, and a retry all
// land on the same terminal status, and enactment fires exactly once.
func TestResolveExactlyOnceEnactment(t *testing.T) {
	disp := &fakeDispatcher{}
	svc, _, _ := newTestService(disp)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)

	for i := 0; i < 55; i++ {
		_, err := svc.CastVote(ctx, bill.ID, CastVoteRequest{
			VoterID:    fmt.Sprintf("sen-%d", i),
			Value:      models.VoteAye,
			SeatWeight: 1,
		}, now.Add(time.Minute))
		require.NoError(t, err)
	}

	after := bill.VotingDeadline.Add(time.Minute)
	var wg sync.WaitGroup
	statuses := make([]models.BillStatus, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i], errs[i] = svc.ResolveIfExpired(ctx, bill.ID, after)
		}()
	}
	wg.Wait()

	for i := range statuses {
		require.NoError(t, errs[i])
		assert.Equal(t, models.StatusPassed, statuses[i])
	}
	assert.Equal(t, 1, disp.enactmentCount())
}

func TestResolveBeforeDeadlineIsNoop(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)

	status, err := svc.ResolveIfExpired(ctx, bill.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, status)
}

func TestResolveWithoutQuorumExpires(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("rep-chair", models.ChamberHouse), now)
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, bill.ID, CastVoteRequest{VoterID: "rep-ca", Value: models.VoteAye, SeatWeight: 52}, now.Add(time.Minute))
	require.NoError(t, err)

	status, err := svc.ResolveIfExpired(ctx, bill.ID, bill.VotingDeadline)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, status)
}

// Terminal immutability: after resolution nothing changes and late votes are
// rejected.
func TestTerminalImmutability(t *testing.T) {
	svc, st, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, bill.ID, CastVoteRequest{VoterID: "sen-a", Value: models.VoteAye, SeatWeight: 1}, now.Add(time.Minute))
	require.NoError(t, err)

	after := bill.VotingDeadline.Add(time.Minute)
	status, err := svc.ResolveIfExpired(ctx, bill.ID, after)
	require.NoError(t, err)
	require.Equal(t, models.StatusExpired, status)

	before, err := st.GetBill(ctx, bill.ID)
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, bill.ID, CastVoteRequest{VoterID: "sen-late", Value: models.VoteAye, SeatWeight: 1}, after)
	assert.Equal(t, engine.CodeVotingClosed, engine.CodeOf(err))

	again, err := svc.ResolveIfExpired(ctx, bill.ID, after.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, status, again)

	afterBill, err := st.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, before, afterBill)
}

func TestWithdrawOnlySponsor(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)

	_, err = svc.WithdrawBill(ctx, bill.ID, "sen-jones", now.Add(time.Hour))
	assert.Equal(t, engine.KindAuthorization, engine.KindOf(err))

	withdrawn, err := svc.WithdrawBill(ctx, bill.ID, "sen-smith", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusWithdrawn, withdrawn.Status)

	_, err = svc.WithdrawBill(ctx, bill.ID, "sen-smith", now.Add(2*time.Hour))
	assert.Equal(t, engine.CodeNotActive, engine.CodeOf(err))
}

func TestGetTally(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	bill, err := svc.SubmitBill(ctx, submitReq("sen-smith", models.ChamberSenate), now)
	require.NoError(t, err)

	ts, err := svc.GetTally(ctx, bill.ID, now.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, ts.Status)
	assert.Equal(t, int64(3600000), ts.RemainingMs)
	assert.False(t, ts.Tally.QuorumMet)
}
