package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/capitolworks/legis/internal/chamber"
	"github.com/capitolworks/legis/internal/models"
)

// VotingWindow is how long a bill accepts votes after submission. The
// deadline is computed once from wall-clock time at creation and never
// recalculated.
const VotingWindow = 24 * time.Hour

const (
	minTitleLen   = 10
	minSummaryLen = 50
)

// CreateInput carries everything needed to open a bill for voting.
type CreateInput struct {
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

// Create validates the submission and returns a new ACTIVE bill with its
// deadline and quorum fixed. The quorum is copied from the registry rules so
// later registry changes never affect the bill.
func Create(in CreateInput, rules chamber.Rules, now time.Time) (models.Bill, error) {
	if len(in.Title) < minTitleLen {
		return models.Bill{}, NewError(KindValidation, CodeValidation, "title must be at least %d characters", minTitleLen)
	}
	if len(in.Summary) < minSummaryLen {
		return models.Bill{}, NewError(KindValidation, CodeValidation, "summary must be at least %d characters", minSummaryLen)
	}
	if in.Chamber != models.ChamberSenate && in.Chamber != models.ChamberHouse {
		return models.Bill{}, NewError(KindValidation, CodeValidation, "unknown chamber %q", in.Chamber)
	}
	if !models.ValidPolicyArea(in.PolicyArea) {
		return models.Bill{}, NewError(KindValidation, CodeValidation, "unknown policy area %q", in.PolicyArea)
	}
	if in.SponsorID == "" {
		return models.Bill{}, NewError(KindValidation, CodeValidation, "sponsorId required")
	}
	for _, pos := range in.LobbyPositions {
		switch pos.Stance {
		case models.StanceFor, models.StanceAgainst, models.StanceNeutral:
		default:
			return models.Bill{}, NewError(KindValidation, CodeValidation, "unknown lobby stance %q", pos.Stance)
		}
		if pos.LobbyID == "" {
			return models.Bill{}, NewError(KindValidation, CodeValidation, "lobbyId required on lobby position")
		}
		if pos.PaymentPerSeat.IsNegative() {
			return models.Bill{}, NewError(KindValidation, CodeValidation, "negative paymentPerSeat for lobby %s", pos.LobbyID)
		}
	}
	for _, eff := range in.Effects {
		switch eff.Scope {
		case models.ScopeGlobal, models.ScopeIndustry, models.ScopeState:
		default:
			return models.Bill{}, NewError(KindValidation, CodeValidation, "unknown effect scope %q", eff.Scope)
		}
		if eff.EffectType == "" {
			return models.Bill{}, NewError(KindValidation, CodeValidation, "effectType required on policy effect")
		}
	}

	now = now.UTC()
	return models.Bill{
		ID:             uuid.New(),
		Number:         in.Number,
		Chamber:        in.Chamber,
		PolicyArea:     in.PolicyArea,
		Title:          in.Title,
		Summary:        in.Summary,
		SponsorID:      in.SponsorID,
		CoSponsorIDs:   append([]string(nil), in.CoSponsorIDs...),
		DebateRefs:     append([]string(nil), in.DebateRefs...),
		SubmittedAt:    now,
		VotingDeadline: now.Add(VotingWindow),
		QuorumRequired: rules.Quorum,
		Status:         models.StatusActive,
		LobbyPositions: append([]models.LobbyPosition(nil), in.LobbyPositions...),
		Effects:        append([]models.PolicyEffect(nil), in.Effects...),
	}, nil
}

// CastInput is one ballot attempt against an ACTIVE bill.
type CastInput struct {
	VoterID    string
	Value      models.VoteValue
	SeatWeight int
}

// CastVote applies one ballot. Preconditions are checked in order and the
// first failure wins: open window, weight bounds, then one-vote-per-voter.
// On success it returns the updated bill, the recorded vote, and the lobby
// payments settled by the vote. The caller persists bill, vote, and payments
// as one atomic unit.
func CastVote(b models.Bill, in CastInput, maxWeight int, now time.Time) (models.Bill, models.Vote, []models.LobbyPayment, error) {
	if b.Status != models.StatusActive {
		return b, models.Vote{}, nil, NewError(KindState, CodeVotingClosed, "bill %s is %s", b.Number, b.Status)
	}
	if !now.Before(b.VotingDeadline) {
		return b, models.Vote{}, nil, NewError(KindState, CodeVotingClosed, "voting closed at %s", b.VotingDeadline.UTC().Format(time.RFC3339))
	}
	if in.SeatWeight < 1 || in.SeatWeight > maxWeight {
		return b, models.Vote{}, nil, NewError(KindValidation, CodeInvalidWeight, "seat weight %d outside [1, %d]", in.SeatWeight, maxWeight)
	}
	switch in.Value {
	case models.VoteAye, models.VoteNay, models.VoteAbstain, models.VoteNone:
	default:
		return b, models.Vote{}, nil, NewError(KindValidation, CodeValidation, "unknown vote value %q", in.Value)
	}
	if b.HasVoted(in.VoterID) {
		return b, models.Vote{}, nil, NewError(KindConflict, CodeAlreadyVoted, "voter %s already voted on bill %s", in.VoterID, b.Number)
	}

	vote := models.Vote{
		VoterID:    in.VoterID,
		Value:      in.Value,
		SeatWeight: in.SeatWeight,
		CastAt:     now.UTC(),
	}

	payments := Settle(b, vote)
	for _, p := range payments {
		vote.PaymentIDs = append(vote.PaymentIDs, p.ID)
	}

	updated := b
	updated.Votes = append(append([]models.Vote(nil), b.Votes...), vote)
	updated.Tallies = b.Tallies
	// A no_vote ballot records presence only; it never reaches a counter.
	switch in.Value {
	case models.VoteAye:
		updated.Tallies.Aye += in.SeatWeight
		updated.Tallies.Total += in.SeatWeight
	case models.VoteNay:
		updated.Tallies.Nay += in.SeatWeight
		updated.Tallies.Total += in.SeatWeight
	case models.VoteAbstain:
		updated.Tallies.Abstain += in.SeatWeight
		updated.Tallies.Total += in.SeatWeight
	}
	return updated, vote, payments, nil
}

// Withdraw transitions an ACTIVE bill to WITHDRAWN. Only the sponsor may
// withdraw.
func Withdraw(b models.Bill, by string, now time.Time) (models.Bill, error) {
	if b.Status != models.StatusActive {
		return b, NewError(KindState, CodeNotActive, "bill %s is %s", b.Number, b.Status)
	}
	if by != b.SponsorID {
		return b, NewError(KindAuthorization, CodeNotAuthorized, "only sponsor %s may withdraw bill %s", b.SponsorID, b.Number)
	}
	ts := now.UTC()
	updated := b
	updated.Status = models.StatusWithdrawn
	updated.WithdrawnAt = &ts
	updated.ResolvedAt = &ts
	return updated, nil
}

// Resolution is the outcome of resolving a bill whose window has elapsed.
type Resolution struct {
	Status models.BillStatus
	Tally  TallyResult
	// Enact is true exactly when this call performed the ACTIVE→PASSED
	// transition; the caller dispatches policy effects iff Enact is set.
	Enact bool
}

// Resolve terminalizes an ACTIVE bill once its deadline has elapsed: PASSED
// when quorum is met and ayes strictly exceed nays, FAILED when quorum is met
// otherwise, EXPIRED when quorum was never reached. Resolving an already
// terminal bill is a no-op that reports the recorded outcome.
func Resolve(b models.Bill, now time.Time) (models.Bill, Resolution, error) {
	if b.Status != models.StatusActive {
		return b, Resolution{Status: b.Status, Tally: Evaluate(b)}, nil
	}
	if now.Before(b.VotingDeadline) {
		return b, Resolution{}, NewError(KindState, CodeNotExpired, "bill %s voting open until %s", b.Number, b.VotingDeadline.UTC().Format(time.RFC3339))
	}

	tally := Evaluate(b)
	ts := now.UTC()
	updated := b
	updated.ResolvedAt = &ts
	switch {
	case tally.Passed:
		updated.Status = models.StatusPassed
		updated.Enacted = true
		updated.EnactedAt = &ts
	case tally.QuorumMet:
		updated.Status = models.StatusFailed
	default:
		updated.Status = models.StatusExpired
	}
	return updated, Resolution{Status: updated.Status, Tally: tally, Enact: tally.Passed}, nil
}
