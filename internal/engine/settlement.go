package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitolworks/legis/internal/models"
)

// Settle evaluates one freshly cast vote against every lobby position on the
// bill and returns the payments it triggers. A payment is produced iff an aye
// matches a FOR stance or a nay matches an AGAINST stance; abstain, no_vote,
// and NEUTRAL never pay. Matching stances stack: each matching lobby pays
// independently, amount = paymentPerSeat × seatWeight.
func Settle(b models.Bill, vote models.Vote) []models.LobbyPayment {
	var payments []models.LobbyPayment
	weight := decimal.NewFromInt(int64(vote.SeatWeight))
	for _, pos := range b.LobbyPositions {
		if !stanceMatches(pos.Stance, vote.Value) {
			continue
		}
		payments = append(payments, models.LobbyPayment{
			ID:            uuid.New(),
			BillID:        b.ID,
			VoterID:       vote.VoterID,
			LobbyID:       pos.LobbyID,
			Stance:        pos.Stance,
			VoteValue:     vote.Value,
			SeatWeight:    vote.SeatWeight,
			AmountPerSeat: pos.PaymentPerSeat,
			Amount:        pos.PaymentPerSeat.Mul(weight),
			SettledAt:     vote.CastAt,
		})
	}
	return payments
}

func stanceMatches(stance models.LobbyStance, value models.VoteValue) bool {
	switch stance {
	case models.StanceFor:
		return value == models.VoteAye
	case models.StanceAgainst:
		return value == models.VoteNay
	}
	return false
}
