package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolworks/legis/internal/models"
)

func lobbyBill(t *testing.T, ch models.Chamber, now time.Time) models.Bill {
	t.Helper()
	in := validInput(ch)
	in.LobbyPositions = []models.LobbyPosition{
		{LobbyID: "oil_gas", Stance: models.StanceAgainst, PaymentPerSeat: decimal.NewFromInt(120000)},
		{LobbyID: "renewable_energy", Stance: models.StanceFor, PaymentPerSeat: decimal.NewFromInt(120000)},
		{LobbyID: "think_tank", Stance: models.StanceNeutral, PaymentPerSeat: decimal.NewFromInt(500000)},
	}
	bill, err := Create(in, rulesFor(ch), now)
	require.NoError(t, err)
	return bill
}

// Senator votes nay against an oil_gas AGAINST stance: exactly one payment of
// $120,000, nothing from the FOR or NEUTRAL lobbies.
func TestSettleSenatorNay(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bill := lobbyBill(t, models.ChamberSenate, now)

	_, vote, payments, err := CastVote(bill, CastInput{VoterID: "sen-smith", Value: models.VoteNay, SeatWeight: 1}, 1, now)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, "oil_gas", p.LobbyID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(120000)), "got %s", p.Amount)
	require.Len(t, vote.PaymentIDs, 1)
	assert.Equal(t, p.ID, vote.PaymentIDs[0])
}

// House member at delegation weight 23 votes aye: renewable_energy pays
// 120,000 × 23 = 2,760,000, oil_gas pays nothing.
func TestSettleHouseAyeWeighted(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bill := lobbyBill(t, models.ChamberHouse, now)

	_, vote, payments, err := CastVote(bill, CastInput{VoterID: "rep-oh", Value: models.VoteAye, SeatWeight: 23}, 52, now)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, "renewable_energy", p.LobbyID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(2760000)), "got %s", p.Amount)
	assert.Equal(t, 23, p.SeatWeight)
	require.Len(t, vote.PaymentIDs, 1)
	assert.Equal(t, p.ID, vote.PaymentIDs[0])
}

// Matching stances stack: every lobby whose stance matches pays independently.
func TestSettleStacking(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := validInput(models.ChamberSenate)
	in.LobbyPositions = []models.LobbyPosition{
		{LobbyID: "coal", Stance: models.StanceAgainst, PaymentPerSeat: decimal.NewFromInt(50000)},
		{LobbyID: "oil_gas", Stance: models.StanceAgainst, PaymentPerSeat: decimal.NewFromInt(120000)},
	}
	bill, err := Create(in, senateRules, now)
	require.NoError(t, err)

	_, _, payments, err := CastVote(bill, CastInput{VoterID: "sen-a", Value: models.VoteNay, SeatWeight: 1}, 1, now)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	total := payments[0].Amount.Add(payments[1].Amount)
	assert.True(t, total.Equal(decimal.NewFromInt(170000)), "got %s", total)
}

func TestSettleNeverPaysOnAbstainOrNoVote(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bill := lobbyBill(t, models.ChamberSenate, now)

	for _, value := range []models.VoteValue{models.VoteAbstain, models.VoteNone} {
		vote := models.Vote{VoterID: "sen-x", Value: value, SeatWeight: 1, CastAt: now}
		assert.Empty(t, Settle(bill, vote), "value %s", value)
	}
}
