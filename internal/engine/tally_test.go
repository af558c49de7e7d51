package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capitolworks/legis/internal/models"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		tallies models.Tallies
		quorum  int
		met     bool
		passed  bool
		margin  int
	}{
		{"empty", models.Tallies{}, 50, false, false, 0},
		{"quorum exact", models.Tallies{Aye: 30, Nay: 20, Total: 50}, 50, true, true, 10},
		{"one short of quorum", models.Tallies{Aye: 49, Total: 49}, 50, false, false, 49},
		{"tie never passes", models.Tallies{Aye: 30, Nay: 30, Total: 60}, 50, true, false, 0},
		{"abstain counts toward quorum", models.Tallies{Aye: 10, Nay: 5, Abstain: 40, Total: 55}, 50, true, true, 5},
		{"nay majority", models.Tallies{Aye: 20, Nay: 35, Total: 55}, 50, true, false, -15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bill := models.Bill{Tallies: tc.tallies, QuorumRequired: tc.quorum}
			got := Evaluate(bill)
			assert.Equal(t, tc.met, got.QuorumMet)
			assert.Equal(t, tc.passed, got.Passed)
			assert.Equal(t, tc.margin, got.Margin)
			assert.Equal(t, tc.quorum, got.QuorumRequired)
		})
	}
}

func TestRemainingMs(t *testing.T) {
	deadline := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	bill := models.Bill{VotingDeadline: deadline}

	assert.Equal(t, int64(60000), RemainingMs(bill, deadline.Add(-time.Minute)))
	assert.Equal(t, int64(0), RemainingMs(bill, deadline))
	assert.Equal(t, int64(0), RemainingMs(bill, deadline.Add(time.Hour)))
}
