package engine

import (
	"time"

	"github.com/capitolworks/legis/internal/models"
)

// TallyResult is a pure read over a bill's running counters. Quorum is
// evaluated on the weighted total, not the raw voter count, and a tie never
// passes.
type TallyResult struct {
	Aye            int  `json:"aye"`
	Nay            int  `json:"nay"`
	Abstain        int  `json:"abstain"`
	Total          int  `json:"total"`
	QuorumRequired int  `json:"quorumRequired"`
	QuorumMet      bool `json:"quorumMet"`
	Passed         bool `json:"passed"`
	Margin         int  `json:"margin"`
}

// Evaluate derives the tally result from the bill's counters.
func Evaluate(b models.Bill) TallyResult {
	t := TallyResult{
		Aye:            b.Tallies.Aye,
		Nay:            b.Tallies.Nay,
		Abstain:        b.Tallies.Abstain,
		Total:          b.Tallies.Total,
		QuorumRequired: b.QuorumRequired,
		Margin:         b.Tallies.Aye - b.Tallies.Nay,
	}
	t.QuorumMet = t.Total >= b.QuorumRequired
	t.Passed = t.QuorumMet && t.Aye > t.Nay
	return t
}

// RemainingMs reports milliseconds until the voting deadline, clamped at zero.
func RemainingMs(b models.Bill, now time.Time) int64 {
	remaining := b.VotingDeadline.Sub(now).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
