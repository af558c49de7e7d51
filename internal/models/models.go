package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Chamber string

const (
	ChamberSenate Chamber = "senate"
	ChamberHouse  Chamber = "house"
)

type BillStatus string

const (
	StatusActive    BillStatus = "ACTIVE"
	StatusPassed    BillStatus = "PASSED"
	StatusFailed    BillStatus = "FAILED"
	StatusWithdrawn BillStatus = "WITHDRAWN"
	StatusExpired   BillStatus = "EXPIRED"
)

// Terminal reports whether no further transitions may leave the status.
func (s BillStatus) Terminal() bool {
	return s != StatusActive
}

type VoteValue string

const (
	VoteAye     VoteValue = "aye"
	VoteNay     VoteValue = "nay"
	VoteAbstain VoteValue = "abstain"
	// VoteNone records presence without contributing to any tally bucket.
	VoteNone VoteValue = "no_vote"
)

type LobbyStance string

const (
	StanceFor     LobbyStance = "FOR"
	StanceAgainst LobbyStance = "AGAINST"
	StanceNeutral LobbyStance = "NEUTRAL"
)

type PolicyArea string

const (
	PolicyAreaEconomy        PolicyArea = "economy"
	PolicyAreaEnergy         PolicyArea = "energy"
	PolicyAreaHealthcare     PolicyArea = "healthcare"
	PolicyAreaDefense        PolicyArea = "defense"
	PolicyAreaInfrastructure PolicyArea = "infrastructure"
	PolicyAreaAgriculture    PolicyArea = "agriculture"
	PolicyAreaEducation      PolicyArea = "education"
	PolicyAreaJustice        PolicyArea = "justice"
	PolicyAreaTaxation       PolicyArea = "taxation"
	PolicyAreaForeignAffairs PolicyArea = "foreign_affairs"
)

func ValidPolicyArea(a PolicyArea) bool {
	switch a {
	case PolicyAreaEconomy, PolicyAreaEnergy, PolicyAreaHealthcare,
		PolicyAreaDefense, PolicyAreaInfrastructure, PolicyAreaAgriculture,
		PolicyAreaEducation, PolicyAreaJustice, PolicyAreaTaxation,
		PolicyAreaForeignAffairs:
		return true
	}
	return false
}

type EffectScope string

const (
	ScopeGlobal   EffectScope = "GLOBAL"
	ScopeIndustry EffectScope = "INDUSTRY"
	ScopeState    EffectScope = "STATE"
)

// PolicyEffect is a scoped numeric change handed off to the economy service
// when the parent bill passes. DurationMonths nil means permanent.
type PolicyEffect struct {
	Scope          EffectScope     `json:"scope"`
	TargetID       string          `json:"targetId,omitempty"`
	EffectType     string          `json:"effectType"`
	Value          decimal.Decimal `json:"value"`
	Unit           string          `json:"unit"`
	DurationMonths *int            `json:"durationMonths,omitempty"`
}

// LobbyPosition is a declared stance on a bill, fixed at bill creation.
type LobbyPosition struct {
	LobbyID        string          `json:"lobbyId"`
	Stance         LobbyStance     `json:"stance"`
	PaymentPerSeat decimal.Decimal `json:"paymentPerSeat"`
	Rationale      string          `json:"rationale,omitempty"`
}

// Vote is one ballot in a bill's ledger. A voter appears at most once per bill.
type Vote struct {
	VoterID    string      `json:"voterId"`
	Value      VoteValue   `json:"value"`
	SeatWeight int         `json:"seatWeight"`
	CastAt     time.Time   `json:"castAt"`
	PaymentIDs []uuid.UUID `json:"paymentIds,omitempty"`
}

// LobbyPayment is an immutable settlement record created as part of the same
// atomic unit as its triggering vote.
type LobbyPayment struct {
	ID            uuid.UUID       `json:"id"`
	BillID        uuid.UUID       `json:"billId"`
	VoterID       string          `json:"voterId"`
	LobbyID       string          `json:"lobbyId"`
	Stance        LobbyStance     `json:"stance"`
	VoteValue     VoteValue       `json:"voteValue"`
	SeatWeight    int             `json:"seatWeight"`
	AmountPerSeat decimal.Decimal `json:"amountPerSeat"`
	Amount        decimal.Decimal `json:"amount"`
	SettledAt     time.Time       `json:"settledAt"`
}

// Tallies are weighted running sums over the vote ledger.
type Tallies struct {
	Aye     int `json:"aye"`
	Nay     int `json:"nay"`
	Abstain int `json:"abstain"`
	Total   int `json:"total"`
}

// Bill is the aggregate root. It is append-mostly: votes accrue while ACTIVE,
// and nothing changes after the status turns terminal.
type Bill struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	Chamber        Chamber         `json:"chamber"`
	PolicyArea     PolicyArea      `json:"policyArea"`
	Title          string          `json:"title"`
	Summary        string          `json:"summary"`
	SponsorID      string          `json:"sponsorId"`
	CoSponsorIDs   []string        `json:"coSponsorIds,omitempty"`
	DebateRefs     []string        `json:"debateRefs,omitempty"`
	SubmittedAt    time.Time       `json:"submittedAt"`
	VotingDeadline time.Time       `json:"votingDeadline"`
	QuorumRequired int             `json:"quorumRequired"`
	Status         BillStatus      `json:"status"`
	Tallies        Tallies         `json:"tallies"`
	Votes          []Vote          `json:"votes,omitempty"`
	LobbyPositions []LobbyPosition `json:"lobbyPositions,omitempty"`
	Effects        []PolicyEffect  `json:"effects,omitempty"`
	Enacted        bool            `json:"enacted"`
	EnactedAt      *time.Time      `json:"enactedAt,omitempty"`
	WithdrawnAt    *time.Time      `json:"withdrawnAt,omitempty"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
}

// HasVoted reports whether the voter already holds a ledger entry on the bill.
func (b *Bill) HasVoted(voterID string) bool {
	for _, v := range b.Votes {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}
