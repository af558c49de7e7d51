package enactment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitolworks/legis/internal/models"
)

// Default instruction topics consumed by the economy/ledger service.
const (
	TopicEnactments  = "legis.enactments"
	TopicSettlements = "legis.settlements"
)

// EnactmentInstruction tells the economy service to apply one policy effect.
// BillID plus the effect index form the downstream idempotency key.
type EnactmentInstruction struct {
	BillID         uuid.UUID          `json:"billId"`
	BillNumber     string             `json:"billNumber"`
	EffectIndex    int                `json:"effectIndex"`
	Scope          models.EffectScope `json:"scope"`
	TargetID       string             `json:"targetId,omitempty"`
	EffectType     string             `json:"effectType"`
	Value          decimal.Decimal    `json:"value"`
	Unit           string             `json:"unit"`
	DurationMonths *int               `json:"durationMonths,omitempty"`
	EnactedAt      time.Time          `json:"enactedAt"`
}

// SettlementInstruction tells the ledger service to pay a voter on behalf of
// a lobby. The (billId, voterId, lobbyId) triple is the idempotency key.
type SettlementInstruction struct {
	PaymentID uuid.UUID          `json:"paymentId"`
	BillID    uuid.UUID          `json:"billId"`
	VoterID   string             `json:"voterId"`
	LobbyID   string             `json:"lobbyId"`
	Stance    models.LobbyStance `json:"stance"`
	VoteValue models.VoteValue   `json:"voteValue"`
	Amount    decimal.Decimal    `json:"amount"`
	SettledAt time.Time          `json:"settledAt"`
}

// Dispatcher emits enactment and settlement instructions. Delivery is
// at-least-once after the owning transaction commits; every message carries
// an idempotency key so downstream replays are harmless.
type Dispatcher struct {
	producer         Producer
	enactmentsTopic  string
	settlementsTopic string
}

func NewDispatcher(producer Producer) *Dispatcher {
	return &Dispatcher{
		producer:         producer,
		enactmentsTopic:  TopicEnactments,
		settlementsTopic: TopicSettlements,
	}
}

// DispatchEnactments emits one instruction per policy effect on a bill that
// just passed. Keyed by bill id so all effects of one bill stay ordered.
func (d *Dispatcher) DispatchEnactments(ctx context.Context, bill models.Bill, enactedAt time.Time) error {
	for i, eff := range bill.Effects {
		inst := EnactmentInstruction{
			BillID:         bill.ID,
			BillNumber:     bill.Number,
			EffectIndex:    i,
			Scope:          eff.Scope,
			TargetID:       eff.TargetID,
			EffectType:     eff.EffectType,
			Value:          eff.Value,
			Unit:           eff.Unit,
			DurationMonths: eff.DurationMonths,
			EnactedAt:      enactedAt.UTC(),
		}
		value, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("marshal enactment: %w", err)
		}
		if err := d.producer.Produce(ctx, d.enactmentsTopic, []byte(bill.ID.String()), value); err != nil {
			return fmt.Errorf("dispatch enactment %d for bill %s: %w", i, bill.ID, err)
		}
	}
	return nil
}

// DispatchSettlements emits one instruction per lobby payment.
func (d *Dispatcher) DispatchSettlements(ctx context.Context, payments []models.LobbyPayment) error {
	for _, p := range payments {
		inst := SettlementInstruction{
			PaymentID: p.ID,
			BillID:    p.BillID,
			VoterID:   p.VoterID,
			LobbyID:   p.LobbyID,
			Stance:    p.Stance,
			VoteValue: p.VoteValue,
			Amount:    p.Amount,
			SettledAt: p.SettledAt,
		}
		value, err := json.Marshal(inst)
		if err != nil {
			return fmt.Errorf("marshal settlement: %w", err)
		}
		key := fmt.Sprintf("%s:%s:%s", p.BillID, p.VoterID, p.LobbyID)
		if err := d.producer.Produce(ctx, d.settlementsTopic, []byte(key), value); err != nil {
			return fmt.Errorf("dispatch settlement %s: %w", key, err)
		}
	}
	return nil
}
