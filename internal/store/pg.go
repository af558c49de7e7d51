package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/capitolworks/legis/internal/models"
)

// PGStore persists bills in three tables: bills (aggregate row with running
// tallies and JSON lobby/effect lists), votes (unique on bill_id, voter_id),
// and lobby_payments (unique on bill_id, voter_id, lobby_id). The unique
// indexes back the one-vote-per-voter and settle-at-most-once invariants.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const billColumns = `
	id, number, chamber, policy_area, title, summary, sponsor_id,
	co_sponsors, debate_refs, submitted_at, voting_deadline, quorum_required,
	status, tally_aye, tally_nay, tally_abstain, tally_total,
	lobby_positions, effects, enacted, enacted_at, withdrawn_at, resolved_at
`

func scanBill(row rowScanner) (models.Bill, error) {
	var (
		bill        models.Bill
		coSponsors  []byte
		debateRefs  []byte
		positions   []byte
		effects     []byte
		enactedAt   sql.NullTime
		withdrawnAt sql.NullTime
		resolvedAt  sql.NullTime
	)
	if err := row.Scan(
		&bill.ID,
		&bill.Number,
		&bill.Chamber,
		&bill.PolicyArea,
		&bill.Title,
		&bill.Summary,
		&bill.SponsorID,
		&coSponsors,
		&debateRefs,
		&bill.SubmittedAt,
		&bill.VotingDeadline,
		&bill.QuorumRequired,
		&bill.Status,
		&bill.Tallies.Aye,
		&bill.Tallies.Nay,
		&bill.Tallies.Abstain,
		&bill.Tallies.Total,
		&positions,
		&effects,
		&bill.Enacted,
		&enactedAt,
		&withdrawnAt,
		&resolvedAt,
	); err != nil {
		return models.Bill{}, err
	}
	if err := unmarshalJSON(coSponsors, &bill.CoSponsorIDs); err != nil {
		return models.Bill{}, fmt.Errorf("decode co_sponsors: %w", err)
	}
	if err := unmarshalJSON(debateRefs, &bill.DebateRefs); err != nil {
		return models.Bill{}, fmt.Errorf("decode debate_refs: %w", err)
	}
	if err := unmarshalJSON(positions, &bill.LobbyPositions); err != nil {
		return models.Bill{}, fmt.Errorf("decode lobby_positions: %w", err)
	}
	if err := unmarshalJSON(effects, &bill.Effects); err != nil {
		return models.Bill{}, fmt.Errorf("decode effects: %w", err)
	}
	if enactedAt.Valid {
		t := enactedAt.Time
		bill.EnactedAt = &t
	}
	if withdrawnAt.Valid {
		t := withdrawnAt.Time
		bill.WithdrawnAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		bill.ResolvedAt = &t
	}
	return bill, nil
}

func unmarshalJSON(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func marshalJSON(v interface{}, fallback string) ([]byte, error) {
	if v == nil {
		return []byte(fallback), nil
	}
	return json.Marshal(v)
}

func scanVote(row rowScanner) (models.Vote, error) {
	var (
		vote       models.Vote
		paymentIDs []byte
	)
	if err := row.Scan(&vote.VoterID, &vote.Value, &vote.SeatWeight, &vote.CastAt, &paymentIDs); err != nil {
		return models.Vote{}, err
	}
	if err := unmarshalJSON(paymentIDs, &vote.PaymentIDs); err != nil {
		return models.Vote{}, fmt.Errorf("decode payment_ids: %w", err)
	}
	return vote, nil
}

func (s *PGStore) CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error) {
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	coSponsors, err := marshalJSON(bill.CoSponsorIDs, "[]")
	if err != nil {
		return models.Bill{}, fmt.Errorf("encode co_sponsors: %w", err)
	}
	debateRefs, err := marshalJSON(bill.DebateRefs, "[]")
	if err != nil {
		return models.Bill{}, fmt.Errorf("encode debate_refs: %w", err)
	}
	positions, err := marshalJSON(bill.LobbyPositions, "[]")
	if err != nil {
		return models.Bill{}, fmt.Errorf("encode lobby_positions: %w", err)
	}
	effects, err := marshalJSON(bill.Effects, "[]")
	if err != nil {
		return models.Bill{}, fmt.Errorf("encode effects: %w", err)
	}
	query := `
		INSERT INTO bills (
			id, number, chamber, policy_area, title, summary, sponsor_id,
			co_sponsors, debate_refs, submitted_at, voting_deadline, quorum_required,
			status, tally_aye, tally_nay, tally_abstain, tally_total,
			lobby_positions, effects, enacted
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,0,0,0,$14,$15,false)
		RETURNING ` + billColumns
	row := s.db.QueryRowContext(ctx, query,
		bill.ID, bill.Number, bill.Chamber, bill.PolicyArea, bill.Title, bill.Summary,
		bill.SponsorID, coSponsors, debateRefs, bill.SubmittedAt, bill.VotingDeadline,
		bill.QuorumRequired, bill.Status, positions, effects,
	)
	created, err := scanBill(row)
	if err != nil {
		return models.Bill{}, fmt.Errorf("insert bill: %w", err)
	}
	return created, nil
}

func (s *PGStore) GetBill(ctx context.Context, id uuid.UUID) (models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id=$1`
	bill, err := scanBill(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Bill{}, ErrNotFound
		}
		return models.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	votes, err := s.listVotes(ctx, id)
	if err != nil {
		return models.Bill{}, err
	}
	bill.Votes = votes
	return bill, nil
}

func (s *PGStore) listVotes(ctx context.Context, billID uuid.UUID) ([]models.Vote, error) {
	const query = `
		SELECT voter_id, value, seat_weight, cast_at, payment_ids
		FROM votes WHERE bill_id=$1
		ORDER BY cast_at, voter_id
	`
	rows, err := s.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

func (s *PGStore) ListBills(ctx context.Context, filter ListBillsFilter) ([]models.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE 1=1`
	args := []interface{}{}
	argPos := 1
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.Chamber != "" {
		query += fmt.Sprintf(" AND chamber = $%d", argPos)
		args = append(args, filter.Chamber)
		argPos++
	}
	if filter.SponsorID != "" {
		query += fmt.Sprintf(" AND sponsor_id = $%d", argPos)
		args = append(args, filter.SponsorID)
		argPos++
	}
	query += " ORDER BY submitted_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, normalizeLimit(filter.Limit))
	argPos++
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []models.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

// AppendVote writes the vote, its payments, and the counter increments in one
// transaction. The bill row is locked first so the status and deadline checks
// are consistent with the writes; the votes unique index turns a concurrent
// duplicate into ErrAlreadyVoted. Tallies move by the vote's own delta, never
// an absolute snapshot, so appends from other instances are never overwritten.
func (s *PGStore) AppendVote(ctx context.Context, in AppendVoteInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const lockQuery = `SELECT status, voting_deadline FROM bills WHERE id=$1 FOR UPDATE`
	var (
		status   models.BillStatus
		deadline time.Time
	)
	if err := tx.QueryRowContext(ctx, lockQuery, in.BillID).Scan(&status, &deadline); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock bill: %w", err)
	}
	if status != models.StatusActive {
		return ErrNotActive
	}
	if !in.Vote.CastAt.Before(deadline) {
		return ErrVotingClosed
	}

	paymentIDs, err := marshalJSON(in.Vote.PaymentIDs, "[]")
	if err != nil {
		return fmt.Errorf("encode payment_ids: %w", err)
	}
	const insertVote = `
		INSERT INTO votes (bill_id, voter_id, value, seat_weight, cast_at, payment_ids)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	if _, err := tx.ExecContext(ctx, insertVote, in.BillID, in.Vote.VoterID, in.Vote.Value, in.Vote.SeatWeight, in.Vote.CastAt, paymentIDs); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("insert vote: %w", err)
	}

	const insertPayment = `
		INSERT INTO lobby_payments (
			id, bill_id, voter_id, lobby_id, stance, vote_value,
			seat_weight, amount_per_seat, amount, settled_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	for _, p := range in.Payments {
		if _, err := tx.ExecContext(ctx, insertPayment, p.ID, p.BillID, p.VoterID, p.LobbyID, p.Stance, p.VoteValue, p.SeatWeight, p.AmountPerSeat, p.Amount, p.SettledAt); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyVoted
			}
			return fmt.Errorf("insert payment: %w", err)
		}
	}

	delta := tallyDelta(in.Vote)
	const updateTallies = `
		UPDATE bills
		SET tally_aye = tally_aye + $2,
		    tally_nay = tally_nay + $3,
		    tally_abstain = tally_abstain + $4,
		    tally_total = tally_total + $5
		WHERE id=$1
	`
	if _, err := tx.ExecContext(ctx, updateTallies, in.BillID, delta.Aye, delta.Nay, delta.Abstain, delta.Total); err != nil {
		return fmt.Errorf("update tallies: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vote: %w", err)
	}
	return nil
}

// TransitionBill performs the conditional ACTIVE→terminal update. Zero rows
// updated means the bill was already terminal (or missing).
func (s *PGStore) TransitionBill(ctx context.Context, in TransitionInput) (models.Bill, error) {
	query := `
		UPDATE bills
		SET status=$2, resolved_at=$3, enacted=$4, enacted_at=$5, withdrawn_at=$6
		WHERE id=$1 AND status='ACTIVE'
		RETURNING ` + billColumns
	row := s.db.QueryRowContext(ctx, query, in.BillID, in.To, in.ResolvedAt, in.Enacted, in.EnactedAt, in.WithdrawnAt)
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.GetBill(ctx, in.BillID); errors.Is(getErr, ErrNotFound) {
				return models.Bill{}, ErrNotFound
			}
			return models.Bill{}, ErrNotActive
		}
		return models.Bill{}, fmt.Errorf("transition bill: %w", err)
	}
	votes, err := s.listVotes(ctx, in.BillID)
	if err != nil {
		return models.Bill{}, err
	}
	bill.Votes = votes
	return bill, nil
}

func (s *PGStore) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const query = `
		SELECT id FROM bills
		WHERE status='ACTIVE' AND voting_deadline <= $1
		ORDER BY voting_deadline
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, now, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list expired bills: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bill id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired bills: %w", err)
	}
	return ids, nil
}

func (s *PGStore) ListPaymentsByBill(ctx context.Context, billID uuid.UUID) ([]models.LobbyPayment, error) {
	const query = `
		SELECT id, bill_id, voter_id, lobby_id, stance, vote_value,
		       seat_weight, amount_per_seat, amount, settled_at
		FROM lobby_payments
		WHERE bill_id=$1
		ORDER BY settled_at, voter_id, lobby_id
	`
	rows, err := s.db.QueryContext(ctx, query, billID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.LobbyPayment
	for rows.Next() {
		var p models.LobbyPayment
		if err := rows.Scan(&p.ID, &p.BillID, &p.VoterID, &p.LobbyID, &p.Stance, &p.VoteValue, &p.SeatWeight, &p.AmountPerSeat, &p.Amount, &p.SettledAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
