package sweeper

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolworks/legis/internal/models"
	"github.com/capitolworks/legis/internal/store"
)

func activeBill(deadline time.Time) models.Bill {
	return models.Bill{
		ID:             uuid.New(),
		Number:         "S-3001",
		Chamber:        models.ChamberSenate,
		Status:         models.StatusActive,
		SubmittedAt:    deadline.Add(-24 * time.Hour),
		VotingDeadline: deadline,
		QuorumRequired: 50,
	}
}

func TestSweepResolvesExpiredOnly(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

	expired1, _ := st.CreateBill(ctx, activeBill(now.Add(-time.Hour)))
	expired2, _ := st.CreateBill(ctx, activeBill(now.Add(-time.Minute)))
	open, _ := st.CreateBill(ctx, activeBill(now.Add(time.Hour)))

	var (
		mu       sync.Mutex
		resolved []uuid.UUID
	)
	sw := New(st, func(ctx context.Context, billID uuid.UUID, at time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		resolved = append(resolved, billID)
		return nil
	}, Config{Now: func() time.Time { return now }})

	require.NoError(t, sw.SweepOnce(ctx))
	assert.ElementsMatch(t, []uuid.UUID{expired1.ID, expired2.ID}, resolved)
	assert.NotContains(t, resolved, open.ID)
}

// One failing bill never blocks the rest of the batch.
func TestSweepIsolatesFailures(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

	bad, _ := st.CreateBill(ctx, activeBill(now.Add(-2*time.Hour)))
	good, _ := st.CreateBill(ctx, activeBill(now.Add(-time.Hour)))

	var (
		mu       sync.Mutex
		resolved []uuid.UUID
	)
	var buf bytes.Buffer
	sw := New(st, func(ctx context.Context, billID uuid.UUID, at time.Time) error {
		if billID == bad.ID {
			return fmt.Errorf("settlement ledger unreachable")
		}
		mu.Lock()
		defer mu.Unlock()
		resolved = append(resolved, billID)
		return nil
	}, Config{
		Now:    func() time.Time { return now },
		Logger: log.New(&buf, "[sweeper] ", 0),
	})

	require.NoError(t, sw.SweepOnce(ctx))
	require.Len(t, resolved, 1)
	assert.Contains(t, resolved, good.ID)
	assert.Contains(t, buf.String(), "settlement ledger unreachable")
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewMemoryStore()
	sw := New(st, func(ctx context.Context, billID uuid.UUID, at time.Time) error {
		return nil
	}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
