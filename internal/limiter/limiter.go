package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/capitolworks/legis/internal/engine"
	"github.com/capitolworks/legis/internal/models"
)

// Limits are the anti-abuse thresholds gating bill submission.
type Limits struct {
	// MaxActivePerSponsor caps a sponsor's concurrently ACTIVE bills.
	MaxActivePerSponsor int
	// DailyChamberMax caps submissions to one chamber per UTC calendar day,
	// across all sponsors.
	DailyChamberMax int
	// Cooldown is the minimum gap between submissions by one sponsor.
	Cooldown time.Duration
}

func DefaultLimits() Limits {
	return Limits{MaxActivePerSponsor: 3, DailyChamberMax: 10, Cooldown: 24 * time.Hour}
}

// Decision is the outcome of a reservation attempt. A denied decision names
// its rejection code and, for cooldowns, when the sponsor may try again.
type Decision struct {
	Allowed        bool
	Code           string
	Reason         string
	CooldownEndsAt *time.Time
}

// Limiter gates bill submission. Reserve is atomic check-then-record: a
// denied attempt mutates nothing, an allowed attempt records the submission
// and claims an active-bill slot in the same step. Release returns the slot
// when a bill leaves ACTIVE.
type Limiter interface {
	Reserve(ctx context.Context, sponsorID string, chamber models.Chamber, now time.Time) (Decision, error)
	Release(ctx context.Context, sponsorID string) error
}

func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func denied(code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// Memory is the in-process Limiter. All counters sit behind one mutex so the
// check-then-increment is atomic under concurrent submissions.
type Memory struct {
	limits Limits

	mu             sync.Mutex
	activeBills    map[string]int
	lastSubmission map[string]time.Time
	dailyByChamber map[string]int
}

func NewMemory(limits Limits) *Memory {
	return &Memory{
		limits:         limits,
		activeBills:    map[string]int{},
		lastSubmission: map[string]time.Time{},
		dailyByChamber: map[string]int{},
	}
}

func (m *Memory) Reserve(ctx context.Context, sponsorID string, chamber models.Chamber, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneDaily(now)
	if m.activeBills[sponsorID] >= m.limits.MaxActivePerSponsor {
		return denied(engine.CodeTooManyActive,
			fmt.Sprintf("sponsor %s already has %d active bills", sponsorID, m.activeBills[sponsorID])), nil
	}
	chamberKey := string(chamber) + ":" + dayKey(now)
	if m.dailyByChamber[chamberKey] >= m.limits.DailyChamberMax {
		return denied(engine.CodeDailyChamberLimit,
			fmt.Sprintf("chamber %s reached %d submissions today", chamber, m.dailyByChamber[chamberKey])), nil
	}
	if last, ok := m.lastSubmission[sponsorID]; ok {
		endsAt := last.Add(m.limits.Cooldown)
		if now.Before(endsAt) {
			d := denied(engine.CodeCooldownActive,
				fmt.Sprintf("cooldown active until %s", endsAt.UTC().Format(time.RFC3339)))
			ends := endsAt.UTC()
			d.CooldownEndsAt = &ends
			return d, nil
		}
	}

	m.activeBills[sponsorID]++
	m.dailyByChamber[chamberKey]++
	m.lastSubmission[sponsorID] = now.UTC()
	return Decision{Allowed: true}, nil
}

// pruneDaily drops counters for past UTC days so the map stays bounded over a
// long-running process. Caller holds the mutex.
func (m *Memory) pruneDaily(now time.Time) {
	today := dayKey(now)
	for k := range m.dailyByChamber {
		if !strings.HasSuffix(k, today) {
			delete(m.dailyByChamber, k)
		}
	}
}

func (m *Memory) Release(ctx context.Context, sponsorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeBills[sponsorID] > 0 {
		m.activeBills[sponsorID]--
	}
	return nil
}
