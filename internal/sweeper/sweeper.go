package sweeper

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/capitolworks/legis/internal/store"
)

type Config struct {
	Interval    time.Duration
	BatchSize   int
	Parallelism int
	Now         func() time.Time
	Logger      *log.Logger
}

// resolveFunc resolves one bill; kept narrow so tests can count calls.
type resolveFunc = func(ctx context.Context, billID uuid.UUID, now time.Time) error

// Sweeper periodically resolves ACTIVE bills whose deadline has elapsed. It
// is safe to run alongside other sweepers and direct resolve calls because
// resolution is idempotent; a failed bill is logged and skipped so one bad
// bill never blocks the rest of the batch.
type Sweeper struct {
	store   store.Store
	resolve resolveFunc

	interval    time.Duration
	batchSize   int
	parallelism int
	now         func() time.Time
	logger      *log.Logger
}

func New(st store.Store, resolve resolveFunc, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[sweeper] ", log.LstdFlags)
	}
	return &Sweeper{
		store:       st,
		resolve:     resolve,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		parallelism: cfg.Parallelism,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("sweep: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce resolves every currently expired ACTIVE bill, at most BatchSize
// per pass, with bounded parallelism.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := s.now()
	ids, err := s.store.ListExpiredActive(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.resolve(gctx, id, now); err != nil {
				s.logger.Printf("resolve bill %s: %v", id, err)
			}
			// Partial failures are isolated; never abort the batch.
			return nil
		})
	}
	return g.Wait()
}
