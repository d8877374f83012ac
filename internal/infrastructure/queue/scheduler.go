package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/api/metrics"
	"github.com/waldorf/school-records/internal/core/domain"
)

const defaultScanInterval = time.Hour

// PendingSource lists persons due for deletion.
type PendingSource interface {
	PendingDeletions(ctx context.Context, asOf time.Time) ([]*domain.Person, error)
}

// Enqueuer accepts deletion candidates. It reports false for a candidate
// that is still queued from an earlier scan.
type Enqueuer interface {
	Enqueue(ctx context.Context, p *domain.Person) (bool, error)
}

// Scheduler periodically scans for persons whose scheduled deletion date has
// passed and enqueues them. The scan only reads, so it never takes person locks.
type Scheduler struct {
	source   PendingSource
	queue    Enqueuer
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewScheduler(source PendingSource, queue Enqueuer, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &Scheduler{source: source, queue: queue, interval: interval, log: log, now: time.Now}
}

// Run scans once immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("deletion scan failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ScanOnce runs a single scan and returns how many candidates were newly enqueued.
func (s *Scheduler) ScanOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.DeletionScanDuration.Observe(time.Since(start).Seconds()) }()

	due, err := s.source.PendingDeletions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n, skipped := 0, 0
	for _, p := range due {
		accepted, err := s.queue.Enqueue(ctx, p)
		if err != nil {
			return n, err
		}
		if !accepted {
			skipped++
			continue
		}
		n++
	}
	if n > 0 || skipped > 0 {
		s.log.Info().Int("candidates", n).Int("already_queued", skipped).Msg("deletion candidates enqueued")
	}
	return n, nil
}
