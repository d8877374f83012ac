package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/api/metrics"
	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher routes deletion candidates to a fixed set of workers using
// consistent hashing on the person ID, so one person is never handled by two
// workers at once. A person is queued at most once until its handling ends.
type Dispatcher struct {
	workers []chan *domain.Person
	handler ports.DeletionCandidateHandler
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, handler ports.DeletionCandidateHandler, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan *domain.Person, numWorkers),
		handler: handler,
		log:     log,
		pending: make(map[string]struct{}),
	}
	for i := range d.workers {
		d.workers[i] = make(chan *domain.Person, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue hands p to the worker responsible for its ID. It reports false
// when p is already queued or being handled. It blocks while that worker's
// buffer is full and gives up when ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, p *domain.Person) (bool, error) {
	d.mu.Lock()
	if _, queued := d.pending[p.ID]; queued {
		d.mu.Unlock()
		metrics.DeletionCandidatesTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	d.pending[p.ID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.workers[d.shardIndex(p.ID)] <- p:
		metrics.DeletionQueueDepth.Inc()
		return true, nil
	case <-ctx.Done():
		d.release(p.ID)
		return false, ctx.Err()
	}
}

func (d *Dispatcher) release(personID string) {
	d.mu.Lock()
	delete(d.pending, personID)
	d.mu.Unlock()
}

// shardIndex maps a person ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(personID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(personID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan *domain.Person) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-ch:
			metrics.DeletionQueueDepth.Dec()
			err := d.handler.HandleDeletionCandidate(ctx, p)
			d.release(p.ID)
			if err != nil {
				metrics.DeletionCandidatesTotal.WithLabelValues("failed").Inc()
				d.log.Error().Err(err).
					Str("person_id", p.ID).
					Int("worker_id", id).
					Msg("deletion candidate handling failed")
				continue
			}
			metrics.DeletionCandidatesTotal.WithLabelValues("handled").Inc()
		}
	}
}
