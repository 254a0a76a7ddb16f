package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("recompute queue closed")

// Pair is the unit of matching work.
type Pair struct {
	UserID uuid.UUID
	JobID  uuid.UUID
}

type PairHandler func(ctx context.Context, p Pair) error

// Ticket completes when the next execution of its pair has finished.
// Enqueuing a pair that is already waiting returns the waiting ticket.
type Ticket struct {
	done chan struct{}
	err  error
}

func newTicket() *Ticket { return &Ticket{done: make(chan struct{})} }

func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err is valid once Done is closed.
func (t *Ticket) Err() error { return t.err }

func (t *Ticket) finish(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until every ticket is done or ctx ends and returns the first
// ticket error.
func Wait(ctx context.Context, tickets []*Ticket) error {
	var first error
	for _, t := range tickets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			if t.err != nil && first == nil {
				first = t.err
			}
		}
	}
	return first
}

type QueueStats struct {
	Enqueued  int64
	Coalesced int64
	Executed  int64
	Failed    int64
	Pending   int
}

// RecomputeQueue is a FIFO of pairs that coalesces duplicates: a pair is
// queued at most once, and is removed from the pending set when a worker
// picks it up so a trigger arriving mid-execution schedules another run.
type RecomputeQueue struct {
	workers int
	handle  PairHandler
	logger  *zap.Logger

	mu      sync.Mutex
	order   []Pair
	pending map[Pair]*Ticket
	active  int
	closed  bool
	stats   QueueStats
	idle    *sync.Cond

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRecomputeQueue(workers int, handle PairHandler, logger *zap.Logger) *RecomputeQueue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &RecomputeQueue{
		workers: workers,
		handle:  handle,
		logger:  logger,
		pending: make(map[Pair]*Ticket),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

func (q *RecomputeQueue) Start(ctx context.Context) {
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.work(ctx)
	}
}

func (q *RecomputeQueue) Enqueue(p Pair) *Ticket {
	q.mu.Lock()
	if t, ok := q.pending[p]; ok {
		q.stats.Coalesced++
		q.mu.Unlock()
		return t
	}
	t := newTicket()
	if q.closed {
		q.mu.Unlock()
		t.finish(ErrQueueClosed)
		return t
	}
	q.pending[p] = t
	q.order = append(q.order, p)
	q.stats.Enqueued++
	q.mu.Unlock()

	q.signal()
	return t
}

// Drain blocks until no pair is queued or executing.
func (q *RecomputeQueue) Drain() {
	q.mu.Lock()
	for len(q.order) > 0 || q.active > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// Close stops intake; workers finish the backlog and exit. Tickets left over
// after the workers stopped are failed with ErrQueueClosed.
func (q *RecomputeQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.stop)
}

// Wait waits for the workers started by Start to exit.
func (q *RecomputeQueue) Wait() {
	q.wg.Wait()

	q.mu.Lock()
	left := q.pending
	q.pending = make(map[Pair]*Ticket)
	q.order = nil
	q.idle.Broadcast()
	q.mu.Unlock()

	for _, t := range left {
		t.finish(ErrQueueClosed)
	}
}

func (q *RecomputeQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.order)
	return s
}

func (q *RecomputeQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *RecomputeQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		p, t, ok := q.next(ctx)
		if !ok {
			return
		}

		err := q.handle(ctx, p)
		if err != nil {
			q.logger.Warn("recompute failed",
				zap.String("user_id", p.UserID.String()),
				zap.String("job_id", p.JobID.String()),
				zap.Error(err),
			)
		}
		t.finish(err)

		q.mu.Lock()
		q.active--
		q.stats.Executed++
		if err != nil {
			q.stats.Failed++
		}
		if len(q.order) == 0 && q.active == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

func (q *RecomputeQueue) next(ctx context.Context) (Pair, *Ticket, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			p := q.order[0]
			q.order[0] = Pair{}
			q.order = q.order[1:]
			t := q.pending[p]
			delete(q.pending, p)
			q.active++
			more := len(q.order) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return p, t, true
		}
		if q.closed {
			q.mu.Unlock()
			return Pair{}, nil, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Pair{}, nil, false
		case <-q.stop:
		case <-q.notify:
		}
	}
}
