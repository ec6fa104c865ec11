package exqlite

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrSchedulerClosed = errors.New("exqlite: scheduler is closed")

// DefaultWorkers is the pool size used when NewScheduler gets a non-positive count.
const DefaultWorkers = 4

type call struct {
	name   string
	args   []any
	result chan any
}

// Scheduler runs host calls on a fixed pool of I/O workers so that blocking
// engine calls never run on the submitting goroutine. It never retries a call.
type Scheduler struct {
	calls  chan call
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewScheduler(workers int, logger *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = Logger()
	}
	s := &Scheduler{
		calls:  make(chan call),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("component", "scheduler")),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(i)
	}
	return s
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case c := <-s.calls:
			s.logger.Debug("call", zap.Int("worker", id), zap.String("name", c.name))
			c.result <- Call(c.name, c.args...)
		}
	}
}

// Submit runs the named call on a worker and returns its term. If ctx ends
// first, Submit returns ctx.Err(); a call already handed to a worker still
// runs to completion and its result is dropped.
func (s *Scheduler) Submit(ctx context.Context, name string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := call{name: name, args: args, result: make(chan any, 1)}
	select {
	case <-s.done:
		return nil, ErrSchedulerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.calls <- c:
	}
	select {
	case res := <-c.result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers after their current calls finish.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
