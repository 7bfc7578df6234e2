package dispatcher

import (
	"sync"

	"github.com/rs/zerolog"
)

// Pool runs submitted tasks on a fixed number of goroutines. Tasks are queued into a
// bounded channel, so Submit blocks while the queue is full.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	wg     sync.WaitGroup
	log    zerolog.Logger
}

func New(workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		tasks: make(chan func(), queueSize),
		log:   logger,
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

// Submit queues the task. Tasks submitted after Close are dropped.
func (p *Pool) Submit(task func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.log.Warn().Msg("task submitted to a closed pool, dropping")
		return
	}

	p.tasks <- task
}

// Close stops accepting new tasks and waits until the queued ones are done.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()

	task()
}
