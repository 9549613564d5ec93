// Package worker runs jobs on a fixed set of long-lived goroutines.
//
// Each worker slot owns one goroutine and a single-item inbox. The caller
// chooses the slot for every submission and receives completions from a
// shared result channel, so no polling is involved.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cwygoda/ytaudio/internal/domain"
)

var (
	ErrShutdown      = errors.New("worker pool is shut down")
	ErrWorkerBusy    = errors.New("worker slot is busy")
	ErrUnknownWorker = errors.New("unknown worker slot")
)

// Func is the job body run by a worker. ctx is cancelled when the pool
// shuts down or the parent context is done.
type Func[T any] func(ctx context.Context, job *domain.Job, workerID int) (T, error)

// Handle identifies one submission.
type Handle struct {
	id       uint64
	WorkerID int
	Job      *domain.Job
}

// Completion is the outcome of one submission. Err is set when the body
// returned an error or panicked.
type Completion[T any] struct {
	Handle *Handle
	Value  T
	Err    error
}

// WorkerError pairs a failed submission with its worker slot.
type WorkerError struct {
	WorkerID int
	Err      error
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.WorkerID, e.Err)
}

func (e WorkerError) Unwrap() error { return e.Err }

// CompletionResult partitions the completions collected by Wait.
type CompletionResult[T any] struct {
	Results []Completion[T]
	Errors  []WorkerError
}

// HasErrors reports whether any submission failed.
func (r CompletionResult[T]) HasErrors() bool {
	return len(r.Errors) > 0
}

type task[T any] struct {
	handle *Handle
	fn     Func[T]
}

// Pool is a bounded executor. Next and Wait must be called from a single
// coordinating goroutine; Submit, States and Shutdown are safe anywhere.
type Pool[T any] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	inboxes []chan task[T]
	results chan Completion[T]
	wg      sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	nextID      uint64
	states      []WorkerState
	outstanding map[uint64]struct{}
	stash       []Completion[T]
}

// New starts size workers. size below 1 is treated as 1.
func New[T any](ctx context.Context, size int) *Pool[T] {
	size = max(size, 1)
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		ctx:         ctx,
		cancel:      cancel,
		inboxes:     make([]chan task[T], size),
		results:     make(chan Completion[T], size),
		states:      make([]WorkerState, size),
		outstanding: make(map[uint64]struct{}),
	}
	for i := range size {
		p.inboxes[i] = make(chan task[T], 1)
		p.states[i] = WorkerState{WorkerID: i}
		p.wg.Add(1)
		go p.loop(i)
	}
	return p
}

// Size returns the number of worker slots.
func (p *Pool[T]) Size() int {
	return len(p.inboxes)
}

func (p *Pool[T]) loop(id int) {
	defer p.wg.Done()
	for t := range p.inboxes[id] {
		// A slot holds at most one unreported completion and results has
		// one buffer entry per slot, so this send never blocks.
		p.results <- p.run(t)
	}
}

func (p *Pool[T]) run(t task[T]) (c Completion[T]) {
	c.Handle = t.handle
	defer func() {
		if r := recover(); r != nil {
			c.Err = fmt.Errorf("worker %d: panic: %v", t.handle.WorkerID, r)
		}
	}()
	c.Value, c.Err = t.fn(p.ctx, t.handle.Job, t.handle.WorkerID)
	return c
}

// Submit starts fn(job) on the given slot. It returns ErrShutdown without
// starting anything once the pool or its parent context is done.
func (p *Pool[T]) Submit(job *domain.Job, fn Func[T], workerID int) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.ctx.Err() != nil {
		return nil, ErrShutdown
	}
	if workerID < 0 || workerID >= len(p.inboxes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorker, workerID)
	}
	if p.states[workerID].Job != nil {
		return nil, fmt.Errorf("%w: %d", ErrWorkerBusy, workerID)
	}

	p.nextID++
	h := &Handle{id: p.nextID, WorkerID: workerID, Job: job}
	p.states[workerID].Job = job
	p.outstanding[h.id] = struct{}{}
	// An idle slot's inbox is empty.
	p.inboxes[workerID] <- task[T]{handle: h, fn: fn}
	return h, nil
}

// InFlight returns the number of submissions not yet collected.
func (p *Pool[T]) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding) + len(p.stash)
}

// receive takes one completion off the result channel and frees its slot.
func (p *Pool[T]) receive() Completion[T] {
	c := <-p.results
	p.mu.Lock()
	p.states[c.Handle.WorkerID].Job = nil
	delete(p.outstanding, c.Handle.id)
	p.mu.Unlock()
	return c
}

// Next blocks until any submission completes and returns it with its slot
// already freed. ok is false when nothing is in flight.
func (p *Pool[T]) Next() (c Completion[T], ok bool) {
	p.mu.Lock()
	if len(p.stash) > 0 {
		c = p.stash[0]
		p.stash = p.stash[1:]
		p.mu.Unlock()
		return c, true
	}
	idle := len(p.outstanding) == 0
	p.mu.Unlock()

	if idle {
		return c, false
	}
	return p.receive(), true
}

// Wait blocks until every handle has completed, calling onEach (if set)
// in completion order. Completions for other handles are kept for later
// Next or Wait calls. Handles that were already collected are ignored.
func (p *Pool[T]) Wait(handles []*Handle, onEach func(Completion[T])) CompletionResult[T] {
	var res CompletionResult[T]
	want := make(map[uint64]bool, len(handles))

	p.mu.Lock()
	for _, h := range handles {
		if h == nil {
			continue
		}
		if _, ok := p.outstanding[h.id]; ok {
			want[h.id] = true
		}
	}
	var ready []Completion[T]
	kept := p.stash[:0]
	for _, c := range p.stash {
		if wanted(handles, c.Handle) {
			ready = append(ready, c)
		} else {
			kept = append(kept, c)
		}
	}
	p.stash = kept
	p.mu.Unlock()

	collect := func(c Completion[T]) {
		delete(want, c.Handle.id)
		if onEach != nil {
			onEach(c)
		}
		if c.Err != nil {
			res.Errors = append(res.Errors, WorkerError{WorkerID: c.Handle.WorkerID, Err: c.Err})
			return
		}
		res.Results = append(res.Results, c)
	}

	for _, c := range ready {
		collect(c)
	}
	for len(want) > 0 {
		c := p.receive()
		if want[c.Handle.id] {
			collect(c)
			continue
		}
		p.mu.Lock()
		p.stash = append(p.stash, c)
		p.mu.Unlock()
	}
	return res
}

func wanted(handles []*Handle, h *Handle) bool {
	for _, w := range handles {
		if w != nil && w.id == h.id {
			return true
		}
	}
	return false
}

// Shutdown stops accepting submissions and cancels the context passed to
// running bodies. With wait it blocks until every worker has exited.
func (p *Pool[T]) Shutdown(wait bool) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cancel()
		for _, in := range p.inboxes {
			close(in)
		}
	}
	p.mu.Unlock()

	if wait {
		p.wg.Wait()
	}
}

// States returns a copy of every slot's state.
func (p *Pool[T]) States() []WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkerState, len(p.states))
	copy(out, p.states)
	return out
}

// ActiveWorkers returns the number of occupied slots.
func (p *Pool[T]) ActiveWorkers() int {
	n := 0
	for _, s := range p.States() {
		if !s.IsIdle() {
			n++
		}
	}
	return n
}

// IdleWorkers returns the number of free slots.
func (p *Pool[T]) IdleWorkers() int {
	return p.Size() - p.ActiveWorkers()
}
