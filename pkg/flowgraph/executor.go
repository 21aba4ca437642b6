package flowgraph

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
)

// Executor runs submitted tasks asynchronously.
// Submit must not block on task execution.
type Executor interface {
	Submit(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

// Submit implements Executor.
func (f ExecutorFunc) Submit(task func()) {
	f(task)
}

// GoExecutor runs every task on its own goroutine.
type GoExecutor struct{}

// Submit implements Executor.
func (GoExecutor) Submit(task func()) {
	go task()
}

// Pool is a fixed set of workers draining an unbounded FIFO queue.
// Submit never blocks, so coordination work can always hand off to
// operations and back without deadlocking on capacity.
type Pool struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	wg sync.WaitGroup
}

// NewPool starts a pool with the given number of workers (minimum 1).
func NewPool(name string, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{name: name, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit enqueues task. After Close, tasks run on their own goroutine so
// late completions of in-flight runs are still delivered.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		go p.run(task)
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the workers after the queue drains and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("executor task panicked",
				slog.String("pool", p.name),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// strand serializes tasks for one run on top of a shared executor.
// At most one drain is scheduled at a time, so tasks never overlap and run
// in submission order.
type strand struct {
	exec Executor

	mu      sync.Mutex
	queue   []func()
	running bool

	// owner is the goroutine running drain, or 0.
	owner atomic.Uint64
}

func newStrand(exec Executor) *strand {
	return &strand{exec: exec}
}

func (s *strand) submit(task func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.exec.Submit(s.drain)
}

func (s *strand) drain() {
	s.owner.Store(goid())
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.owner.Store(0)
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// draining reports whether the calling goroutine is the one draining this
// strand.
func (s *strand) draining() bool {
	owner := s.owner.Load()
	return owner != 0 && owner == goid()
}

// goid returns the calling goroutine's id as printed in its stack header.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
