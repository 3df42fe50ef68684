package compose

import "sync"

// Scheduler decides where dispatch frames and future adoptions run.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc adapts an ordinary function to a Scheduler.
type SchedulerFunc func(task func())

// Schedule calls f(task).
func (f SchedulerFunc) Schedule(task func()) {
	f(task)
}

type inline struct{}

func (inline) Schedule(task func()) { task() }

// Inline returns the default scheduler. Tasks run immediately on the calling
// goroutine, so next() recurses one frame per unit and units may block on Wait.
func Inline() Scheduler {
	return inline{}
}

type goroutines struct{}

func (goroutines) Schedule(task func()) { go task() }

// Goroutines returns a scheduler that runs every task on a new goroutine.
func Goroutines() Scheduler {
	return goroutines{}
}

// Loop is a single-threaded event loop with an unbounded FIFO task queue.
//
// Dispatching on a Loop never grows the call stack with the length of the
// middleware stack: next() enqueues the following frame and returns a pending
// future. Units running on a Loop must not block on Future.Wait; they should
// chain post-processing with Then instead.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewLoop starts an event loop. Call Close to stop it.
func NewLoop() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Schedule enqueues task. Tasks scheduled after Close run inline.
func (l *Loop) Schedule(task func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		task()
		return
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	l.mu.Unlock()
}

// Close drains the queue and stops the loop. It must not be called from a task
// running on the loop.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Signal()
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
