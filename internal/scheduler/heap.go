package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Task represents a callback scheduled for future execution
type Task struct {
	ID       string
	ExpiryAt time.Time
	Callback func()
	index    int // index in the heap (for heap.Interface)
}

// taskHeap is a min-heap of Tasks ordered by ExpiryAt
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].ExpiryAt.Before(h[j].ExpiryAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	task := x.(*Task)
	task.index = n
	*h = append(*h, task)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil  // avoid memory leak
	task.index = -1 // for safety
	*h = old[0 : n-1]
	return task
}

// periodic is the registration behind Every. Pointer identity tells a live
// registration apart from one that was cancelled or replaced.
type periodic struct {
	interval time.Duration
	fn       func()
}

// Scheduler runs callbacks at their deadline. Each callback runs on its own
// goroutine; a periodic callback is rescheduled only after it returns, so
// runs of one periodic task never overlap.
type Scheduler struct {
	heap     taskHeap
	mu       sync.Mutex
	wakeup   chan struct{}
	tasks    map[string]*Task // for O(1) lookup by ID
	periodic map[string]*periodic
	started  bool
	stopped  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a scheduler. Call Start to begin running tasks.
func New() *Scheduler {
	s := &Scheduler{
		heap:     make(taskHeap, 0),
		wakeup:   make(chan struct{}, 1),
		tasks:    make(map[string]*Task),
		periodic: make(map[string]*periodic),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	heap.Init(&s.heap)
	return s
}

// Start starts the scheduling loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.run()
}

// Stop stops the scheduler. Pending tasks are discarded; callbacks already
// running are not waited for. Safe to call more than once, and from a callback.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

// Schedule adds a task to be executed at the specified time, replacing any
// task (one-shot or periodic) with the same ID
func (s *Scheduler) Schedule(id string, expiryAt time.Time, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	s.remove(id)
	s.push(&Task{ID: id, ExpiryAt: expiryAt, Callback: callback})
	return nil
}

// Every runs callback at a fixed cadence, first one interval from now.
// Deadlines advance from the previous deadline, not from when the callback
// finished; ticks missed by a slow callback are skipped.
func (s *Scheduler) Every(id string, interval time.Duration, callback func()) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	s.remove(id)
	p := &periodic{interval: interval, fn: callback}
	s.periodic[id] = p
	s.schedulePeriodic(id, p, time.Now().Add(interval))
	return nil
}

// Cancel removes a scheduled task. A periodic task already running finishes
// but is not rescheduled.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.remove(id)
}

// schedulePeriodic must be called with mu held.
func (s *Scheduler) schedulePeriodic(id string, p *periodic, deadline time.Time) {
	s.push(&Task{
		ID:       id,
		ExpiryAt: deadline,
		Callback: func() {
			p.fn()

			s.mu.Lock()
			defer s.mu.Unlock()
			if s.stopped || s.periodic[id] != p {
				return
			}

			next := deadline.Add(p.interval)
			for now := time.Now(); !next.After(now); {
				next = next.Add(p.interval)
			}
			s.schedulePeriodic(id, p, next)
		},
	})
}

// push must be called with mu held.
func (s *Scheduler) push(task *Task) {
	heap.Push(&s.heap, task)
	s.tasks[task.ID] = task

	// Wake up the loop if this is the earliest task
	if s.heap[0] == task {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
}

// remove must be called with mu held.
func (s *Scheduler) remove(id string) bool {
	_, wasPeriodic := s.periodic[id]
	delete(s.periodic, id)

	task, ok := s.tasks[id]
	if ok {
		heap.Remove(&s.heap, task.index)
		delete(s.tasks, id)
	}
	return ok || wasPeriodic
}

// run is the main scheduling loop
func (s *Scheduler) run() {
	defer close(s.done)

	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		var waitDuration time.Duration
		if s.heap.Len() == 0 {
			// No tasks, wait for a wakeup
			waitDuration = 24 * time.Hour
		} else {
			nextTask := s.heap[0]
			waitDuration = time.Until(nextTask.ExpiryAt)

			if waitDuration <= 0 {
				task := heap.Pop(&s.heap).(*Task)
				delete(s.tasks, task.ID)

				go task.Callback()

				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		ScheduledTasks: len(s.tasks),
		PeriodicTasks:  len(s.periodic),
	}
}

// Stats contains statistics about the scheduler
type Stats struct {
	ScheduledTasks int
	PeriodicTasks  int
}

var (
	ErrStopped         = &SchedulerError{"scheduler is stopped"}
	ErrInvalidInterval = &SchedulerError{"interval must be positive"}
)

// SchedulerError represents a scheduling error
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string {
	return e.msg
}
