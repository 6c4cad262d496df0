// Package scheduler maps named recurring tasks onto a trading-calendar
// aware timer. Tasks fire on interval or daily HH:MM triggers; callbacks
// run fire-and-forget on their own goroutine with panics recovered, so a
// long or broken task never delays the timer.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"autotraderv1/internal/markethours"
)

// Task is a scheduled callback. Tasks must not block indefinitely.
type Task func()

// Trigger computes when a task fires next.
type Trigger interface {
	// Next returns the first fire time strictly after t.
	Next(t time.Time) time.Time
	// Description is a human-readable summary for logs and status.
	Description() string
}

// IntervalTrigger fires every Every. With MarketHoursOnly set, fire times
// falling outside the trading session are pushed to the next open.
type IntervalTrigger struct {
	Every           time.Duration
	MarketHoursOnly bool
	Calendar        *markethours.Calendar // required when MarketHoursOnly
}

func (it IntervalTrigger) Next(t time.Time) time.Time {
	next := t.Add(it.Every)
	if it.MarketHoursOnly && it.Calendar != nil && !it.Calendar.IsOpen(next) {
		return it.Calendar.NextOpen(next)
	}
	return next
}

func (it IntervalTrigger) Description() string {
	if it.MarketHoursOnly {
		return fmt.Sprintf("every %s during market hours", it.Every)
	}
	return fmt.Sprintf("every %s", it.Every)
}

// DailyTrigger fires at Hour:Minute in Loc every day, or only on Weekday
// when set.
type DailyTrigger struct {
	Hour, Minute int
	Weekday      *time.Weekday
	Loc          *time.Location
}

func (dt DailyTrigger) Next(t time.Time) time.Time {
	loc := dt.Loc
	if loc == nil {
		loc = markethours.CST
	}
	lt := t.In(loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), dt.Hour, dt.Minute, 0, 0, loc)
	if !next.After(lt) {
		next = next.AddDate(0, 0, 1)
	}
	if dt.Weekday != nil {
		for next.Weekday() != *dt.Weekday {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

func (dt DailyTrigger) Description() string {
	if dt.Weekday != nil {
		return fmt.Sprintf("%s at %02d:%02d", dt.Weekday, dt.Hour, dt.Minute)
	}
	return fmt.Sprintf("daily at %02d:%02d", dt.Hour, dt.Minute)
}

type task struct {
	name    string
	fn      Task
	trigger Trigger
	paused  bool
	next    time.Time
	lastRun time.Time
	runs    int64
}

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Paused      bool      `json:"paused"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitempty"`
	Runs        int64     `json:"runs"`
}

// Scheduler owns the task registry and the timer loop.
type Scheduler struct {
	mu      sync.Mutex
	cal     *markethours.Calendar
	tasks   map[string]*task
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// tick is the timer resolution; tests shrink it.
	tick time.Duration
}

// New creates a stopped scheduler bound to a trading calendar.
func New(cal *markethours.Calendar) *Scheduler {
	return &Scheduler{
		cal:   cal,
		tasks: make(map[string]*task),
		tick:  time.Second,
	}
}

// Calendar returns the scheduler's trading calendar.
func (s *Scheduler) Calendar() *markethours.Calendar { return s.cal }

// IsMarketOpen reports whether the trading session is open at t.
func (s *Scheduler) IsMarketOpen(t time.Time) bool { return s.cal.IsOpen(t) }

// Add registers a task. Re-registering an existing name atomically
// replaces the previous task, so no duplicate timers can accumulate.
func (s *Scheduler) Add(name string, fn Task, trigger Trigger) {
	now := time.Now()
	s.mu.Lock()
	s.tasks[name] = &task{
		name:    name,
		fn:      fn,
		trigger: trigger,
		next:    trigger.Next(now),
	}
	s.mu.Unlock()
	log.Printf("[scheduler] task %q registered: %s", name, trigger.Description())
}

// Pause disables a task without removing it. Idempotent.
func (s *Scheduler) Pause(name string) {
	s.mu.Lock()
	if t, ok := s.tasks[name]; ok {
		t.paused = true
	}
	s.mu.Unlock()
}

// Resume re-enables a paused task and reschedules it from now. Idempotent.
func (s *Scheduler) Resume(name string) {
	s.mu.Lock()
	if t, ok := s.tasks[name]; ok && t.paused {
		t.paused = false
		t.next = t.trigger.Next(time.Now())
	}
	s.mu.Unlock()
}

// Remove unregisters a task. Idempotent.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	delete(s.tasks, name)
	s.mu.Unlock()
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tasks returns a snapshot of all registered tasks, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskInfo{
			Name:        t.name,
			Description: t.trigger.Description(),
			Paused:      t.paused,
			NextRun:     t.next,
			LastRun:     t.lastRun,
			Runs:        t.runs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the timer loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Printf("[scheduler] already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	log.Printf("[scheduler] started with %d tasks", s.TaskCount())
}

// Stop signals the timer loop and waits for it to exit. Safe to call from
// a different goroutine than Start, and idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.Printf("[scheduler] stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, due := range s.collectDue(now) {
				go s.safeRun(due)
			}
		}
	}
}

// collectDue advances the next fire time of every due task and returns
// them for dispatch, all under one lock acquisition.
func (s *Scheduler) collectDue(now time.Time) []*task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task
	for _, t := range s.tasks {
		if t.paused || now.Before(t.next) {
			continue
		}
		t.next = t.trigger.Next(now)
		t.lastRun = now
		t.runs++
		due = append(due, t)
	}
	return due
}

func (s *Scheduler) safeRun(t *task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] task %q panicked: %v", t.name, r)
		}
	}()
	t.fn()
}
