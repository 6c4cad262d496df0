package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"autotraderv1/internal/markethours"
)

func TestIntervalTriggerNext(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, markethours.CST) // Monday, session open
	it := IntervalTrigger{Every: 5 * time.Minute}
	if got := it.Next(base); !got.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("Next = %v, want +5m", got)
	}
}

func TestIntervalTriggerMarketHoursOnly(t *testing.T) {
	cal := markethours.Default()
	it := IntervalTrigger{Every: time.Hour, MarketHoursOnly: true, Calendar: cal}

	// 14:30 + 1h lands after the close; fire time is pushed to the next
	// session open.
	base := time.Date(2026, 8, 24, 14, 30, 0, 0, markethours.CST)
	got := it.Next(base)
	want := time.Date(2026, 8, 25, 9, 30, 0, 0, markethours.CST)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want pushed to %v", got, want)
	}

	// Inside the session the interval is honored as-is.
	base = time.Date(2026, 8, 24, 9, 35, 0, 0, markethours.CST)
	if got := it.Next(base); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("Next = %v, want +1h inside session", got)
	}
}

func TestDailyTriggerNext(t *testing.T) {
	loc := markethours.CST
	dt := DailyTrigger{Hour: 15, Minute: 30, Loc: loc}

	before := time.Date(2026, 8, 24, 10, 0, 0, 0, loc)
	if got := dt.Next(before); !got.Equal(time.Date(2026, 8, 24, 15, 30, 0, 0, loc)) {
		t.Errorf("Next before fire time = %v, want today 15:30", got)
	}

	after := time.Date(2026, 8, 24, 16, 0, 0, 0, loc)
	if got := dt.Next(after); !got.Equal(time.Date(2026, 8, 25, 15, 30, 0, 0, loc)) {
		t.Errorf("Next after fire time = %v, want tomorrow 15:30", got)
	}

	// Exactly at the fire time rolls to the next day.
	at := time.Date(2026, 8, 24, 15, 30, 0, 0, loc)
	if got := dt.Next(at); !got.Equal(time.Date(2026, 8, 25, 15, 30, 0, 0, loc)) {
		t.Errorf("Next at fire time = %v, want tomorrow", got)
	}
}

func TestDailyTriggerWeekday(t *testing.T) {
	loc := markethours.CST
	fri := time.Friday
	dt := DailyTrigger{Hour: 15, Minute: 0, Weekday: &fri, Loc: loc}

	// From Monday the next Friday 15:00 is four days out.
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, loc)
	got := dt.Next(base)
	if got.Weekday() != time.Friday || got.Day() != 28 {
		t.Errorf("Next = %v, want Friday the 28th", got)
	}
}

func TestAddReplacesExistingTask(t *testing.T) {
	s := New(markethours.Default())
	s.Add("job", func() {}, IntervalTrigger{Every: time.Minute})
	s.Add("job", func() {}, IntervalTrigger{Every: time.Hour})

	if n := s.TaskCount(); n != 1 {
		t.Fatalf("TaskCount = %d, want 1 after replacement", n)
	}
	info := s.Tasks()[0]
	if info.Description != "every 1h0m0s" {
		t.Errorf("description = %q, want the replacement trigger", info.Description)
	}
}

func TestPauseResumeRemove(t *testing.T) {
	s := New(markethours.Default())
	s.Add("job", func() {}, IntervalTrigger{Every: time.Minute})

	s.Pause("job")
	s.Pause("job") // idempotent
	if !s.Tasks()[0].Paused {
		t.Error("task not paused")
	}

	s.Resume("job")
	s.Resume("job")
	if s.Tasks()[0].Paused {
		t.Error("task still paused after resume")
	}

	s.Remove("job")
	s.Remove("job")
	s.Pause("missing") // unknown names are ignored
	if n := s.TaskCount(); n != 0 {
		t.Errorf("TaskCount = %d, want 0 after remove", n)
	}
}

func TestSchedulerFiresDueTasks(t *testing.T) {
	s := New(markethours.Default())
	s.tick = 10 * time.Millisecond

	var runs int64
	s.Add("fast", func() { atomic.AddInt64(&runs, 1) }, IntervalTrigger{Every: 20 * time.Millisecond})

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&runs) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt64(&runs) < 2 {
		t.Fatalf("task ran %d times, want at least 2", runs)
	}
}

func TestPausedTaskDoesNotFire(t *testing.T) {
	s := New(markethours.Default())
	s.tick = 10 * time.Millisecond

	var runs int64
	s.Add("paused", func() { atomic.AddInt64(&runs, 1) }, IntervalTrigger{Every: 20 * time.Millisecond})
	s.Pause("paused")

	s.Start()
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt64(&runs); n != 0 {
		t.Errorf("paused task ran %d times", n)
	}
}

func TestTaskPanicDoesNotKillScheduler(t *testing.T) {
	s := New(markethours.Default())
	s.tick = 10 * time.Millisecond

	var runs int64
	s.Add("bad", func() { panic("boom") }, IntervalTrigger{Every: 20 * time.Millisecond})
	s.Add("good", func() { atomic.AddInt64(&runs, 1) }, IntervalTrigger{Every: 20 * time.Millisecond})

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&runs) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt64(&runs) < 2 {
		t.Fatal("scheduler stopped firing after a task panic")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := New(markethours.Default())
	s.Start()
	s.Start() // no-op
	s.Stop()
	s.Stop() // no-op
}

func TestRunCountersAdvance(t *testing.T) {
	s := New(markethours.Default())
	s.tick = 10 * time.Millisecond
	s.Add("job", func() {}, IntervalTrigger{Every: 20 * time.Millisecond})

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info := s.Tasks()[0]; info.Runs >= 1 && !info.LastRun.IsZero() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run counters never advanced")
}
