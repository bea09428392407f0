// Package coordinator runs background reconciliation of automatic habits.
//
// One Coordinator owns the sync loop of a writer process. Cycles never overlap:
// a refresh requested while a cycle runs is queued behind it, and any number of
// such requests collapse into one follow-up cycle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/julianstephens/streakline/internal/calendar"
	"github.com/julianstephens/streakline/internal/constants"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/metrics"
	"github.com/julianstephens/streakline/internal/models"
	"github.com/julianstephens/streakline/internal/source"
	"github.com/julianstephens/streakline/internal/storage"
	"github.com/julianstephens/streakline/internal/tracker"
	"github.com/julianstephens/streakline/internal/tracking"
)

// ErrRefreshThrottled is returned by Refresh when explicit refreshes arrive faster
// than the configured rate.
var ErrRefreshThrottled = errors.New("refresh throttled, try again shortly")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("coordinator closed")

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Concurrency  int
	// RefreshPerMinute and RefreshBurst bound explicit refresh requests.
	RefreshPerMinute int
	RefreshBurst     int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = constants.DefaultSyncInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = constants.DefaultFetchTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = constants.DefaultFetchConcurrency
	}
	if c.RefreshPerMinute <= 0 {
		c.RefreshPerMinute = constants.DefaultRefreshPerMinute
	}
	if c.RefreshBurst <= 0 {
		c.RefreshBurst = constants.DefaultRefreshBurst
	}
}

type Coordinator struct {
	store   storage.Provider
	tracker *tracker.Tracker
	src     source.Source
	cal     *calendar.Normalizer
	cfg     Config
	metrics *metrics.Sync
	limiter *rate.Limiter

	// cycleMu serializes cycles.
	cycleMu sync.Mutex
	lastDay string

	mu     sync.Mutex
	status Status
	subs   map[chan Transition]struct{}
	closed bool

	refresh chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a coordinator that reads automatic samples through the tracker's
// resolver. Without a source every automatic habit reports it as unavailable.
func New(store storage.Provider, tr *tracker.Tracker, cfg Config, m *metrics.Sync) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:   store,
		tracker: tr,
		src:     tr.Resolver().Source(),
		cal:     tr.Calendar(),
		cfg:     cfg,
		metrics: m,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RefreshPerMinute)), cfg.RefreshBurst),
		subs:    make(map[chan Transition]struct{}),
		refresh: make(chan struct{}, 1),
	}
}

// Start runs the sync loop until ctx is cancelled or Close is called. The first
// cycle runs immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
}

func (c *Coordinator) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	rollover := time.NewTimer(c.untilRollover())
	defer rollover.Stop()

	c.SyncOnce(ctx, TriggerTimer)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SyncOnce(ctx, TriggerTimer)
		case <-c.refresh:
			c.SyncOnce(ctx, TriggerRefresh)
		case <-rollover.C:
			c.SyncOnce(ctx, TriggerRollover)
			rollover.Reset(c.untilRollover())
		}
	}
}

func (c *Coordinator) untilRollover() time.Duration {
	now := c.cal.Now()
	// a second of slack so the timer lands inside the new day
	return c.cal.NextDayStart(now).Sub(now) + time.Second
}

// Refresh asks the loop for a cycle. Requests beyond the rate limit are rejected;
// requests made while one is already queued are merged into it.
func (c *Coordinator) Refresh() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !c.limiter.Allow() {
		return ErrRefreshThrottled
	}
	select {
	case c.refresh <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the loop after the in-flight cycle finishes and closes every
// subscription.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	c.mu.Unlock()
	return nil
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if st.LastReport != nil {
		r := *st.LastReport
		st.LastReport = &r
	}
	return st
}

// Subscribe returns a channel of state transitions and a function that ends the
// subscription. Slow subscribers miss transitions rather than stall the loop.
func (c *Coordinator) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 16)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

func (c *Coordinator) transition(to State, report *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.status.State
	c.status.State = to
	if report != nil {
		r := *report
		c.status.LastReport = &r
		c.status.Cycles++
		if to == StateCompleted {
			at := report.Finished
			c.status.LastSyncTime = &at
		}
	}
	t := Transition{From: from, To: to, Report: report}
	for ch := range c.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// SyncOnce runs one cycle and returns its report. A call made while another cycle
// is running waits for it to finish first.
func (c *Coordinator) SyncOnce(ctx context.Context, trigger Trigger) Report {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.transition(StateSyncing, nil)
	report := c.cycle(ctx, trigger)
	c.transition(report.State, &report)
	c.metrics.ObserveCycle(report.State.String(), report.Finished.Sub(report.Started), report.Finished)

	switch {
	case report.State == StateFailed:
		logger.Error("Sync cycle failed", "trigger", trigger, "habits", report.Habits, "failures", len(report.Failures))
	case report.Partial():
		logger.Warn("Sync cycle completed with failures", "trigger", trigger, "habits", report.Habits, "failures", len(report.Failures))
	default:
		logger.Debug("Sync cycle completed", "trigger", trigger, "habits", report.Habits,
			"created", report.Created, "updated", report.Updated)
	}

	c.transition(StateIdle, nil)
	return report
}

// cycleDays returns the days to reconcile: today, plus the previous day when the
// calendar moved on since the last cycle so its final aggregate is captured.
func (c *Coordinator) cycleDays() []string {
	today := c.cal.Today()
	days := []string{today}
	if c.lastDay != "" && c.lastDay < today {
		if yesterday, err := calendar.AddDays(today, -1); err == nil {
			days = []string{yesterday, today}
		}
	}
	return days
}

type habitResult struct {
	created, updated, skipped int
	err                       error
}

func (c *Coordinator) cycle(ctx context.Context, trigger Trigger) Report {
	report := Report{Trigger: trigger, Started: c.cal.Now(), Days: c.cycleDays()}
	finish := func(state State) Report {
		report.State = state
		report.Finished = c.cal.Now()
		return report
	}

	habits, err := c.store.GetAllHabits(ctx, false, false)
	if err != nil {
		report.Failures = map[string]string{"*": err.Error()}
		return finish(StateFailed)
	}
	var auto []models.Habit
	for _, h := range habits {
		if h.IsAutomatic() {
			auto = append(auto, h)
		}
	}
	report.Habits = len(auto)

	results := make([]habitResult, len(auto))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, h := range auto {
		i, h := i, h
		g.Go(func() error {
			results[i] = c.syncHabit(ctx, h, report.Days)
			return nil
		})
	}
	_ = g.Wait()

	// Streaks are derived only once every habit's entries for the cycle are in.
	for i, h := range auto {
		if _, err := c.tracker.RecomputeStreak(ctx, h.ID); err != nil && results[i].err == nil {
			results[i].err = fmt.Errorf("recompute streak: %w", err)
		}
	}

	failed := 0
	for i, r := range results {
		report.Created += r.created
		report.Updated += r.updated
		report.Skipped += r.skipped
		if r.err != nil {
			failed++
			if report.Failures == nil {
				report.Failures = make(map[string]string)
			}
			report.Failures[auto[i].ID] = r.err.Error()
			c.metrics.HabitFailed(auto[i].Name)
			logger.Warn("Habit sync failed", "habit_id", auto[i].ID, "habit", auto[i].Name, "error", r.err)
		}
	}
	c.lastDay = report.Days[len(report.Days)-1]

	if len(auto) > 0 && failed == len(auto) {
		return finish(StateFailed)
	}
	return finish(StateCompleted)
}

// syncHabit fetches and reconciles one habit. Each day is written in its own
// transaction, so a failure never leaves an entry half-written.
func (c *Coordinator) syncHabit(ctx context.Context, h models.Habit, days []string) habitResult {
	var res habitResult
	resolution := c.tracker.Resolver().Resolve(ctx, h)
	if resolution.Mode != tracking.ModeAutomatic {
		res.err = resolution.Reason
		if res.err == nil {
			res.err = apperrors.ErrSourceUnavailable
		}
		return res
	}

	for _, day := range days {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
		value, err := c.src.DailyAggregate(fctx, h.Metric, day)
		cancel()
		if err != nil {
			res.err = fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
			return res
		}
		action, err := c.tracker.Reconcile(ctx, h.ID, day, value)
		if err != nil {
			res.err = err
			return res
		}
		c.metrics.ReconcileAction(action.String())
		switch action {
		case tracking.ActionCreate:
			res.created++
		case tracking.ActionUpdate:
			res.updated++
		default:
			res.skipped++
		}
	}
	return res
}
