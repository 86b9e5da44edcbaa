// Package scheduler fires stored notifications on their cron rules.
//
// Every notification owns one job keyed "notification-<id>". Once schedules
// become a "m h dom mon *" rule in the station timezone and Weekly schedules a
// "m h * * d1,d2" rule. Jobs run on their own goroutines.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/notification"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
)

// Handler runs when a notification fires.
type Handler interface {
	Handle(ctx context.Context, n *notification.Notification)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, n *notification.Notification)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, n *notification.Notification) { f(ctx, n) }

// Store is the part of the notification store the scheduler reads on start.
type Store interface {
	FindAll(ctx context.Context) ([]*notification.Notification, error)
}

// Config configures a Scheduler.
type Config struct {
	Store    Store
	Location *time.Location
	Logger   zerolog.Logger
	Metrics  *telemetry.Metrics

	// Now is used to warn about past-due once schedules. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler keeps one cron job per notification.
type Scheduler struct {
	store   Store
	loc     *time.Location
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	cron    *cron.Cron

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu      sync.Mutex
	handler Handler
	jobs    map[string]cron.EntryID
}

// New creates a scheduler. It does not fire anything until Start.
func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger.With().Str("component", "scheduler").Logger()
	cronLogger := Logger(logger)

	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   cfg.Store,
		loc:     cfg.Location,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		runCtx:    runCtx,
		cancelRun: cancel,
		jobs:      make(map[string]cron.EntryID),
	}
}

// SetHandler sets the handler fired jobs call. Jobs fired without a handler
// are logged and dropped.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Key returns the job key of a notification.
func Key(id int64) string {
	return "notification-" + strconv.FormatInt(id, 10)
}

// Rule builds the five-field cron rule of a notification in loc.
func Rule(n *notification.Notification, loc *time.Location) (string, error) {
	switch sched := n.Schedule.(type) {
	case notification.Once:
		if err := sched.Validate(); err != nil {
			return "", err
		}
		d := sched.Date.In(loc)
		return fmt.Sprintf("%d %d %d %d *", d.Minute(), d.Hour(), d.Day(), int(d.Month())), nil
	case notification.Weekly:
		if err := sched.Validate(); err != nil {
			return "", err
		}
		hour, minute, _ := sched.Clock()
		w := sched.Normalized()
		days := make([]string, len(w.Days))
		for i, d := range w.Days {
			days[i] = strconv.Itoa(d)
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(days, ",")), nil
	case nil:
		return "", fmt.Errorf("%w: notification %d has no schedule", notification.ErrInvalidSchedule, n.ID)
	default:
		return "", fmt.Errorf("%w: unsupported schedule %T", notification.ErrInvalidSchedule, sched)
	}
}

// Start schedules every stored notification and starts firing. A record that
// cannot be scheduled is logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	all, err := s.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}

	scheduled := 0
	for _, n := range all {
		if err := s.Add(ctx, n); err != nil {
			s.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("skipping notification that cannot be scheduled")
			continue
		}
		scheduled++
	}

	s.cron.Start()
	s.logger.Info().Int("scheduled", scheduled).Int("stored", len(all)).Msg("scheduler started")
	return nil
}

// Add schedules a notification, replacing any job it already has.
func (s *Scheduler) Add(_ context.Context, n *notification.Notification) error {
	rule, err := Rule(n, s.loc)
	if err != nil {
		return err
	}
	schedule, err := cron.ParseStandard(rule)
	if err != nil {
		return fmt.Errorf("%w: rule %q: %v", notification.ErrInvalidSchedule, rule, err)
	}

	if once, ok := n.Schedule.(notification.Once); ok && once.Date.Before(s.now()) {
		s.logger.Warn().
			Int64("notification_id", n.ID).
			Time("date", once.Date).
			Msg("once notification is past due and will fire on the next calendar match")
	}

	job := *n
	key := Key(n.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	if id, ok := s.jobs[key]; ok {
		s.cron.Remove(id)
		replaced = true
	}
	s.jobs[key] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(&job) }))
	if !replaced {
		s.metrics.RecordScheduledJobs(1)
	}

	s.logger.Debug().Str("key", key).Str("rule", rule).Msg("notification scheduled")
	return nil
}

// Remove cancels the job of a notification. Removing an unscheduled
// notification does nothing.
func (s *Scheduler) Remove(_ context.Context, n *notification.Notification) error {
	s.RemoveByID(n.ID)
	return nil
}

// RemoveByID cancels the job of a notification id.
func (s *Scheduler) RemoveByID(id int64) {
	key := Key(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[key]
	if !ok {
		return
	}
	s.cron.Remove(entry)
	delete(s.jobs, key)
	s.metrics.RecordScheduledJobs(-1)
	s.logger.Debug().Str("key", key).Msg("notification unscheduled")
}

// Stop cancels all jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancelRun()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, id := range s.jobs {
		s.cron.Remove(id)
		delete(s.jobs, key)
		s.metrics.RecordScheduledJobs(-1)
	}
	s.logger.Info().Msg("scheduler stopped")
}

// Scheduled reports whether a notification id has a job.
func (s *Scheduler) Scheduled(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[Key(id)]
	return ok
}

// Keys returns the keys of all scheduled jobs, sorted.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.jobs))
	for k := range s.jobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// NextFireTime returns when a notification would next fire after the given instant.
func (s *Scheduler) NextFireTime(n *notification.Notification, after time.Time) (time.Time, error) {
	rule, err := Rule(n, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cron.ParseStandard(rule)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: rule %q: %v", notification.ErrInvalidSchedule, rule, err)
	}
	return schedule.Next(after.In(s.loc)), nil
}

func (s *Scheduler) fire(n *notification.Notification) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		s.logger.Warn().Int64("notification_id", n.ID).Msg("notification fired without a handler")
		return
	}
	h.Handle(s.runCtx, n)
}
