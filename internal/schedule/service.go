// Package schedule runs one-shot reminders on an in-process cron.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/memohai/wabiz/internal/logger"
)

var (
	// ErrPast is returned for reminders whose time has already passed.
	ErrPast = errors.New("reminder time is in the past")
	// ErrInvalid is returned when the recipient or text is empty.
	ErrInvalid = errors.New("reminder recipient and text are required")
)

const notifyTimeout = 30 * time.Second

type job struct {
	entry    cron.EntryID
	reminder Reminder
}

// Service holds pending reminders. Jobs live in memory and are lost on restart.
type Service struct {
	cron     *cron.Cron
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	jobs map[string]job
}

// NewService starts the scheduler. A nil location means local time.
func NewService(log *slog.Logger, notifier Notifier, loc *time.Location) *Service {
	opts := []cron.Option{}
	if loc != nil {
		opts = append(opts, cron.WithLocation(loc))
	}
	c := cron.New(opts...)
	service := &Service{
		cron:     c,
		notifier: notifier,
		logger:   logger.OrDiscard(log).With(slog.String("service", "schedule")),
		now:      time.Now,
		jobs:     map[string]job{},
	}
	c.Start()
	return service
}

// Remind sends text to the recipient at the given time.
func (s *Service) Remind(at time.Time, to, text string) (Reminder, error) {
	to = strings.TrimSpace(to)
	if to == "" || strings.TrimSpace(text) == "" {
		return Reminder{}, ErrInvalid
	}
	if !at.After(s.now()) {
		return Reminder{}, ErrPast
	}
	reminder := Reminder{ID: uuid.NewString(), To: to, Text: text, At: at}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.cron.Schedule(once{at: at}, cron.FuncJob(func() { s.fire(reminder.ID) }))
	s.jobs[reminder.ID] = job{entry: entry, reminder: reminder}
	s.logger.Info("reminder scheduled", slog.String("id", reminder.ID), slog.String("to", to), slog.Time("at", at))
	return reminder, nil
}

// Cancel drops a pending reminder. It reports whether one was found.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, id)
	return true
}

// Pending returns the reminders that have not fired, soonest first.
func (s *Service) Pending() []Reminder {
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.reminder)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].At.Before(out[k].At) })
	return out
}

// Stop halts the scheduler and waits for running reminders to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) fire(id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
		s.cron.Remove(j.entry)
	}
	s.mu.Unlock()
	if !ok || s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, j.reminder.To, j.reminder.Text); err != nil {
		s.logger.Error("reminder failed", slog.String("id", id), slog.String("to", j.reminder.To), slog.Any("error", err))
		return
	}
	s.logger.Info("reminder sent", slog.String("id", id), slog.String("to", j.reminder.To))
}
