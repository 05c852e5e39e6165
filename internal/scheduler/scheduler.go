// Package scheduler runs periodic workflow jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderSender is implemented by the requisition service.
type ReminderSender interface {
	SendApprovalReminders(ctx context.Context, after time.Duration) (int, error)
}

type Scheduler struct {
	cron      *cron.Cron
	reminders ReminderSender
	after     time.Duration
	logger    *zap.Logger
	mu        sync.Mutex
	running   bool
}

func New(reminders ReminderSender, after time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.Local)),
		reminders: reminders,
		after:     after,
		logger:    logger,
	}
}

// AddReminderJob registers the approval reminder job under a standard five-field spec.
func (s *Scheduler) AddReminderJob(spec string) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, s.RunReminders)
}

// RunReminders runs one reminder pass. Overlapping runs are skipped.
func (s *Scheduler) RunReminders() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Approval reminder run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sent, err := s.reminders.SendApprovalReminders(ctx, s.after)
	if err != nil {
		s.logger.Error("Approval reminder run failed", zap.Error(err))
		return
	}
	s.logger.Info("Approval reminders sent", zap.Int("notifications", sent))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
