package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/model"
	"signalmirror/src/repository"
)

type unclaimedSignalRepository interface {
	FindUnclaimedSince(ctx context.Context, since time.Time, limit int) ([]model.Signal, error)
}

type mirrorQueue interface {
	Enqueue(ctx context.Context, task *model.Task) error
	HasOpen(ctx context.Context, kind string, payload interface{}) (bool, error)
}

// Sweeper turns recent signals nobody claimed yet into mirror_signal tasks.
type Sweeper struct {
	logger      *logrus.Entry
	signals     unclaimedSignalRepository
	queue       mirrorQueue
	limit       int
	lookback    time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewSweeper(logger *logrus.Entry, db *gorm.DB, cfg Config) *Sweeper {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Sweeper{
		logger:      logger,
		signals:     repository.NewSignalRepository().WithDB(db),
		queue:       repository.NewTaskRepository().WithDB(db),
		limit:       cfg.SweepLimit,
		lookback:    cfg.SweepLookback,
		maxAttempts: cfg.MirrorMaxAttempts,
		now:         time.Now,
	}
}

// Sweep enqueues a mirror task per pending signal and returns how many it queued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	since := s.now().Add(-s.lookback)
	signals, err := s.signals.FindUnclaimedSince(ctx, since, s.limit)
	if err != nil {
		return 0, fmt.Errorf("find pending signals: %w", err)
	}

	queued := 0
	for _, signal := range signals {
		ok, err := s.Enqueue(ctx, signal.ID)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}

	if queued > 0 {
		s.logger.WithField("queued", queued).Info("Pending signals queued for mirroring")
	}
	return queued, nil
}

// Enqueue queues a mirror task for the signal unless one is already queued
// or running. It reports whether a task was added.
func (s *Sweeper) Enqueue(ctx context.Context, signalID uint) (bool, error) {
	payload := model.MirrorSignalPayload{SignalID: signalID}

	open, err := s.queue.HasOpen(ctx, model.TaskKindMirrorSignal, payload)
	if err != nil {
		return false, fmt.Errorf("check mirror task of signal %d: %w", signalID, err)
	}
	if open {
		s.logger.WithField("signal_id", signalID).Debug("Mirror task already pending")
		return false, nil
	}

	task, err := repository.NewTask(model.TaskKindMirrorSignal, payload, s.maxAttempts)
	if err != nil {
		return false, err
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return false, fmt.Errorf("enqueue mirror task of signal %d: %w", signalID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"signal_id": signalID,
		"task_id":   task.ID,
	}).Info("Mirror task queued")
	return true, nil
}
