package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/connectors"
	"signalmirror/src/model"
	"signalmirror/src/repository"
	"signalmirror/src/telemetry"
)

// ErrSignalNotFound is returned when a claimed signal vanished before fan-out.
var ErrSignalNotFound = errors.New("signal not found")

type mirrorStatusRepository interface {
	Claim(ctx context.Context, signalID uint) (*model.MirrorStatus, error)
	MarkCompletedTx(tx *gorm.DB, id uint) error
	MarkFailed(ctx context.Context, id uint) error
}

type signalRepository interface {
	FindByID(ctx context.Context, id uint) (*model.Signal, error)
}

type strategyRepository interface {
	FindActiveAccounts(ctx context.Context, strategyID uint) ([]model.TradingAccount, error)
}

type executionRepository interface {
	AccountIDsForSignal(ctx context.Context, signalID uint) ([]uint, error)
}

// MirrorController owns a signal (intake guard) and schedules one
// execute_account task per eligible follower account (fan-out).
type MirrorController struct {
	logger     *logrus.Entry
	db         *gorm.DB
	statuses   mirrorStatusRepository
	signals    signalRepository
	strategies strategyRepository
	executions executionRepository
	tasks      *repository.TaskRepository
	exceptions ExceptionRecorder
	metrics    *telemetry.Metrics

	executionMaxAttempts int
}

// NewMirrorController wires the controller on db. metrics may be nil.
func NewMirrorController(logger *logrus.Entry, db *gorm.DB, metrics *telemetry.Metrics, cfg Config) *MirrorController {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &MirrorController{
		logger:               logger,
		db:                   db,
		statuses:             repository.NewMirrorStatusRepository().WithDB(db),
		signals:              repository.NewSignalRepository().WithDB(db),
		strategies:           repository.NewStrategyRepository().WithDB(db),
		executions:           repository.NewExecutionRepository().WithDB(db),
		tasks:                repository.NewTaskRepository().WithDB(db),
		exceptions:           repository.NewExceptionRepository().WithDB(db),
		metrics:              metrics,
		executionMaxAttempts: cfg.ExecutionMaxAttempts,
	}
}

// HandleSignal claims the signal and fans it out. A signal owned by someone
// else is not an error. The execution tasks and the completed token commit
// in one transaction. A fan-out failure marks the claim failed and is
// returned so the task queue retries it; the next attempt re-claims the
// failed token.
func (c *MirrorController) HandleSignal(ctx context.Context, p model.MirrorSignalPayload) error {
	log := c.logger.WithField("signal_id", p.SignalID)

	token, err := c.statuses.Claim(ctx, p.SignalID)
	if err != nil {
		return fmt.Errorf("claim signal %d: %w", p.SignalID, err)
	}
	if token == nil {
		log.Info("Signal already owned or missing, nothing to mirror")
		return nil
	}
	c.metrics.SignalClaimed(ctx)
	log = log.WithField("attempt", token.Attempts)

	tasks, err := c.fanOut(ctx, log, p.SignalID)
	if err == nil {
		err = c.commit(ctx, token.ID, tasks)
	}
	if err != nil {
		if markErr := c.statuses.MarkFailed(context.WithoutCancel(ctx), token.ID); markErr != nil {
			log.WithError(markErr).Error("Failed to mark mirror status failed")
		}
		Capture(ctx, c.exceptions, "mirror_controller", "controller", "fanOut", "error", err,
			map[string]interface{}{"signal_id": p.SignalID, "attempt": token.Attempts})
		return err
	}

	log.WithField("scheduled", len(tasks)).Info("Signal mirrored")
	return nil
}

func (c *MirrorController) commit(ctx context.Context, tokenID uint, tasks []*model.Task) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, task := range tasks {
			if err := c.tasks.EnqueueTx(tx, task); err != nil {
				return err
			}
		}
		return c.statuses.MarkCompletedTx(tx, tokenID)
	})
	if err != nil {
		return fmt.Errorf("schedule executions: %w", err)
	}
	return nil
}

// fanOut resolves the execute_account tasks of the signal.
func (c *MirrorController) fanOut(ctx context.Context, log *logrus.Entry, signalID uint) ([]*model.Task, error) {
	signal, err := c.signals.FindByID(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("load signal %d: %w", signalID, err)
	}
	if signal == nil {
		return nil, fmt.Errorf("%w: %d", ErrSignalNotFound, signalID)
	}
	if signal.Strategy == nil {
		return nil, fmt.Errorf("strategy %d of signal %d not found", signal.StrategyID, signalID)
	}

	strategy := signal.Strategy
	venue := connectors.ExchangeOf(strategy.Exchange)
	log = log.WithFields(logrus.Fields{
		"strategy_id": strategy.ID,
		"exchange":    venue,
	})

	accounts, err := c.strategies.FindActiveAccounts(ctx, strategy.ID)
	if err != nil {
		return nil, fmt.Errorf("load accounts of strategy %d: %w", strategy.ID, err)
	}

	// accounts of an earlier, partly failed attempt
	done, err := c.executions.AccountIDsForSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("load executions of signal %d: %w", signalID, err)
	}
	executed := make(map[uint]bool, len(done))
	for _, id := range done {
		executed[id] = true
	}

	var tasks []*model.Task
	for _, account := range accounts {
		accountLog := log.WithField("account_id", account.ID)

		if accountVenue := connectors.ExchangeOf(account.Exchange); accountVenue != venue {
			accountLog.WithField("account_exchange", accountVenue).Warn("Account venue does not match strategy, skipped")
			continue
		}
		if executed[account.ID] {
			accountLog.Info("Account already executed for signal, skipped")
			continue
		}

		task, err := repository.NewTask(model.TaskKindExecuteAccount, model.ExecuteAccountPayload{
			AccountID:  account.ID,
			SignalID:   signalID,
			StrategyID: strategy.ID,
		}, c.executionMaxAttempts)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		log.Info("No eligible account for signal")
	}
	return tasks, nil
}
