package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/connectors"
	"signalmirror/src/controller"
	"signalmirror/src/model"
	"signalmirror/src/repository"
	"signalmirror/src/telemetry"
)

type accountFinder interface {
	FindByID(ctx context.Context, id uint) (*model.TradingAccount, error)
}

type signalFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Signal, error)
}

type executionStore interface {
	CreatePending(ctx context.Context, exec *model.Execution) (bool, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
}

type positionStore interface {
	FindByAccountSymbol(ctx context.Context, accountID uint, symbol string) (*model.Position, error)
	Upsert(ctx context.Context, pos *model.Position, prev *model.Position) error
	Close(ctx context.Context, accountID uint, symbol string, prev *model.Position) error
}

// Deps are the collaborators of an Executor. Pricer is optional and enables
// the protective price check; Metrics and Exceptions may be nil.
type Deps struct {
	Accounts   accountFinder
	Signals    signalFinder
	Executions executionStore
	Positions  positionStore
	Exceptions controller.ExceptionRecorder
	Gateways   connectors.GatewayOpener
	Pricer     connectors.ReferencePricer
	Metrics    *telemetry.Metrics
}

// NewDeps wires the repositories on db.
func NewDeps(db *gorm.DB, gateways connectors.GatewayOpener, pricer connectors.ReferencePricer, metrics *telemetry.Metrics) Deps {
	return Deps{
		Accounts:   repository.NewAccountRepository().WithDB(db),
		Signals:    repository.NewSignalRepository().WithDB(db),
		Executions: repository.NewExecutionRepository().WithDB(db),
		Positions:  repository.NewPositionRepository().WithDB(db),
		Exceptions: repository.NewExceptionRepository().WithDB(db),
		Gateways:   gateways,
		Pricer:     pricer,
		Metrics:    metrics,
	}
}

// Executor runs one (account, signal) execution and records it.
type Executor struct {
	logger *logrus.Entry
	deps   Deps
	now    func() time.Time
}

func NewExecutor(logger *logrus.Entry, deps Deps) *Executor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Executor{logger: logger, deps: deps, now: time.Now}
}

// Run executes the signal on the account. Workflow failures end up in the
// Execution row and are not returned; only infrastructure errors (loading the
// inputs, writing the ledger) are, so the task queue can retry them.
func (e *Executor) Run(ctx context.Context, p model.ExecuteAccountPayload) error {
	log := e.logger.WithFields(logrus.Fields{
		"signal_id":   p.SignalID,
		"account_id":  p.AccountID,
		"strategy_id": p.StrategyID,
	})

	account, err := e.deps.Accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		return fmt.Errorf("load account %d: %w", p.AccountID, err)
	}
	if account == nil {
		log.Warn("Account not found, execution skipped")
		return nil
	}

	signal, err := e.deps.Signals.FindByID(ctx, p.SignalID)
	if err != nil {
		return fmt.Errorf("load signal %d: %w", p.SignalID, err)
	}
	if signal == nil {
		log.Warn("Signal not found, execution skipped")
		return nil
	}

	pair := ""
	if signal.Strategy != nil {
		pair = signal.Strategy.Pair
	}
	in := NewInput(signal, account.ID, connectors.NormalizeSymbol(pair))
	if p.StrategyID != 0 {
		in.StrategyID = p.StrategyID
	}
	log = log.WithFields(logrus.Fields{
		"symbol": in.Symbol,
		"type":   in.Type,
		"side":   in.Side,
		"market": in.Market,
	})

	exec := &model.Execution{
		SignalID:       in.SignalID,
		StrategyID:     in.StrategyID,
		AccountID:      in.AccountID,
		Symbol:         in.Symbol,
		Side:           in.Side,
		Type:           in.Type,
		MarketType:     string(in.Market),
		MasterQuantity: in.MasterQty,
		Leverage:       in.Leverage,
	}
	created, err := e.deps.Executions.CreatePending(ctx, exec)
	if err != nil {
		return fmt.Errorf("create pending execution: %w", err)
	}
	if !created {
		log.Info("Execution already recorded for signal and account, skipping")
		return nil
	}
	log = log.WithField("execution_id", exec.ID)

	// once the Pending row exists the order goes through to a terminal
	// state; each venue call is bounded by the gateway timeout
	ctx = context.WithoutCancel(ctx)

	var outcome Outcome
	prev, err := e.deps.Positions.FindByAccountSymbol(ctx, in.AccountID, in.Symbol)
	if err != nil {
		outcome = fail(fmt.Sprintf("load position: %v", err))
	} else {
		outcome = e.execute(ctx, log, account, in, activeOnly(prev))
	}

	return e.persist(ctx, log, exec, in, prev, outcome)
}

func activeOnly(pos *model.Position) *model.Position {
	if pos == nil || pos.Status != model.PositionStatusActive {
		return nil
	}
	return pos
}

// execute never panics and never returns an error: whatever goes wrong
// becomes a Failure.
func (e *Executor) execute(
	ctx context.Context,
	log *logrus.Entry,
	account *model.TradingAccount,
	in Input,
	open *model.Position,
) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Execution workflow panicked")
			outcome = fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	gw, err := e.deps.Gateways.Open(account, in.SignalID)
	if err != nil {
		return fail(err.Error())
	}

	log.Info("Executing signal on account")
	return workflowFor(in.Market).Execute(ctx, &run{
		in:     in,
		open:   open,
		pricer: e.deps.Pricer,
		log:    log,
	}, gw)
}

func (e *Executor) persist(
	ctx context.Context,
	log *logrus.Entry,
	exec *model.Execution,
	in Input,
	prev *model.Position,
	outcome Outcome,
) error {
	var status string
	switch o := outcome.(type) {
	case Success:
		status = model.ExecutionStatusSuccess
		now := e.now()
		updates := map[string]interface{}{
			"status":            status,
			"follower_quantity": o.Quantity,
			"executed_price":    o.Price,
			"executed_at":       &now,
			"protection_status": o.Protection.Status,
		}
		if msg := o.Protection.Error(); msg != "" {
			trimmed := truncate(msg, model.ErrorMessageMaxLen)
			updates["protection_error"] = &trimmed
		}

		applied, err := e.update(ctx, log, exec.ID, updates)
		if err != nil || !applied {
			return err
		}
		log.WithFields(logrus.Fields{
			"quantity":   o.Quantity.String(),
			"price":      o.Price.String(),
			"protection": o.Protection.Status,
		}).Info("Execution succeeded")

		if err := e.writePosition(ctx, in, prev, o); err != nil {
			if !errors.Is(err, repository.ErrPositionConflict) {
				return fmt.Errorf("write position: %w", err)
			}
			e.capture(ctx, "writePosition", "warn", err, in)
		}

		if o.Protection.degraded() {
			e.capture(ctx, "protect", "error",
				fmt.Errorf("protective orders %s: %s", o.Protection.Status, o.Protection.Error()), in)
		}

	case Failure:
		status = model.ExecutionStatusFailed
		reason := truncate(o.Reason, model.ErrorMessageMaxLen)
		applied, err := e.update(ctx, log, exec.ID, map[string]interface{}{
			"status":        status,
			"error_message": &reason,
		})
		if err != nil || !applied {
			return err
		}
		log.WithField("reason", o.Reason).Warn("Execution failed")
	}

	e.deps.Metrics.ExecutionFinished(ctx, status, in.Type, string(in.Market))
	return nil
}

// update reports false when the execution was already terminal.
func (e *Executor) update(ctx context.Context, log *logrus.Entry, id uint, updates map[string]interface{}) (bool, error) {
	err := e.deps.Executions.Update(ctx, id, updates)
	if errors.Is(err, repository.ErrExecutionTerminal) {
		log.Warn("Execution already terminal, outcome dropped")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update execution %d: %w", id, err)
	}
	return true, nil
}

func (e *Executor) writePosition(ctx context.Context, in Input, prev *model.Position, o Success) error {
	if in.Type == model.ExecutionTypeEntry {
		return e.deps.Positions.Upsert(ctx, &model.Position{
			StrategyID: in.StrategyID,
			AccountID:  in.AccountID,
			Symbol:     in.Symbol,
			Side:       in.Side,
			Quantity:   o.Quantity,
			EntryPrice: o.Price,
			Leverage:   in.Leverage,
		}, prev)
	}

	if activeOnly(prev) == nil {
		return nil
	}
	return e.deps.Positions.Close(ctx, in.AccountID, in.Symbol, prev)
}

func (e *Executor) capture(ctx context.Context, method, level string, err error, in Input) {
	controller.Capture(ctx, e.deps.Exceptions, "execution_engine", "execution", method, level, err,
		map[string]interface{}{
			"signal_id":  in.SignalID,
			"account_id": in.AccountID,
			"symbol":     in.Symbol,
			"type":       in.Type,
		})
}
