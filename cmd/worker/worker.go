package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/connectors"
	"signalmirror/src/controller"
	"signalmirror/src/database"
	"signalmirror/src/execution"
	"signalmirror/src/executors"
	"signalmirror/src/repository"
	"signalmirror/src/security"
	"signalmirror/src/telemetry"
)

// Worker runs the queue workers, the stale task janitor and the sweeper.
type Worker struct {
	Log *logrus.Entry
}

func (t *Worker) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		t.Log.WithError(err).Error("Failed to connect to main database")
		return err
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.GetConfig())
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Log.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	metrics, err := telemetry.NewMetrics(provider.Meter("signalmirror"))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pool, err := NewPool(t.Log, database.MainDB, metrics)
	if err != nil {
		return err
	}

	t.Log.Info("Starting signal mirror worker")
	return pool.StartLoop(ctx)
}

// NewPool wires the whole pipeline on db.
func NewPool(log *logrus.Entry, db *gorm.DB, metrics *telemetry.Metrics) (*executors.Pool, error) {
	if _, err := security.NewCipher(security.GetConfig().ExchangeCRKey); err != nil {
		return nil, fmt.Errorf("exchange credentials key: %w", err)
	}

	connCfg := connectors.GetConfig()
	gateways := connectors.NewGatewayFactory(
		connCfg,
		repository.NewTradeLogRepository().WithDB(db),
		security.DecryptString,
		log.WithField("component", "gateway"),
	)

	deps := execution.NewDeps(db, gateways, nil, metrics)
	if execution.GetConfig().ProtectivePriceCheck {
		deps.Pricer = connectors.NewGoexReferencePricer(connCfg.ReferencePriceBaseURL, &http.Client{Timeout: connCfg.BinanceTimeout})
	}
	executor := execution.NewExecutor(log.WithField("component", "execution"), deps)

	ctrlCfg := controller.GetConfig()
	mirror := controller.NewMirrorController(log.WithField("component", "mirror"), db, metrics, ctrlCfg)
	sweeper := controller.NewSweeper(log.WithField("component", "sweeper"), db, ctrlCfg)

	pool := executors.NewPool(executors.GetConfig(), repository.NewTaskRepository().WithDB(db), sweeper, metrics)
	executors.RegisterPipeline(pool, mirror, executor)
	return pool, nil
}
