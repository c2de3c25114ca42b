package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":             "signalmirror",
				"POSTGRES_DB":               "signalmirror",
				"POSTGRES_HOST_AUTH_METHOD": "trust",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://signalmirror@%s:%s/signalmirror?sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return db
}

func TestClaimIsExactlyOnceAcrossConcurrentWorkers(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Strategy{ID: 1, Name: "trend", Pair: "BTC/USDT"}).Error)
	require.NoError(t, db.Create(&model.Signal{ID: 100, StrategyID: 1, Direction: "entry_long"}).Error)

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []*model.MirrorStatus
		errs   []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := NewMirrorStatusRepository().WithDB(db).Claim(ctx, 100)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if token != nil {
				tokens = append(tokens, token)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Len(t, tokens, 1, "exactly one worker wins the signal")

	var count int64
	require.NoError(t, db.Model(&model.MirrorStatus{}).Where("signal_id = ?", 100).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestClaimNextHandsOutEachTaskOnce(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	repo := NewTaskRepository().WithDB(db)

	const tasks = 20
	for i := 1; i <= tasks; i++ {
		task, err := NewTask(model.TaskKindMirrorSignal, model.MirrorSignalPayload{SignalID: uint(i)}, 1)
		require.NoError(t, err)
		require.NoError(t, repo.Enqueue(ctx, task))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uint]int{}
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				task, err := repo.ClaimNext(ctx, worker)
				if err != nil || task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()

	assert.Len(t, seen, tasks)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %d claimed more than once", id)
	}
}
