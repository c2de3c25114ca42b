package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalmirror/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExecutionCreatePendingIsUniquePerSignalAccount(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&ExecutionRepository{}).WithDB(db)

	first := &model.Execution{SignalID: 1, AccountID: 9, StrategyID: 2, Symbol: "BTCUSDT", Side: model.SideLong, Type: model.ExecutionTypeEntry, Leverage: 3}
	created, err := repo.CreatePending(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.Equal(t, model.ExecutionStatusPending, first.Status)
	assert.Equal(t, model.ProtectionNone, first.ProtectionStatus)

	second := &model.Execution{SignalID: 1, AccountID: 9, StrategyID: 2, Symbol: "BTCUSDT", Side: model.SideLong, Type: model.ExecutionTypeEntry}
	created, err = repo.CreatePending(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	ids, err := repo.AccountIDsForSignal(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, ids)
}

func TestExecutionUpdateIsTerminalOnce(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&ExecutionRepository{}).WithDB(db)

	exec := &model.Execution{SignalID: 1, AccountID: 9, Symbol: "ETHUSDT", Side: model.SideShort, Type: model.ExecutionTypeExit}
	_, err := repo.CreatePending(ctx, exec)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, exec.ID, map[string]interface{}{
		"status":            model.ExecutionStatusSuccess,
		"follower_quantity": d("0.5"),
		"executed_price":    d("2500.1"),
	}))

	err = repo.Update(ctx, exec.ID, map[string]interface{}{"status": model.ExecutionStatusFailed})
	assert.ErrorIs(t, err, ErrExecutionTerminal)

	stored, err := repo.FindByID(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.ExecutionStatusSuccess, stored.Status)
	assert.True(t, stored.FollowerQuantity.Equal(d("0.5")))
	assert.True(t, stored.ExecutedPrice.Equal(d("2500.1")))
}

func TestExecutionSearchFilters(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&ExecutionRepository{}).WithDB(db)

	for i, accountID := range []uint{1, 2, 1} {
		_, err := repo.CreatePending(ctx, &model.Execution{SignalID: uint(i + 1), AccountID: accountID, Symbol: "BTCUSDT", Side: model.SideLong, Type: model.ExecutionTypeEntry})
		require.NoError(t, err)
	}

	results, err := repo.Search(ctx, ExecutionSearchOptions{AccountID: ptrUint(1)})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = repo.Search(ctx, ExecutionSearchOptions{SignalID: ptrUint(2), Status: ptrString(model.ExecutionStatusPending)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint(2), results[0].AccountID)

	results, err = repo.Search(ctx, ExecutionSearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPositionUpsertAndClose(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&PositionRepository{}).WithDB(db)

	none, err := repo.FindByAccountSymbol(ctx, 4, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "BTCUSDT", Side: model.SideLong, Quantity: d("0.048"), EntryPrice: d("25000"), Leverage: 3}, nil))

	open, err := repo.FindByAccountSymbol(ctx, 4, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, 1, open.Version)
	assert.True(t, open.Quantity.Equal(d("0.048")))

	// replacing the active position keeps a single row
	require.NoError(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "BTCUSDT", Side: model.SideShort, Quantity: d("0.1"), EntryPrice: d("26000"), Leverage: 2}, open))

	var count int64
	require.NoError(t, db.Model(&model.Position{}).Where("account_id = ? AND symbol = ?", 4, "BTCUSDT").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	replaced, err := repo.FindByAccountSymbol(ctx, 4, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, model.SideShort, replaced.Side)
	assert.Equal(t, 2, replaced.Version)

	require.NoError(t, repo.Close(ctx, 4, "BTCUSDT", replaced))

	// the closed row stays, it carries the version for the next entry
	row, err := repo.FindByAccountSymbol(ctx, 4, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, model.PositionStatusClosed, row.Status)
	assert.NotNil(t, row.ClosedAt)

	require.NoError(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "BTCUSDT", Side: model.SideLong, Quantity: d("0.02")}, row))
	reopened, err := repo.FindByAccountSymbol(ctx, 4, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, reopened)
	assert.Equal(t, model.PositionStatusActive, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Equal(t, row.Version+1, reopened.Version)
}

func TestPositionStaleVersionConflicts(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&PositionRepository{}).WithDB(db)

	require.NoError(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "ETHUSDT", Side: model.SideLong, Quantity: d("1")}, nil))
	stale, err := repo.FindByAccountSymbol(ctx, 4, "ETHUSDT")
	require.NoError(t, err)

	// another run replaces the position first
	require.NoError(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "ETHUSDT", Side: model.SideLong, Quantity: d("2")}, stale))

	assert.ErrorIs(t, repo.Close(ctx, 4, "ETHUSDT", stale), ErrPositionConflict)
	assert.ErrorIs(t, repo.Upsert(ctx, &model.Position{AccountID: 4, Symbol: "ETHUSDT", Side: model.SideLong}, nil), ErrPositionConflict)

	assert.NoError(t, repo.Close(ctx, 4, "SOLUSDT", nil), "closing a position that never existed is a no-op")
}

func TestSignalFindUnclaimedSince(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&SignalRepository{}).WithDB(db)

	now := time.Now().UTC()
	signals := []model.Signal{
		{ID: 1, StrategyID: 1, Direction: "entry_long", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 2, StrategyID: 1, Direction: "entry_long", CreatedAt: now.Add(-10 * time.Minute)},
		{ID: 3, StrategyID: 1, Direction: "exit_long", CreatedAt: now.Add(-5 * time.Minute)},
		{ID: 4, StrategyID: 1, Direction: "exit_long", CreatedAt: now.Add(-1 * time.Minute)},
	}
	require.NoError(t, db.Create(&signals).Error)
	require.NoError(t, db.Create(&model.MirrorStatus{SignalID: 3, Status: model.MirrorStatusCompleted}).Error)

	pending, err := repo.FindUnclaimedSince(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, uint(2), pending[0].ID)
	assert.Equal(t, uint(4), pending[1].ID)

	limited, err := repo.FindUnclaimedSince(ctx, now.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, uint(2), limited[0].ID)
}

func TestStrategyFindActiveAccounts(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&StrategyRepository{}).WithDB(db)

	require.NoError(t, db.Create(&model.Strategy{ID: 1, Name: "trend", Pair: "BTC/USDT"}).Error)
	accounts := []model.TradingAccount{
		{ID: 1, AccountName: "a", Exchange: "binance", IsActive: true},
		{ID: 2, AccountName: "b", Exchange: "binance", IsActive: true},
		{ID: 3, AccountName: "c", Exchange: "binance", IsActive: true},
		{ID: 4, AccountName: "d", Exchange: "binance", IsActive: true},
	}
	require.NoError(t, db.Create(&accounts).Error)
	// gorm skips false zero values on create, so deactivate explicitly
	require.NoError(t, db.Model(&model.TradingAccount{}).Where("id = ?", 3).Update("is_active", false).Error)

	links := []model.StrategyAccount{
		{StrategyID: 1, AccountID: 1, IsActive: true},
		{StrategyID: 1, AccountID: 2, IsActive: true},
		{StrategyID: 1, AccountID: 3, IsActive: true},
	}
	require.NoError(t, db.Create(&links).Error)
	require.NoError(t, db.Model(&model.StrategyAccount{}).Where("account_id = ?", 2).Update("is_active", false).Error)

	active, err := repo.FindActiveAccounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, uint(1), active[0].ID)

	strategy, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, strategy)
	assert.Equal(t, "BTC/USDT", strategy.Pair)

	missing, err := repo.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTradeLogFindBySignal(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := (&TradeLogRepository{}).WithDB(db)

	require.NoError(t, repo.Create(ctx, &model.TradeLog{SignalID: ptrUint(8), AccountID: 1, Endpoint: "/fapi/v1/leverage", StatusCode: 200}))
	require.NoError(t, repo.Create(ctx, &model.TradeLog{SignalID: ptrUint(8), AccountID: 1, Endpoint: "/fapi/v1/order", StatusCode: 200}))
	require.NoError(t, repo.Create(ctx, &model.TradeLog{SignalID: ptrUint(9), AccountID: 1, Endpoint: "/fapi/v1/order", StatusCode: 400}))

	logs, err := repo.FindBySignal(ctx, 8)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "/fapi/v1/leverage", logs[0].Endpoint)
}
