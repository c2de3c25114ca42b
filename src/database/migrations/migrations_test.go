package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestApplyRunsOnlyOnce(t *testing.T) {
	db := newSQLiteDB(t)

	calls := 0
	m := Migration{ID: "00099_test", Up: func(tx *gorm.DB) error {
		calls++
		return nil
	}}

	applied, err := Apply(db, m)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = Apply(db, m)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 1, calls)

	var count int64
	require.NoError(t, db.Model(&DataMigration{}).Where("id = ?", "00099_test").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestApplyDoesNotRecordFailedMigration(t *testing.T) {
	db := newSQLiteDB(t)

	_, err := Apply(db, Migration{ID: "00098_broken", Up: func(tx *gorm.DB) error {
		return gorm.ErrInvalidData
	}})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	var count int64
	require.NoError(t, db.Model(&DataMigration{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestApplyValidatesArguments(t *testing.T) {
	db := newSQLiteDB(t)

	_, err := Apply(db, Migration{Up: func(*gorm.DB) error { return nil }})
	require.Error(t, err)
	_, err = Apply(db, Migration{ID: "00097_nil"})
	require.Error(t, err)
	applied, err := Apply(nil, Migration{ID: "00096_nil_db"})
	require.NoError(t, err)
	require.False(t, applied)
}

func TestRunAllStopsAtFailureAndPendingTracksIt(t *testing.T) {
	db := newSQLiteDB(t)

	var order []string
	step := func(id string, err error) Migration {
		return Migration{ID: id, Up: func(*gorm.DB) error {
			order = append(order, id)
			return err
		}}
	}
	list := []Migration{step("a", nil), step("b", gorm.ErrInvalidData), step("c", nil)}

	require.Error(t, runAll(db, list))
	require.Equal(t, []string{"a", "b"}, order)

	left, err := pending(db, list)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, left)

	list[1] = step("b", nil)
	require.NoError(t, runAll(db, list))
	left, err = pending(db, list)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestNormalizeExchangeNames(t *testing.T) {
	db := newSQLiteDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE trading_accounts (id integer primary key, exchange text)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO trading_accounts (id, exchange) VALUES (1, ' Binance '), (2, NULL)`).Error)

	require.NoError(t, Run(db))

	var venue string
	require.NoError(t, db.Raw(`SELECT exchange FROM trading_accounts WHERE id = 1`).Scan(&venue).Error)
	require.Equal(t, "binance", venue)

	left, err := Pending(db)
	require.NoError(t, err)
	require.Empty(t, left)
}
