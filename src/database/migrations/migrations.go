package migrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration is the applied marker of a data migration.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Migration rewrites existing rows once. Up runs in the transaction that
// records the marker.
type Migration struct {
	ID string
	Up func(tx *gorm.DB) error
}

// registry is applied in order. Append only, never renumber.
var registry = []Migration{
	{ID: "00001_normalize_exchange_names", Up: normalizeExchangeNames},
	{ID: "00002_backfill_execution_protection_status", Up: backfillProtectionStatus},
}

// Apply runs m unless its marker exists and reports whether it ran.
func Apply(db *gorm.DB, m Migration) (bool, error) {
	if db == nil {
		return false, nil
	}
	if m.ID == "" {
		return false, errors.New("migration id is empty")
	}
	if m.Up == nil {
		return false, fmt.Errorf("migration %q has no Up", m.ID)
	}
	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return false, fmt.Errorf("ensure data migrations table: %w", err)
	}

	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var marker DataMigration
		err := tx.First(&marker, "id = ?", m.ID).Error
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("check migration %q: %w", m.ID, err)
		}

		if err := m.Up(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", m.ID, err)
		}
		if err := tx.Create(&DataMigration{ID: m.ID, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", m.ID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// Run applies the registered migrations that have not run yet.
func Run(db *gorm.DB) error {
	return runAll(db, registry)
}

func runAll(db *gorm.DB, list []Migration) error {
	if db == nil {
		return nil
	}

	for _, m := range list {
		applied, err := Apply(db, m)
		if err != nil {
			return err
		}
		if applied {
			logrus.WithField("migration", m.ID).Info("[migrations] Data migration applied")
		}
	}
	return nil
}

// Pending lists the ids of the registered migrations without a marker.
func Pending(db *gorm.DB) ([]string, error) {
	return pending(db, registry)
}

func pending(db *gorm.DB, list []Migration) ([]string, error) {
	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return nil, fmt.Errorf("ensure data migrations table: %w", err)
	}

	var done []string
	if err := db.Model(&DataMigration{}).Pluck("id", &done).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(done))
	for _, id := range done {
		applied[id] = true
	}

	var out []string
	for _, m := range list {
		if !applied[m.ID] {
			out = append(out, m.ID)
		}
	}
	return out, nil
}
