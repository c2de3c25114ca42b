package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// normalizeExchangeNames lower-cases the venue columns so fan-out matching does
// not depend on how an operator typed them.
func normalizeExchangeNames(db *gorm.DB) error {
	for _, table := range []string{"strategies", "trading_accounts"} {
		if !db.Migrator().HasTable(table) {
			continue
		}
		if err := db.Exec(fmt.Sprintf("UPDATE %s SET exchange = LOWER(TRIM(exchange)) WHERE exchange IS NOT NULL", table)).Error; err != nil {
			return fmt.Errorf("normalize %s.exchange: %w", table, err)
		}
	}
	return nil
}

// backfillProtectionStatus fills protection_status on executions created before
// the column existed.
func backfillProtectionStatus(db *gorm.DB) error {
	if !db.Migrator().HasTable("executions") {
		return nil
	}
	return db.Exec(`UPDATE executions SET protection_status = 'none' WHERE protection_status IS NULL OR protection_status = ''`).Error
}
