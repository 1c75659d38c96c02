package migrations

import (
	"github.com/openlot/auction-api/internal/types"
	"gorm.io/gorm"
)

// AddSettlementGuards creates the transactions table with the uniqueness
// guarantee settlement depends on
func AddSettlementGuards(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	indexes := []string{
		// At most one transaction per auction, enforced by the schema as
		// well as by the settled-flag compare-and-set
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_auction
		 ON transactions(auction_id)`,

		// The processor's recovery pass filters on payment status and age
		`CREATE INDEX IF NOT EXISTS idx_transactions_payment_status
		 ON transactions(payment_status, created_at)`,

		// The settlement scan filters expired, unsettled auctions
		`CREATE INDEX IF NOT EXISTS idx_auctions_end_time_settled
		 ON auctions(end_time, settled)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
