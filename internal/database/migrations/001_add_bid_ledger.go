package migrations

import (
	"github.com/openlot/auction-api/internal/types"
	"gorm.io/gorm"
)

// AddBidLedger creates the bids table and the indexes the ledger relies on
func AddBidLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Bid{}); err != nil {
		return err
	}

	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// The ledger's total order: one sequence number per auction
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_auction_sequence
		 ON bids(auction_id, sequence)`,

		// High-bid lookups scan by auction and amount
		`CREATE INDEX IF NOT EXISTS idx_bids_auction_amount
		 ON bids(auction_id, amount)`,

		// Bidder history queries
		`CREATE INDEX IF NOT EXISTS idx_bids_bidder
		 ON bids(bidder_id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
