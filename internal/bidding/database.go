package bidding

import (
	"errors"

	"github.com/openlot/auction-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetAuction(auctionID string) (*types.Auction, error) {
	var a types.Auction
	if err := d.db.Where("auction_id = ?", auctionID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetHighBid returns the highest-sequence bid for an auction, or nil when no
// bid has been committed yet
func (d *Database) GetHighBid(auctionID string) (*types.Bid, error) {
	var bid types.Bid
	if err := d.db.Where("auction_id = ?", auctionID).Order("sequence DESC").First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// CommitBid appends the bid and refreshes the auction's high-bid cache in a
// single transaction, so no reader ever observes the ledger and the cache
// out of step.
func (d *Database) CommitBid(bid *types.Bid) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(bid).Error; err != nil {
		tx.Rollback()
		return err
	}

	result := tx.Model(&types.Auction{}).
		Where("auction_id = ?", bid.AuctionID).
		Updates(map[string]interface{}{
			"high_bid_amount": bid.Amount,
			"high_bid_id":     bid.BidID,
			"updated_at":      bid.PlacedAt,
		})
	if result.Error != nil {
		tx.Rollback()
		return result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return errors.New("auction not found during bid commit")
	}

	return tx.Commit().Error
}
