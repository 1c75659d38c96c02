package settlement

import (
	"errors"
	"time"

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

// GetHighBid returns the final high bid for an auction, or nil when the
// auction received no bids
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

// ClaimAndRecord is the single point of exclusivity for settling an auction.
// In one transaction it compare-and-sets the settled flag, writes the
// outcome, and creates the sale transaction when a winning bid exists. The
// returned claimed flag is false when another worker already won the race,
// in which case nothing was written.
func (d *Database) ClaimAndRecord(a *types.Auction, winningBid *types.Bid, record *types.Transaction) (claimed bool, err error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	outcome := types.OutcomeUnsold
	if winningBid != nil {
		outcome = types.OutcomeSold
	}

	result := tx.Model(&types.Auction{}).
		Where("auction_id = ? AND settled = ?", a.AuctionID, false).
		Updates(map[string]interface{}{
			"settled":    true,
			"outcome":    outcome,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		tx.Rollback()
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return false, nil
	}

	if record != nil {
		if err := tx.Create(record).Error; err != nil {
			tx.Rollback()
			return false, err
		}
	}

	return true, tx.Commit().Error
}

func (d *Database) GetTransaction(transactionID string) (*types.Transaction, error) {
	var t types.Transaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (d *Database) GetTransactionByAuctionID(auctionID string) (*types.Transaction, error) {
	var t types.Transaction
	if err := d.db.Where("auction_id = ?", auctionID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (d *Database) UpdatePaymentStatus(transactionID, status, chargeID string) error {
	result := d.db.Model(&types.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"payment_status": status,
			"charge_id":      chargeID,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("transaction not found")
	}
	return nil
}

func (d *Database) UpdateDeliveryStatus(transactionID, status string) error {
	result := d.db.Model(&types.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"delivery_status": status,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("transaction not found")
	}
	return nil
}

// GetExpiredUnsettled lists auctions past their end time that no worker has
// settled yet
func (d *Database) GetExpiredUnsettled(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Where("end_time <= ? AND settled = ?", now, false).
		Order("end_time ASC").
		Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// GetStalePendingTransactions lists transactions whose charge never resolved,
// typically because a worker crashed between recording the sale and updating
// the payment status
func (d *Database) GetStalePendingTransactions(olderThan time.Time) ([]types.Transaction, error) {
	var transactions []types.Transaction
	if err := d.db.Where("payment_status = ? AND created_at <= ?", types.PaymentPending, olderThan).
		Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
