package auction

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

func (d *Database) ListOpenAuctions(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Where("end_time > ?", now).Order("end_time ASC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) ListAuctionsBySeller(sellerID string) ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Where("seller_id = ?", sellerID).Order("created_at DESC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) GetAuctionBids(auctionID string) ([]types.Bid, error) {
	var bids []types.Bid
	if err := d.db.Where("auction_id = ?", auctionID).Order("sequence ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// CreateAuctionWithIdempotency creates a new auction and idempotency record
// in a transaction
func (d *Database) CreateAuctionWithIdempotency(a *types.Auction, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(a).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     a.AuctionID,
		ResourceType:   "auction",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}
