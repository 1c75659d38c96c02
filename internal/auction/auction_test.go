package auction

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openlot/auction-api/internal/types"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auction_test.db")), &gorm.Config{
		TranslateError: true,
	})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&types.Auction{}, &types.Bid{}, &IdempotencyRecord{}))

	return NewService(db), db
}

func TestCreateAuction_FixesEndTimeFromDuration(t *testing.T) {
	service, _ := newTestService(t)

	a := &types.Auction{
		SellerID:      "seller",
		Title:         "Vintage Camera",
		StartingPrice: decimal.NewFromInt(100),
		Duration:      3600,
	}

	before := time.Now()
	assert.NoError(t, service.CreateAuction(a, "key-1"))

	check.NotEqual(t, "", a.AuctionID)
	check.False(t, a.Settled)
	check.Equal(t, "", a.Outcome)
	check.True(t, a.EndTime.After(before.Add(59*time.Minute)))
	check.True(t, a.EndTime.Before(before.Add(61*time.Minute)))
}

func TestCreateAuction_Validation(t *testing.T) {
	service, _ := newTestService(t)

	err := service.CreateAuction(&types.Auction{
		SellerID:      "seller",
		StartingPrice: decimal.NewFromInt(100),
		Duration:      3600,
	}, "key-1")
	check.True(t, errors.Is(err, ErrMissingTitle))

	err = service.CreateAuction(&types.Auction{
		SellerID: "seller",
		Title:    "Vintage Camera",
		Duration: 3600,
	}, "key-2")
	check.True(t, errors.Is(err, ErrInvalidStartingPrice))

	err = service.CreateAuction(&types.Auction{
		SellerID:      "seller",
		Title:         "Vintage Camera",
		StartingPrice: decimal.NewFromInt(100),
	}, "key-3")
	check.True(t, errors.Is(err, ErrInvalidDuration))

	err = service.CreateAuction(&types.Auction{
		SellerID:      "seller",
		Title:         "Vintage Camera",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(-time.Hour),
	}, "key-4")
	check.True(t, errors.Is(err, ErrInvalidDuration))
}

func TestCreateAuction_IdempotentReplay(t *testing.T) {
	service, db := newTestService(t)

	first := &types.Auction{
		SellerID:      "seller",
		Title:         "Vintage Camera",
		StartingPrice: decimal.NewFromInt(100),
		Duration:      3600,
	}
	assert.NoError(t, service.CreateAuction(first, "same-key"))

	// Replaying the key returns the recorded listing instead of a new one
	replay := &types.Auction{
		SellerID:      "seller",
		Title:         "Vintage Camera",
		StartingPrice: decimal.NewFromInt(100),
		Duration:      3600,
	}
	assert.NoError(t, service.CreateAuction(replay, "same-key"))
	check.Equal(t, first.AuctionID, replay.AuctionID)

	var count int64
	assert.NoError(t, db.Model(&types.Auction{}).Count(&count).Error)
	check.Equal(t, int64(1), count)
}

func TestListOpenAuctions_ExcludesExpired(t *testing.T) {
	service, db := newTestService(t)

	open := &types.Auction{
		AuctionID:     "a_open",
		SellerID:      "seller",
		Title:         "Open",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(time.Hour),
	}
	expired := &types.Auction{
		AuctionID:     "a_expired",
		SellerID:      "seller",
		Title:         "Expired",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(-time.Hour),
	}
	assert.NoError(t, db.Create(open).Error)
	assert.NoError(t, db.Create(expired).Error)

	auctions, err := service.ListOpenAuctions()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(auctions))
	check.Equal(t, "a_open", auctions[0].AuctionID)
}

func TestListSellerAuctions(t *testing.T) {
	service, db := newTestService(t)

	mine := &types.Auction{
		AuctionID:     "a_mine",
		SellerID:      "seller_1",
		Title:         "Mine",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(-time.Hour),
		Settled:       true,
		Outcome:       types.OutcomeUnsold,
	}
	other := &types.Auction{
		AuctionID:     "a_other",
		SellerID:      "seller_2",
		Title:         "Other",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(time.Hour),
	}
	assert.NoError(t, db.Create(mine).Error)
	assert.NoError(t, db.Create(other).Error)

	// Settled listings stay visible to their seller
	auctions, err := service.ListSellerAuctions("seller_1")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(auctions))
	check.Equal(t, "a_mine", auctions[0].AuctionID)

	auctions, err = service.ListSellerAuctions("nobody")
	assert.NoError(t, err)
	check.Equal(t, 0, len(auctions))
}

func TestGetAuctionBids_UnknownAuction(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.GetAuctionBids("missing")
	check.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
