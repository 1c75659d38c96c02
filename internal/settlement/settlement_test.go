package settlement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openlot/auction-api/internal/database"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/payment"
	"github.com/openlot/auction-api/internal/types"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// stubGateway answers every charge with a scripted result and counts calls
type stubGateway struct {
	calls int32
	err   error
}

func (g *stubGateway) Charge(ctx context.Context, payerID, payeeID string, amount decimal.Decimal) (*payment.ChargeResult, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.ChargeResult{
		ChargeID: "CHG_" + uuid.New().String(),
		PayerID:  payerID,
		PayeeID:  payeeID,
		Amount:   amount,
	}, nil
}

func (g *stubGateway) callCount() int {
	return int(atomic.LoadInt32(&g.calls))
}

type captureDispatcher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	userID string
	event  notification.Event
}

func (d *captureDispatcher) Notify(userID string, event notification.Event, payload map[string]interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, capturedEvent{userID: userID, event: event})
}

func (d *captureDispatcher) has(userID string, event notification.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.events {
		if e.userID == userID && e.event == event {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, gateway payment.Gateway) (*Service, *gorm.DB, *captureDispatcher) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "settlement_test.db"))
	assert.NoError(t, err)

	dispatcher := &captureDispatcher{}
	return NewService(db, gateway, dispatcher), db, dispatcher
}

func createExpiredAuction(t *testing.T, db *gorm.DB, sellerID string) *types.Auction {
	t.Helper()

	a := &types.Auction{
		AuctionID:     uuid.New().String(),
		SellerID:      sellerID,
		Title:         "Closed Item",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(-time.Minute),
	}
	assert.NoError(t, db.Create(a).Error)
	return a
}

func createWinningBid(t *testing.T, db *gorm.DB, auctionID, bidderID string, amount int64) *types.Bid {
	t.Helper()

	bid := &types.Bid{
		BidID:     uuid.New().String(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    decimal.NewFromInt(amount),
		Sequence:  1,
		PlacedAt:  time.Now().Add(-2 * time.Minute),
	}
	assert.NoError(t, db.Create(bid).Error)
	return bid
}

func TestSettle_AuctionNotFound(t *testing.T) {
	service, _, _ := newTestService(t, &stubGateway{})

	result, err := service.Settle(context.Background(), "missing")
	check.Nil(t, result)
	check.True(t, errors.Is(err, ErrAuctionNotFound))
}

func TestSettle_StillOpen(t *testing.T) {
	service, db, _ := newTestService(t, &stubGateway{})

	a := &types.Auction{
		AuctionID:     uuid.New().String(),
		SellerID:      "seller",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(time.Hour),
	}
	assert.NoError(t, db.Create(a).Error)

	result, err := service.Settle(context.Background(), a.AuctionID)
	check.Nil(t, result)
	check.True(t, errors.Is(err, ErrAuctionStillOpen))
}

func TestSettle_UnsoldWithoutBids(t *testing.T) {
	gateway := &stubGateway{}
	service, db, dispatcher := newTestService(t, gateway)
	a := createExpiredAuction(t, db, "seller")

	result, err := service.Settle(context.Background(), a.AuctionID)
	assert.NoError(t, err)
	assert.NotNil(t, result)
	check.Equal(t, types.OutcomeUnsold, result.Outcome)
	check.False(t, result.AlreadySettled)
	check.Nil(t, result.Transaction)

	// No sale means no transaction and no charge
	check.Equal(t, 0, gateway.callCount())
	var count int64
	assert.NoError(t, db.Model(&types.Transaction{}).Where("auction_id = ?", a.AuctionID).Count(&count).Error)
	check.Equal(t, int64(0), count)

	check.True(t, dispatcher.has("seller", notification.EventAuctionUnsold))

	var stored types.Auction
	assert.NoError(t, db.Where("auction_id = ?", a.AuctionID).First(&stored).Error)
	check.True(t, stored.Settled)
	check.Equal(t, types.OutcomeUnsold, stored.Outcome)
}

func TestSettle_SoldChargeCompleted(t *testing.T) {
	gateway := &stubGateway{}
	service, db, dispatcher := newTestService(t, gateway)
	a := createExpiredAuction(t, db, "seller")
	winning := createWinningBid(t, db, a.AuctionID, "buyer", 250)

	result, err := service.Settle(context.Background(), a.AuctionID)
	assert.NoError(t, err)
	assert.NotNil(t, result)
	check.Equal(t, types.OutcomeSold, result.Outcome)
	check.False(t, result.AlreadySettled)
	assert.NotNil(t, result.WinningBid)
	check.Equal(t, winning.BidID, result.WinningBid.BidID)
	assert.NotNil(t, result.Transaction)
	check.Equal(t, types.PaymentCompleted, result.Transaction.PaymentStatus)
	check.True(t, result.Transaction.FinalPrice.Equal(decimal.NewFromInt(250)))

	check.Equal(t, 1, gateway.callCount())

	record, err := service.db.GetTransactionByAuctionID(a.AuctionID)
	assert.NoError(t, err)
	assert.NotNil(t, record)
	check.Equal(t, types.PaymentCompleted, record.PaymentStatus)
	check.Equal(t, types.DeliveryPending, record.DeliveryStatus)
	check.NotEqual(t, "", record.ChargeID)
	check.Equal(t, "buyer", record.BuyerID)
	check.Equal(t, "seller", record.SellerID)

	check.True(t, dispatcher.has("buyer", notification.EventAuctionWon))
	check.True(t, dispatcher.has("buyer", notification.EventSaleCompleted))
	check.True(t, dispatcher.has("seller", notification.EventSaleCompleted))
}

func TestSettle_DeclinedIsTerminal(t *testing.T) {
	gateway := &stubGateway{err: &payment.DeclinedError{Reason: "card declined"}}
	service, db, dispatcher := newTestService(t, gateway)
	a := createExpiredAuction(t, db, "seller")
	createWinningBid(t, db, a.AuctionID, "buyer", 250)

	result, err := service.Settle(context.Background(), a.AuctionID)
	assert.NoError(t, err)
	assert.NotNil(t, result)
	check.Equal(t, types.OutcomeSold, result.Outcome)
	assert.NotNil(t, result.Transaction)
	check.Equal(t, types.PaymentFailed, result.Transaction.PaymentStatus)

	check.True(t, dispatcher.has("buyer", notification.EventPaymentFailed))
	check.True(t, dispatcher.has("seller", notification.EventPaymentFailed))

	// Settling again reports the recorded outcome and never re-charges
	again, err := service.Settle(context.Background(), a.AuctionID)
	assert.NoError(t, err)
	assert.NotNil(t, again)
	check.True(t, again.AlreadySettled)
	assert.NotNil(t, again.Transaction)
	check.Equal(t, types.PaymentFailed, again.Transaction.PaymentStatus)
	check.Equal(t, 1, gateway.callCount())

	// A declined transaction is resolved, so the recovery pass skips it
	assert.NoError(t, service.RecoverPayment(context.Background(), result.Transaction.TransactionID))
	check.Equal(t, 1, gateway.callCount())
}

func TestSettle_ConcurrentCallersSettleOnce(t *testing.T) {
	gateway := &stubGateway{}
	service, db, _ := newTestService(t, gateway)
	a := createExpiredAuction(t, db, "seller")
	createWinningBid(t, db, a.AuctionID, "buyer", 300)

	const callers = 8
	results := make([]*types.SettlementResponse, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = service.Settle(context.Background(), a.AuctionID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.NotNil(t, results[i])
		check.Equal(t, types.OutcomeSold, results[i].Outcome)
		if !results[i].AlreadySettled {
			fresh++
		}
	}
	check.Equal(t, 1, fresh)
	check.Equal(t, 1, gateway.callCount())

	var count int64
	assert.NoError(t, db.Model(&types.Transaction{}).Where("auction_id = ?", a.AuctionID).Count(&count).Error)
	check.Equal(t, int64(1), count)
}

func TestRecoverPayment_ReDrivesPendingCharge(t *testing.T) {
	gateway := &stubGateway{}
	service, db, dispatcher := newTestService(t, gateway)

	// A worker that crashed after recording the sale leaves the auction
	// settled and the transaction PENDING
	a := createExpiredAuction(t, db, "seller")
	assert.NoError(t, db.Model(&types.Auction{}).
		Where("auction_id = ?", a.AuctionID).
		Updates(map[string]interface{}{"settled": true, "outcome": types.OutcomeSold}).Error)

	record := &types.Transaction{
		TransactionID:  "TXN_" + uuid.New().String(),
		AuctionID:      a.AuctionID,
		BuyerID:        "buyer",
		SellerID:       "seller",
		FinalPrice:     decimal.NewFromInt(400),
		PaymentStatus:  types.PaymentPending,
		DeliveryStatus: types.DeliveryPending,
	}
	assert.NoError(t, db.Create(record).Error)

	assert.NoError(t, service.RecoverPayment(context.Background(), record.TransactionID))
	check.Equal(t, 1, gateway.callCount())

	stored, err := service.GetTransaction(record.TransactionID)
	assert.NoError(t, err)
	assert.NotNil(t, stored)
	check.Equal(t, types.PaymentCompleted, stored.PaymentStatus)
	check.NotEqual(t, "", stored.ChargeID)
	check.True(t, dispatcher.has("buyer", notification.EventSaleCompleted))

	// Resolved payments are left alone on later passes
	assert.NoError(t, service.RecoverPayment(context.Background(), record.TransactionID))
	check.Equal(t, 1, gateway.callCount())
}

func TestGetExpiredUnsettled(t *testing.T) {
	service, db, _ := newTestService(t, &stubGateway{})

	expired := createExpiredAuction(t, db, "seller")
	open := &types.Auction{
		AuctionID:     uuid.New().String(),
		SellerID:      "seller",
		StartingPrice: decimal.NewFromInt(100),
		EndTime:       time.Now().Add(time.Hour),
	}
	assert.NoError(t, db.Create(open).Error)

	pending, err := service.db.GetExpiredUnsettled(time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, len(pending))
	check.Equal(t, expired.AuctionID, pending[0].AuctionID)

	// Settled auctions drop out of the scan
	_, err = service.Settle(context.Background(), expired.AuctionID)
	assert.NoError(t, err)
	pending, err = service.db.GetExpiredUnsettled(time.Now())
	assert.NoError(t, err)
	check.Equal(t, 0, len(pending))
}

func TestUpdateDeliveryStatus(t *testing.T) {
	service, db, _ := newTestService(t, &stubGateway{})

	record := &types.Transaction{
		TransactionID:  "TXN_" + uuid.New().String(),
		AuctionID:      uuid.New().String(),
		BuyerID:        "buyer",
		SellerID:       "seller",
		FinalPrice:     decimal.NewFromInt(400),
		PaymentStatus:  types.PaymentCompleted,
		DeliveryStatus: types.DeliveryPending,
	}
	assert.NoError(t, db.Create(record).Error)

	check.True(t, errors.Is(service.UpdateDeliveryStatus(record.TransactionID, "LOST"), ErrInvalidDeliveryStatus))

	assert.NoError(t, service.UpdateDeliveryStatus(record.TransactionID, types.DeliveryShipped))
	stored, err := service.GetTransaction(record.TransactionID)
	assert.NoError(t, err)
	check.Equal(t, types.DeliveryShipped, stored.DeliveryStatus)
}
