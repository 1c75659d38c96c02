package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/payment"
	"github.com/openlot/auction-api/internal/types"
	"github.com/openlot/auction-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrAuctionStillOpen      = errors.New("auction has not reached its end time")
	ErrInvalidDeliveryStatus = errors.New("invalid delivery status")
)

// Service settles closed auctions: it freezes the outcome exactly once per
// auction, records the sale, drives the payment charge, and notifies the
// participants.
type Service struct {
	db         *Database
	gateway    payment.Gateway
	dispatcher notification.Dispatcher
}

// NewService creates a new settlement service
func NewService(gormDB *gorm.DB, gateway payment.Gateway, dispatcher notification.Dispatcher) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		gateway:    gateway,
		dispatcher: dispatcher,
	}
}

// Settle transitions one auction from closed to settled. Safe to invoke
// concurrently and repeatedly: the settled-flag compare-and-set admits one
// winner per auction and every other caller gets the recorded outcome back
// with no side effects.
func (s *Service) Settle(ctx context.Context, auctionID string) (*types.SettlementResponse, error) {
	logger := log.With().
		Str("auction_id", auctionID).
		Str("service", "settlement").
		Logger()

	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAuctionNotFound
	}

	if auction.IsOpen(a, time.Now()) {
		return nil, ErrAuctionStillOpen
	}

	// No further bids can be accepted once the clock reports Closed, so the
	// high bid read here is final.
	winningBid, err := s.db.GetHighBid(auctionID)
	if err != nil {
		return nil, err
	}

	var record *types.Transaction
	if winningBid != nil {
		now := time.Now()
		record = &types.Transaction{
			TransactionID:  "TXN_" + uuid.New().String(),
			AuctionID:      auctionID,
			BuyerID:        winningBid.BidderID,
			SellerID:       a.SellerID,
			FinalPrice:     winningBid.Amount,
			PaymentStatus:  types.PaymentPending,
			DeliveryStatus: types.DeliveryPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	claimed, err := s.db.ClaimAndRecord(a, winningBid, record)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim settlement")
		return nil, err
	}

	if !claimed {
		// Lost the settled-flag race: settled elsewhere, report that outcome
		logger.Info().Msg("auction already settled by another worker")
		return s.settledElsewhere(auctionID)
	}

	if winningBid == nil {
		logger.Info().Msg("auction settled with no bids")
		s.dispatcher.Notify(a.SellerID, notification.EventAuctionUnsold, map[string]interface{}{
			"auction_id": auctionID,
			"title":      a.Title,
		})
		return &types.SettlementResponse{
			AuctionID: auctionID,
			Outcome:   types.OutcomeUnsold,
			Timestamp: time.Now(),
		}, nil
	}

	s.dispatcher.Notify(winningBid.BidderID, notification.EventAuctionWon, map[string]interface{}{
		"auction_id":  auctionID,
		"title":       a.Title,
		"final_price": winningBid.Amount.String(),
	})

	record.PaymentStatus = s.driveCharge(ctx, record, a.Title)

	logger.Info().
		Str("transaction_id", record.TransactionID).
		Str("winning_bid_id", winningBid.BidID).
		Str("final_price", record.FinalPrice.String()).
		Str("payment_status", record.PaymentStatus).
		Msg("settlement completed")

	return &types.SettlementResponse{
		AuctionID:   auctionID,
		Outcome:     types.OutcomeSold,
		WinningBid:  winningBid,
		Transaction: record,
		Timestamp:   time.Now(),
	}, nil
}

// settledElsewhere builds the response for a caller that lost the
// settled-flag race
func (s *Service) settledElsewhere(auctionID string) (*types.SettlementResponse, error) {
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAuctionNotFound
	}

	resp := &types.SettlementResponse{
		AuctionID:      auctionID,
		Outcome:        a.Outcome,
		AlreadySettled: true,
		Timestamp:      time.Now(),
	}

	record, err := s.db.GetTransactionByAuctionID(auctionID)
	if err != nil {
		return nil, err
	}
	resp.Transaction = record

	return resp, nil
}

// driveCharge invokes the payment gateway for a recorded sale and persists
// the result. Declines and exhausted transport retries are both terminal for
// this settlement; only the notification differs. Returns the final payment
// status.
func (s *Service) driveCharge(ctx context.Context, record *types.Transaction, title string) string {
	logger := log.With().
		Str("transaction_id", record.TransactionID).
		Str("auction_id", record.AuctionID).
		Str("service", "settlement").
		Logger()

	result, chargeErr := s.gateway.Charge(ctx, record.BuyerID, record.SellerID, record.FinalPrice)

	status := types.PaymentCompleted
	chargeID := ""
	if chargeErr != nil {
		status = types.PaymentFailed

		var declined *payment.DeclinedError
		if errors.As(chargeErr, &declined) {
			logger.Warn().Str("reason", declined.Reason).Msg("charge declined")
		} else {
			logger.Error().Err(chargeErr).Msg("charge failed")
		}
	} else {
		chargeID = result.ChargeID
	}

	if err := s.db.UpdatePaymentStatus(record.TransactionID, status, chargeID); err != nil {
		// The transaction stays PENDING and the processor's recovery pass
		// will re-drive it.
		logger.Error().Err(err).Msg("failed to persist payment status")
		return record.PaymentStatus
	}
	record.ChargeID = chargeID

	payload := map[string]interface{}{
		"auction_id":     record.AuctionID,
		"transaction_id": record.TransactionID,
		"title":          title,
		"final_price":    record.FinalPrice.String(),
	}
	if status == types.PaymentCompleted {
		s.dispatcher.Notify(record.SellerID, notification.EventSaleCompleted, payload)
		s.dispatcher.Notify(record.BuyerID, notification.EventSaleCompleted, payload)
	} else {
		s.dispatcher.Notify(record.SellerID, notification.EventPaymentFailed, payload)
		s.dispatcher.Notify(record.BuyerID, notification.EventPaymentFailed, payload)
	}

	return status
}

// RecoverPayment re-drives the charge for a transaction left PENDING by a
// crashed settlement worker. It no-ops when the payment has since resolved.
func (s *Service) RecoverPayment(ctx context.Context, transactionID string) error {
	record, err := s.db.GetTransaction(transactionID)
	if err != nil {
		return err
	}
	if record == nil {
		return errors.New("transaction not found")
	}
	if record.PaymentStatus != types.PaymentPending {
		return nil
	}

	a, err := s.db.GetAuction(record.AuctionID)
	if err != nil {
		return err
	}
	title := ""
	if a != nil {
		title = a.Title
	}

	s.driveCharge(ctx, record, title)
	return nil
}

// GetTransaction retrieves a settlement transaction by ID
func (s *Service) GetTransaction(transactionID string) (*types.Transaction, error) {
	return s.db.GetTransaction(transactionID)
}

// UpdateDeliveryStatus advances the delivery state of a completed sale
func (s *Service) UpdateDeliveryStatus(transactionID, status string) error {
	switch status {
	case types.DeliveryPending, types.DeliveryShipped, types.DeliveryDelivered:
	default:
		return ErrInvalidDeliveryStatus
	}
	return s.db.UpdateDeliveryStatus(transactionID, status)
}

// GetDB exposes the settlement database for the background processor
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettleAuctionHandler handles POST requests to settle auctions
// Requires internal authentication
// URL parameter: auction_id
func (h *GinHandlers) SettleAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		result, err := h.service.Settle(c.Request.Context(), auctionID)
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, "Auction not found")
		case errors.Is(err, ErrAuctionStillOpen):
			response.BadRequest(c, err.Error())
		default:
			response.Handle(c, result, err)
		}
	}
}

// GetTransactionHandler handles GET requests for settlement transactions
// URL parameter: transaction_id
func (h *GinHandlers) GetTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")

		record, err := h.service.GetTransaction(transactionID)
		if err == nil && record == nil {
			response.NotFound(c, "Transaction not found")
			return
		}
		response.Handle(c, record, err)
	}
}

// UpdateDeliveryStatusHandler handles POST requests to advance delivery
// Requires internal authentication
// URL parameter: transaction_id
func (h *GinHandlers) UpdateDeliveryStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")
		var request struct {
			Status string `json:"status" binding:"required"`
		}

		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.UpdateDeliveryStatus(transactionID, request.Status); err != nil {
			if errors.Is(err, ErrInvalidDeliveryStatus) {
				response.BadRequest(c, err.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "delivery status updated successfully"})
	}
}
