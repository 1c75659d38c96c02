package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openlot/auction-api/internal/auth"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/types"
	"github.com/openlot/auction-api/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes bid submission over the ledger
type Service struct {
	ledger *Ledger
}

// NewService creates a new bidding service with the given database
// connection and notification dispatcher
func NewService(gormDB *gorm.DB, dispatcher notification.Dispatcher, waitTimeout time.Duration) *Service {
	return &Service{
		ledger: NewLedger(gormDB, dispatcher, waitTimeout),
	}
}

// SubmitBid runs one submission attempt through the ledger
func (s *Service) SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*types.Bid, *Rejection, error) {
	return s.ledger.Submit(ctx, auctionID, Proposal{
		BidderID: bidderID,
		Amount:   amount,
	})
}

// Ledger exposes the underlying ledger for collaborators that read the high
// bid directly
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// GinHandlers contains HTTP handlers for bidding endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for bidding endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// bidRequest is the submission payload; the bidder comes from the JWT, the
// auction from the URL
type bidRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// SubmitBidHandler handles POST requests to place bids
// Requires a valid JWT token
// URL parameter: auction_id
func (h *GinHandlers) SubmitBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		bidderID := auth.GetUserID(claims)
		if bidderID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		auctionID := c.Param("auction_id")
		if auctionID == "" {
			response.BadRequest(c, "Auction ID is required")
			return
		}

		var req bidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		bid, rejection, err := h.service.SubmitBid(c.Request.Context(), auctionID, bidderID, req.Amount)
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, "Auction not found")
		case errors.Is(err, ErrSubmitTimeout):
			response.Timeout(c, "Bid submission timed out, please retry")
		case err != nil:
			response.InternalError(c, err.Error())
		case rejection != nil:
			response.BidRejected(c, string(rejection.Reason), rejection.Message)
		default:
			response.Success(c, types.BidReceipt{
				BidID:     bid.BidID,
				AuctionID: bid.AuctionID,
				Amount:    bid.Amount,
				Sequence:  bid.Sequence,
				PlacedAt:  bid.PlacedAt,
			})
		}
	}
}
