package auction

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openlot/auction-api/internal/auth"
	"github.com/openlot/auction-api/internal/types"
	"github.com/openlot/auction-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrMissingTitle         = errors.New("auction title is required")
	ErrInvalidStartingPrice = errors.New("starting price must be greater than zero")
	ErrInvalidDuration      = errors.New("auction duration must be in the future")
)

// Service handles auction listing and lookup operations
type Service struct {
	db *Database
}

// NewService creates a new auction service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateAuction lists a new item for auction with idempotency support.
// The end time is fixed here and never changes afterwards: it is either the
// supplied absolute end time or now plus the requested duration.
func (s *Service) CreateAuction(a *types.Auction, idempotencyKey string) error {
	// Check for existing idempotency record
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err == nil && record != nil && record.ResourceID != "" && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetAuction(record.ResourceID)
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.New("auction not found")
		}
		*a = *existing
		return nil
	}

	if a.Title == "" {
		return ErrMissingTitle
	}
	if !a.StartingPrice.IsPositive() {
		return ErrInvalidStartingPrice
	}

	now := time.Now()
	if a.EndTime.IsZero() {
		if a.Duration <= 0 {
			return ErrInvalidDuration
		}
		a.EndTime = now.Add(time.Duration(a.Duration) * time.Second)
	} else {
		if !a.EndTime.After(now) {
			return ErrInvalidDuration
		}
		a.Duration = int64(time.Until(a.EndTime).Seconds())
	}

	a.AuctionID = uuid.New().String()
	a.Settled = false
	a.Outcome = ""
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.db.CreateAuctionWithIdempotency(a, idempotencyKey); err != nil {
		return err
	}

	log.Info().
		Str("auction_id", a.AuctionID).
		Str("seller_id", a.SellerID).
		Str("starting_price", a.StartingPrice.String()).
		Time("end_time", a.EndTime).
		Str("service", "auction").
		Msg("auction listed")

	return nil
}

// GetAuction retrieves an auction by its ID
func (s *Service) GetAuction(auctionID string) (*types.Auction, error) {
	return s.db.GetAuction(auctionID)
}

// ListOpenAuctions retrieves all auctions whose end time has not passed
func (s *Service) ListOpenAuctions() ([]types.Auction, error) {
	return s.db.ListOpenAuctions(time.Now())
}

// ListSellerAuctions retrieves every auction listed by a seller, newest first
func (s *Service) ListSellerAuctions(sellerID string) ([]types.Auction, error) {
	return s.db.ListAuctionsBySeller(sellerID)
}

// GetAuctionBids retrieves the committed bid history for an auction in
// ledger order
func (s *Service) GetAuctionBids(auctionID string) ([]types.Bid, error) {
	a, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.db.GetAuctionBids(auctionID)
}

// GinHandlers contains HTTP handlers for auction endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for auction endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateAuctionHandler handles POST requests to list new auctions
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}
		sellerID := auth.GetUserID(claims)
		if sellerID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var a types.Auction
		if err := c.ShouldBindJSON(&a); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		a.SellerID = sellerID

		if err := h.service.CreateAuction(&a, idempotencyKey); err != nil {
			switch {
			case errors.Is(err, ErrMissingTitle),
				errors.Is(err, ErrInvalidStartingPrice),
				errors.Is(err, ErrInvalidDuration):
				response.BadRequest(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, a)
	}
}

// GetAuctionHandler handles GET requests for a single auction
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")
		if auctionID == "" {
			response.BadRequest(c, "Auction ID is required")
			return
		}

		a, err := h.service.GetAuction(auctionID)
		if err != nil || a == nil {
			response.NotFound(c, "Auction not found")
			return
		}

		response.Success(c, gin.H{
			"auction": a,
			"status":  StatusAt(a, time.Now()),
		})
	}
}

// ListAuctionsHandler handles GET requests for the open auction listing
func (h *GinHandlers) ListAuctionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctions, err := h.service.ListOpenAuctions()
		response.Handle(c, auctions, err)
	}
}

// ListSellerAuctionsHandler handles GET requests for the caller's own
// listings, including settled ones
// Requires a valid JWT token
func (h *GinHandlers) ListSellerAuctionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}
		sellerID := auth.GetUserID(claims)
		if sellerID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		auctions, err := h.service.ListSellerAuctions(sellerID)
		response.Handle(c, auctions, err)
	}
}

// ListBidsHandler handles GET requests for an auction's bid history
// URL parameter: auction_id
func (h *GinHandlers) ListBidsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")

		bids, err := h.service.GetAuctionBids(auctionID)
		response.Handle(c, bids, err)
	}
}
