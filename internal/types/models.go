package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Auction outcome values, written once at settlement time
const (
	OutcomeSold   = "SOLD"
	OutcomeUnsold = "UNSOLD"
)

// Payment status values for a transaction
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

// Delivery status values for a transaction
const (
	DeliveryPending   = "PENDING"
	DeliveryShipped   = "SHIPPED"
	DeliveryDelivered = "DELIVERED"
)

type User struct {
	gorm.Model `json:"-"`
	UserID     string `gorm:"uniqueIndex" json:"user_id"`
	Username   string `gorm:"uniqueIndex" json:"username"`
	Email      string `gorm:"uniqueIndex" json:"email"`
	FullName   string `json:"full_name"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	APIKey     string `gorm:"uniqueIndex" json:"api_key,omitempty"`
	APISecret  string `json:"-"`
}

// Auction is a listed item during its bidding window. EndTime is fixed at
// creation and never extended. Open vs Closed is always derived from EndTime;
// only the settlement outcome is stored state.
type Auction struct {
	gorm.Model    `json:"-"`
	AuctionID     string          `gorm:"uniqueIndex" json:"auction_id"`
	SellerID      string          `gorm:"index" json:"seller_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `gorm:"type:decimal(20,2)" json:"starting_price"`
	Duration      int64           `json:"duration_seconds"`
	EndTime       time.Time       `json:"end_time"`
	Settled       bool            `gorm:"index" json:"settled"`
	Outcome       string          `json:"outcome,omitempty"` // SOLD or UNSOLD, empty until settled

	// High-bid cache, updated atomically with every ledger append
	HighBidAmount decimal.Decimal `gorm:"type:decimal(20,2)" json:"high_bid_amount"`
	HighBidID     string          `json:"high_bid_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Bid is immutable once accepted. Sequence is assigned by the ledger and is
// monotonic per auction.
type Bid struct {
	gorm.Model `json:"-"`
	BidID      string          `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID  string          `gorm:"index" json:"auction_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Sequence   int64           `json:"sequence"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// Transaction records the sale produced by settling an auction with at least
// one accepted bid. At most one exists per auction and only settlement
// creates it.
type Transaction struct {
	gorm.Model     `json:"-"`
	TransactionID  string          `gorm:"uniqueIndex" json:"transaction_id"`
	AuctionID      string          `gorm:"uniqueIndex" json:"auction_id"`
	BuyerID        string          `gorm:"index" json:"buyer_id"`
	SellerID       string          `gorm:"index" json:"seller_id"`
	FinalPrice     decimal.Decimal `gorm:"type:decimal(20,2)" json:"final_price"`
	PaymentStatus  string          `gorm:"index" json:"payment_status"`
	DeliveryStatus string          `json:"delivery_status"`
	ChargeID       string          `json:"charge_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
