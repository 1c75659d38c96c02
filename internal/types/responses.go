package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidReceipt is returned to a bidder after a successful ledger commit
type BidReceipt struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Sequence  int64           `json:"sequence"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// SettlementResponse represents the response from the settlement service
type SettlementResponse struct {
	AuctionID      string       `json:"auction_id"`
	Outcome        string       `json:"outcome"`
	WinningBid     *Bid         `json:"winning_bid,omitempty"`
	Transaction    *Transaction `json:"transaction,omitempty"`
	AlreadySettled bool         `json:"already_settled"`
	Timestamp      time.Time    `json:"timestamp"`
}
