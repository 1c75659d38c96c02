package bidding

import (
	"fmt"

	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/types"
	"github.com/shopspring/decimal"
)

// RejectReason identifies which admission rule a bid failed
type RejectReason string

const (
	ReasonAuctionClosed      RejectReason = "AUCTION_CLOSED"
	ReasonBelowStartingPrice RejectReason = "BELOW_STARTING_PRICE"
	ReasonBidTooLow          RejectReason = "BID_TOO_LOW"
	ReasonSelfBid            RejectReason = "SELF_BID"
)

// Rejection is the synchronous answer a bidder gets when a bid is not
// admissible. It is a validation outcome, not an infrastructure error.
type Rejection struct {
	Reason  RejectReason `json:"reason"`
	Message string       `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("bid rejected (%s): %s", r.Reason, r.Message)
}

// Snapshot is the consistent view of an auction the ledger hands to the
// validator: status as of serialization-unit acquisition plus the immutable
// listing fields.
type Snapshot struct {
	Status        auction.Status
	SellerID      string
	StartingPrice decimal.Decimal
}

// Proposal is a bid submission before it has been admitted
type Proposal struct {
	BidderID string
	Amount   decimal.Decimal
}

// Validate decides whether a proposed bid is admissible against a consistent
// auction snapshot and the current high bid (nil when none exists). Rules
// are checked in order and the first failure wins:
//
//  1. the auction must be open
//  2. the amount must exceed the starting price
//  3. the amount must exceed the current high bid, when one exists
//  4. the seller may not bid on their own listing
//
// Deterministic and side-effect free; returns nil on acceptance.
func Validate(snap Snapshot, highBid *types.Bid, proposed Proposal) *Rejection {
	if snap.Status != auction.StatusOpen {
		return &Rejection{
			Reason:  ReasonAuctionClosed,
			Message: "the auction has ended",
		}
	}

	if proposed.Amount.LessThanOrEqual(snap.StartingPrice) {
		return &Rejection{
			Reason:  ReasonBelowStartingPrice,
			Message: fmt.Sprintf("bid must exceed the starting price of %s", snap.StartingPrice.String()),
		}
	}

	if highBid != nil && proposed.Amount.LessThanOrEqual(highBid.Amount) {
		return &Rejection{
			Reason:  ReasonBidTooLow,
			Message: fmt.Sprintf("bid must exceed the current high bid of %s", highBid.Amount.String()),
		}
	}

	if proposed.BidderID == snap.SellerID {
		return &Rejection{
			Reason:  ReasonSelfBid,
			Message: "sellers may not bid on their own listing",
		}
	}

	return nil
}
