package bidding

import (
	"testing"

	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/types"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func openSnapshot(sellerID string, startingPrice int64) Snapshot {
	return Snapshot{
		Status:        auction.StatusOpen,
		SellerID:      sellerID,
		StartingPrice: decimal.NewFromInt(startingPrice),
	}
}

func highBidOf(amount int64) *types.Bid {
	return &types.Bid{
		BidID:     "bid_existing",
		AuctionID: "a1",
		BidderID:  "bidder_x",
		Amount:    decimal.NewFromInt(amount),
		Sequence:  1,
	}
}

func TestValidate_AcceptsExceedingBid(t *testing.T) {
	snap := openSnapshot("seller", 100)

	rejection := Validate(snap, nil, Proposal{BidderID: "alice", Amount: decimal.NewFromInt(150)})
	check.Nil(t, rejection)

	rejection = Validate(snap, highBidOf(150), Proposal{BidderID: "bob", Amount: decimal.NewFromInt(200)})
	check.Nil(t, rejection)
}

func TestValidate_ClosedAuction(t *testing.T) {
	snap := openSnapshot("seller", 100)
	snap.Status = auction.StatusClosed

	rejection := Validate(snap, nil, Proposal{BidderID: "alice", Amount: decimal.NewFromInt(500)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonAuctionClosed, rejection.Reason)
}

func TestValidate_StartingPriceMustBeExceeded(t *testing.T) {
	snap := openSnapshot("seller", 100)

	// Equal to the starting price is not enough
	rejection := Validate(snap, nil, Proposal{BidderID: "alice", Amount: decimal.NewFromInt(100)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonBelowStartingPrice, rejection.Reason)

	rejection = Validate(snap, nil, Proposal{BidderID: "alice", Amount: decimal.NewFromInt(99)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonBelowStartingPrice, rejection.Reason)
}

func TestValidate_HighBidMustBeExceeded(t *testing.T) {
	snap := openSnapshot("seller", 100)

	// Matching the current high bid loses to the earlier bidder
	rejection := Validate(snap, highBidOf(150), Proposal{BidderID: "bob", Amount: decimal.NewFromInt(150)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonBidTooLow, rejection.Reason)

	rejection = Validate(snap, highBidOf(150), Proposal{BidderID: "bob", Amount: decimal.NewFromInt(120)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonBidTooLow, rejection.Reason)
}

func TestValidate_SelfBid(t *testing.T) {
	snap := openSnapshot("seller", 100)

	rejection := Validate(snap, nil, Proposal{BidderID: "seller", Amount: decimal.NewFromInt(500)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonSelfBid, rejection.Reason)
}

func TestValidate_RulePrecedence(t *testing.T) {
	// A bid can violate several rules at once; the first rule in the order
	// closed, below-start, too-low, self-bid names the rejection
	closed := openSnapshot("seller", 100)
	closed.Status = auction.StatusClosed

	tests := []struct {
		name     string
		snap     Snapshot
		highBid  *types.Bid
		proposed Proposal
		want     RejectReason
	}{
		{
			name:     "closed wins over below starting price",
			snap:     closed,
			proposed: Proposal{BidderID: "alice", Amount: decimal.NewFromInt(10)},
			want:     ReasonAuctionClosed,
		},
		{
			name:     "closed wins over self bid",
			snap:     closed,
			proposed: Proposal{BidderID: "seller", Amount: decimal.NewFromInt(500)},
			want:     ReasonAuctionClosed,
		},
		{
			name:     "below starting price wins over too low",
			snap:     openSnapshot("seller", 100),
			highBid:  highBidOf(150),
			proposed: Proposal{BidderID: "alice", Amount: decimal.NewFromInt(50)},
			want:     ReasonBelowStartingPrice,
		},
		{
			name:     "below starting price wins over self bid",
			snap:     openSnapshot("seller", 100),
			proposed: Proposal{BidderID: "seller", Amount: decimal.NewFromInt(50)},
			want:     ReasonBelowStartingPrice,
		},
		{
			name:     "too low wins over self bid",
			snap:     openSnapshot("seller", 100),
			highBid:  highBidOf(200),
			proposed: Proposal{BidderID: "seller", Amount: decimal.NewFromInt(150)},
			want:     ReasonBidTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rejection := Validate(tt.snap, tt.highBid, tt.proposed)
			check.NotNil(t, rejection)
			check.Equal(t, tt.want, rejection.Reason)
		})
	}
}

func TestValidate_EscalationSequence(t *testing.T) {
	// Item listed at 100: an opening bid of 150 stands, a matching 150
	// loses, 200 takes the lead, and anything after the close bounces
	snap := openSnapshot("seller", 100)

	rejection := Validate(snap, nil, Proposal{BidderID: "alice", Amount: decimal.NewFromInt(150)})
	check.Nil(t, rejection)

	rejection = Validate(snap, highBidOf(150), Proposal{BidderID: "bob", Amount: decimal.NewFromInt(150)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonBidTooLow, rejection.Reason)

	rejection = Validate(snap, highBidOf(150), Proposal{BidderID: "carol", Amount: decimal.NewFromInt(200)})
	check.Nil(t, rejection)

	snap.Status = auction.StatusClosed
	rejection = Validate(snap, highBidOf(200), Proposal{BidderID: "dave", Amount: decimal.NewFromInt(120)})
	check.NotNil(t, rejection)
	check.Equal(t, ReasonAuctionClosed, rejection.Reason)
}
