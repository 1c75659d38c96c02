package bidding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openlot/auction-api/internal/auction"
	"github.com/openlot/auction-api/internal/notification"
	"github.com/openlot/auction-api/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrSubmitTimeout means the bid never reached the serialization unit;
	// nothing was written and the caller may retry.
	ErrSubmitTimeout = errors.New("timed out waiting to submit bid")
)

// Ledger is the single source of truth for each auction's bid history and
// current high bid. Submissions for the same auction are serialized through
// a per-auction semaphore acquired in arrival order; submissions for
// different auctions never contend.
type Ledger struct {
	db          *Database
	dispatcher  notification.Dispatcher
	waitTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*auctionEntry
}

// auctionEntry holds the serialization unit and the cached commit state for
// one auction. The cache is only read and written while holding the
// semaphore.
type auctionEntry struct {
	sem     chan struct{}
	loaded  bool
	highBid *types.Bid
	nextSeq int64
}

// NewLedger creates a ledger over the given database connection.
// waitTimeout bounds how long Submit may wait for the serialization unit;
// zero means wait as long as the caller's context allows.
func NewLedger(gormDB *gorm.DB, dispatcher notification.Dispatcher, waitTimeout time.Duration) *Ledger {
	return &Ledger{
		db:          NewDatabase(gormDB),
		dispatcher:  dispatcher,
		waitTimeout: waitTimeout,
		entries:     make(map[string]*auctionEntry),
	}
}

func (l *Ledger) entry(auctionID string) *auctionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[auctionID]
	if !ok {
		e = &auctionEntry{sem: make(chan struct{}, 1)}
		l.entries[auctionID] = e
	}
	return e
}

// Submit serializes, validates and commits one bid. Exactly one of the three
// results is non-zero: the committed bid, a validation rejection, or an
// infrastructure error. A timeout while waiting for the serialization unit
// leaves no partial state.
func (l *Ledger) Submit(ctx context.Context, auctionID string, proposed Proposal) (*types.Bid, *Rejection, error) {
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	e := l.entry(auctionID)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ErrSubmitTimeout
	}
	defer func() { <-e.sem }()

	a, err := l.db.GetAuction(auctionID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, ErrAuctionNotFound
	}

	if !e.loaded {
		if err := l.load(e, auctionID); err != nil {
			return nil, nil, err
		}
	}

	snap := Snapshot{
		Status:        auction.StatusAt(a, time.Now()),
		SellerID:      a.SellerID,
		StartingPrice: a.StartingPrice,
	}

	if rejection := Validate(snap, e.highBid, proposed); rejection != nil {
		log.Debug().
			Str("auction_id", auctionID).
			Str("bidder_id", proposed.BidderID).
			Str("amount", proposed.Amount.String()).
			Str("reason", string(rejection.Reason)).
			Str("service", "bidding").
			Msg("bid rejected")
		return nil, rejection, nil
	}

	bid := &types.Bid{
		BidID:     uuid.New().String(),
		AuctionID: auctionID,
		BidderID:  proposed.BidderID,
		Amount:    proposed.Amount,
		Sequence:  e.nextSeq,
		PlacedAt:  time.Now(),
	}

	if err := l.db.CommitBid(bid); err != nil {
		return nil, nil, err
	}

	displaced := e.highBid
	e.highBid = bid
	e.nextSeq++

	log.Info().
		Str("auction_id", auctionID).
		Str("bid_id", bid.BidID).
		Str("bidder_id", bid.BidderID).
		Str("amount", bid.Amount.String()).
		Int64("sequence", bid.Sequence).
		Str("service", "bidding").
		Msg("bid committed")

	// Best-effort notifications; never block or fail the commit
	l.dispatcher.Notify(a.SellerID, notification.EventBidPlaced, map[string]interface{}{
		"auction_id": auctionID,
		"title":      a.Title,
		"amount":     bid.Amount.String(),
		"sequence":   bid.Sequence,
	})

	if displaced != nil && displaced.BidderID != bid.BidderID {
		l.dispatcher.Notify(displaced.BidderID, notification.EventOutbid, map[string]interface{}{
			"auction_id": auctionID,
			"title":      a.Title,
			"amount":     bid.Amount.String(),
			"your_bid":   displaced.Amount.String(),
		})
	}

	return bid, nil, nil
}

// HighBid returns the current high bid for an auction without competing with
// submissions for the serialization unit
func (l *Ledger) HighBid(auctionID string) (*types.Bid, error) {
	return l.db.GetHighBid(auctionID)
}

// load primes the cached high bid and next sequence from the database the
// first time an auction sees a submission after startup
func (l *Ledger) load(e *auctionEntry, auctionID string) error {
	highBid, err := l.db.GetHighBid(auctionID)
	if err != nil {
		return err
	}
	e.highBid = highBid
	e.nextSeq = 1
	if highBid != nil {
		e.nextSeq = highBid.Sequence + 1
	}
	e.loaded = true
	return nil
}
