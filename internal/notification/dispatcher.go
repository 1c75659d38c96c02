package notification

import (
	"github.com/rs/zerolog/log"
)

// Event identifies what happened; the payload carries the specifics
type Event string

const (
	EventBidPlaced     Event = "bid_placed"
	EventOutbid        Event = "outbid"
	EventAuctionWon    Event = "auction_won"
	EventAuctionUnsold Event = "auction_unsold"
	EventSaleCompleted Event = "sale_completed"
	EventPaymentFailed Event = "payment_failed"
)

// Dispatcher delivers user-facing notifications. Delivery is fire-and-forget
// and best effort: implementations must never block the caller on delivery
// and a missed notification is not an error the core acts on.
type Dispatcher interface {
	Notify(userID string, event Event, payload map[string]interface{})
}

// LogDispatcher writes notifications to the structured log. It is the
// fallback when no broker is configured and the double used in tests.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Notify(userID string, event Event, payload map[string]interface{}) {
	log.Info().
		Str("user_id", userID).
		Str("event", string(event)).
		Interface("payload", payload).
		Str("component", "notification").
		Msg("notification dispatched")
}
