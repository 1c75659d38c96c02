package auction

import (
	"time"

	"github.com/openlot/auction-api/internal/types"
)

// Status is an auction's lifecycle state, derived from its end time
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// StatusAt derives the lifecycle status of an auction at the given instant.
// It is a pure function of now vs the stored end time: nothing is cached, so
// every caller sees the same answer for the same clock reading and an
// auction reports Closed forever once its end time has passed.
func StatusAt(a *types.Auction, now time.Time) Status {
	if now.Before(a.EndTime) {
		return StatusOpen
	}
	return StatusClosed
}

// IsOpen reports whether the auction accepts bids at the given instant
func IsOpen(a *types.Auction, now time.Time) bool {
	return StatusAt(a, now) == StatusOpen
}
