package auction

import (
	"testing"
	"time"

	"github.com/openlot/auction-api/internal/types"
	"github.com/peterldowns/testy/check"
)

func TestStatusAt_BeforeEndTime(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.Auction{AuctionID: "a1", EndTime: end}

	check.Equal(t, StatusOpen, StatusAt(a, end.Add(-time.Hour)))
	check.Equal(t, StatusOpen, StatusAt(a, end.Add(-time.Nanosecond)))
}

func TestStatusAt_AtAndAfterEndTime(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.Auction{AuctionID: "a1", EndTime: end}

	// The instant of the end time is already closed
	check.Equal(t, StatusClosed, StatusAt(a, end))
	check.Equal(t, StatusClosed, StatusAt(a, end.Add(time.Nanosecond)))
	check.Equal(t, StatusClosed, StatusAt(a, end.Add(24*time.Hour)))
}

func TestStatusAt_NeverReopens(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.Auction{AuctionID: "a1", EndTime: end}

	// Derived purely from the clock reading, so later reads can only move
	// forward through the lifecycle
	check.Equal(t, StatusClosed, StatusAt(a, end.Add(time.Second)))
	check.Equal(t, StatusClosed, StatusAt(a, end.Add(time.Minute)))
}

func TestIsOpen(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.Auction{AuctionID: "a1", EndTime: end}

	check.True(t, IsOpen(a, end.Add(-time.Second)))
	check.False(t, IsOpen(a, end))
	check.False(t, IsOpen(a, end.Add(time.Second)))
}
