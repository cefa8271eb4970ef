package domain

import (
	"fmt"
	"time"
)

// transitions is the single authority for legal status moves. Anything not
// listed here fails with ErrInvalidStatusTransition.
var transitions = map[AuctionStatus][]AuctionStatus{
	AuctionUpcoming:  {AuctionActive, AuctionCancelled},
	AuctionActive:    {AuctionEnded, AuctionCancelled},
	AuctionEnded:     {AuctionCompleted, AuctionExpired},
	AuctionCompleted: {},
	AuctionExpired:   {},
	AuctionCancelled: {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to AuctionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the auction to the target status or fails without
// mutating anything.
func Transition(a *Auction, to AuctionStatus) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, to)
	}
	a.Status = to
	return nil
}

// IsBiddable reports whether a bid may be accepted right now.
func IsBiddable(a *Auction, now time.Time) bool {
	return a.Status == AuctionActive && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// IsActionable reports whether the sweep must settle this auction: its time
// has elapsed but the status has not been advanced yet. Closing this window
// atomically is the sweep's job.
func IsActionable(a *Auction, now time.Time) bool {
	return a.Status == AuctionActive && !now.Before(a.EndTime)
}

// BiddableError translates a non-biddable auction into the specific
// rejection the caller should see.
func BiddableError(a *Auction, now time.Time) error {
	switch a.Status {
	case AuctionUpcoming:
		return ErrAuctionNotStarted
	case AuctionCancelled:
		return ErrAuctionCancelled
	case AuctionEnded, AuctionCompleted, AuctionExpired:
		return ErrAuctionEnded
	case AuctionActive:
		if now.Before(a.StartTime) {
			return ErrAuctionNotStarted
		}
		if !now.Before(a.EndTime) {
			return ErrAuctionEnded
		}
		return nil
	default:
		return ErrAuctionNotActive
	}
}
