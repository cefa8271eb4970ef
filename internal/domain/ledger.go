package domain

import (
	"fmt"
	"time"
)

// ApplyBid appends an accepted bid to the ledger, demotes the previous top
// bid to refunded with a recorded refund instruction, and promotes the new
// bid to winning. It returns the demoted bid, if any, so the caller can
// notify the outbid user.
//
// The caller has already validated the bid; ApplyBid only mutates.
func (a *Auction) ApplyBid(bid Bid) *Bid {
	var demoted *Bid
	if prev := a.TopBid(); prev != nil {
		prev.Status = BidRefunded
		prev.RefundRef = RefundRefFor(prev.ID)
		demoted = prev
	}

	bid.Status = BidWinning
	a.Bids = append(a.Bids, bid)
	a.CurrentTopBid = bid.Amount
	a.CurrentTopBidder = bid.UserID
	a.BidCount++
	return demoted
}

// TopBid returns the single winning bid, or nil while the ledger is empty or
// after the top bid has been demoted.
func (a *Auction) TopBid() *Bid {
	for i := len(a.Bids) - 1; i >= 0; i-- {
		if a.Bids[i].Status == BidWinning {
			return &a.Bids[i]
		}
	}
	return nil
}

// DemoteTopBid routes the current top bid through the refund path. Used at
// settlement when the reserve is not met and when cancelling an auction
// that already has bids.
func (a *Auction) DemoteTopBid() *Bid {
	top := a.TopBid()
	if top == nil {
		return nil
	}
	top.Status = BidRefunded
	top.RefundRef = RefundRefFor(top.ID)
	return top
}

// PendingRefunds lists refunded bids whose wallet credit has not been
// acknowledged yet, in chronological order.
func (a *Auction) PendingRefunds() []*Bid {
	var pending []*Bid
	for i := range a.Bids {
		if a.Bids[i].Status == BidRefunded && a.Bids[i].RefundIssuedAt == nil {
			pending = append(pending, &a.Bids[i])
		}
	}
	return pending
}

// MarkRefundIssued records the wallet acknowledgement for one bid.
func (a *Auction) MarkRefundIssued(bidID string, at time.Time) {
	for i := range a.Bids {
		if a.Bids[i].ID == bidID {
			issued := at
			a.Bids[i].RefundIssuedAt = &issued
			return
		}
	}
}

// RefundRefFor derives the wallet idempotency key for a bid's refund. Being
// a pure function of the bid ID, a partially failed batch can be re-issued
// without double-crediting.
func RefundRefFor(bidID string) string {
	return fmt.Sprintf("refund-%s", bidID)
}
