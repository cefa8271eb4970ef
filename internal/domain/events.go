package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names published to the sink. Delivery is fire-and-forget; the
// engine never blocks or fails an operation on the sink.
const (
	EventAuctionCreated   = "auction.created"
	EventBidPlaced        = "bid.placed"
	EventBidOutbid        = "bid.outbid"
	EventAuctionExtended  = "auction.extended"
	EventAuctionCompleted = "auction.completed"
	EventAuctionExpired   = "auction.expired"
	EventRefundIssued     = "auction.refund.issued"
	EventAuctionCancelled = "auction.cancelled"
)

type Event struct {
	Name      string           `json:"name"`
	AuctionID string           `json:"auction_id"`
	UserID    string           `json:"user_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	RefundRef string           `json:"refund_ref,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
