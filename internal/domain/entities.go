package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus int

const (
	AuctionUpcoming AuctionStatus = iota
	AuctionActive
	AuctionEnded
	AuctionCompleted
	AuctionExpired
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionUpcoming:
		return "upcoming"
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionCompleted:
		return "completed"
	case AuctionExpired:
		return "expired"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further status transition is possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionCompleted || s == AuctionExpired || s == AuctionCancelled
}

type BidStatus string

const (
	BidActive   BidStatus = "active"
	BidWinning  BidStatus = "winning"
	BidRefunded BidStatus = "refunded"
)

// Bid is an append-only ledger row. Once created only Status and the refund
// bookkeeping fields may change.
type Bid struct {
	ID        string
	AuctionID string
	UserID    string
	Amount    decimal.Decimal
	// Fee and NetAmount are derived once at creation so the amount charged
	// and the amount refunded always come from the same rounding.
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
	Status    BidStatus
	// ReservationID references the wallet hold taken for this bid.
	ReservationID string
	// RefundRef is the idempotency key for the wallet credit. It is derived
	// from the bid ID, so re-issuing a refund batch cannot double-credit.
	RefundRef      string
	RefundIssuedAt *time.Time
	PlacedAt       time.Time
}

// Auction is the aggregate root. Version is the optimistic lock token bumped
// by every successful conditional write.
type Auction struct {
	ID      string
	OwnerID string

	StartPrice    decimal.Decimal
	ReservePrice  *decimal.Decimal
	BidIncrement  decimal.Decimal
	FeePercentage decimal.Decimal

	StartTime         time.Time
	EndTime           time.Time
	AutoExtend        bool
	ExtensionMinutes  int
	LastExtensionTime *time.Time

	CurrentTopBid    decimal.Decimal
	CurrentTopBidder string
	BidCount         int
	Bids             []Bid

	Status      AuctionStatus
	IsProcessed bool
	WinnerID    string
	WinningBid  *decimal.Decimal

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BidResult is the summary returned to the caller of PlaceBid.
type BidResult struct {
	AuctionID string          `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	EndTime   time.Time       `json:"end_time"`
	Extended  bool            `json:"extended"`
}

// AuctionFilter narrows the read-only auction listing.
type AuctionFilter struct {
	Status   *AuctionStatus
	EndAfter *time.Time
	EndUntil *time.Time
	BidderID string
	Limit    int
	Offset   int
}
