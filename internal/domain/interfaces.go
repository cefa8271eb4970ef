package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	// UpdateAuctionCAS persists the aggregate only if the stored version
	// still equals expectedVersion, bumping it on success. Returns
	// ErrVersionConflict on a lost race.
	UpdateAuctionCAS(ctx context.Context, auction *Auction, expectedVersion int64) error
	// ListStartDue returns upcoming auctions whose start time has passed.
	ListStartDue(ctx context.Context, now time.Time, limit int) ([]*Auction, error)
	// ListSettleable returns auctions the sweep must touch: active past
	// their end time, ended but undecided, decided but with refunds still
	// outstanding, and cancelled auctions with unissued refunds.
	ListSettleable(ctx context.Context, now time.Time, limit int) ([]*Auction, error)
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]*Auction, error)
	GetBidHistory(ctx context.Context, auctionID string) ([]Bid, error)
}

// WalletService is the external funds collaborator. The engine only holds,
// releases and credits; the ledger itself is not ours.
type WalletService interface {
	// ReserveFunds places a hold for the gross bid amount and returns a
	// reservation reference, or ErrInsufficientFunds.
	ReserveFunds(ctx context.Context, userID string, amount decimal.Decimal) (string, error)
	ReleaseReservation(ctx context.Context, reservationID string) error
	// CreditRefund is idempotent on refundRef.
	CreditRefund(ctx context.Context, userID string, amount decimal.Decimal, refundRef string) error
}

// Event interface
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *Event) error
}

// Cache interface
type AuctionStateCache interface {
	SetAuctionStatus(ctx context.Context, auctionID string, status AuctionStatus) error
	// GetAuctionStatus reports found=false on a cache miss; callers fall
	// through to the repository, never treat a miss as a status.
	GetAuctionStatus(ctx context.Context, auctionID string) (status AuctionStatus, found bool, err error)
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}
