package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

// AuctionManager owns auction lifecycle operations that are not bids:
// creation, cancellation and the read-only query surface.
type AuctionManager struct {
	repo        domain.AuctionRepository
	events      domain.EventPublisher
	stateCache  domain.AuctionStateCache
	settlement  *SettlementProcessor
	minDuration time.Duration
	maxDuration time.Duration
	maxAttempts int
	log         logger.Logger
}

type CreateAuctionParams struct {
	OwnerID          string
	StartPrice       decimal.Decimal
	ReservePrice     *decimal.Decimal
	BidIncrement     decimal.Decimal
	FeePercentage    decimal.Decimal
	StartTime        time.Time
	EndTime          time.Time
	AutoExtend       bool
	ExtensionMinutes int
}

func NewAuctionManager(
	repo domain.AuctionRepository,
	events domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	settlement *SettlementProcessor,
	minDuration, maxDuration time.Duration,
	maxAttempts int,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		repo:        repo,
		events:      events,
		stateCache:  stateCache,
		settlement:  settlement,
		minDuration: minDuration,
		maxDuration: maxDuration,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

func (m *AuctionManager) CreateAuction(ctx context.Context, params CreateAuctionParams, now time.Time) (*domain.Auction, error) {
	if err := m.validateParams(params); err != nil {
		return nil, err
	}

	status := domain.AuctionUpcoming
	if !params.StartTime.After(now) {
		status = domain.AuctionActive
	}

	minutes := params.ExtensionMinutes
	if !params.AutoExtend {
		minutes = 0
	}

	auction := &domain.Auction{
		ID:               utils.GenerateID("auction"),
		OwnerID:          params.OwnerID,
		StartPrice:       params.StartPrice,
		ReservePrice:     params.ReservePrice,
		BidIncrement:     params.BidIncrement,
		FeePercentage:    params.FeePercentage,
		StartTime:        params.StartTime,
		EndTime:          params.EndTime,
		AutoExtend:       params.AutoExtend,
		ExtensionMinutes: minutes,
		CurrentTopBid:    decimal.Zero,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.repo.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}
	if err := m.stateCache.SetAuctionStatus(ctx, auction.ID, auction.Status); err != nil {
		m.log.Warn("Failed to seed status cache", "auction_id", auction.ID, "error", err)
	}
	m.publish(ctx, &domain.Event{
		Name:      domain.EventAuctionCreated,
		AuctionID: auction.ID,
		UserID:    auction.OwnerID,
		Timestamp: now,
	})

	m.log.Info("Auction created", "auction_id", auction.ID,
		"status", auction.Status.String(), "end_time", auction.EndTime)
	return auction, nil
}

func (m *AuctionManager) validateParams(params CreateAuctionParams) error {
	if !params.EndTime.After(params.StartTime) {
		return domain.ErrInvalidTimeRange
	}
	duration := params.EndTime.Sub(params.StartTime)
	if duration < m.minDuration {
		return domain.ErrDurationTooShort
	}
	if duration > m.maxDuration {
		return domain.ErrDurationTooLong
	}
	if params.StartPrice.IsNegative() {
		return domain.ErrInvalidStartPrice
	}
	if params.ReservePrice != nil && params.ReservePrice.IsNegative() {
		return domain.ErrInvalidReservePrice
	}
	// One smallest currency unit, i.e. 0.01.
	if params.BidIncrement.LessThan(decimal.New(1, -2)) {
		return domain.ErrInvalidBidIncrement
	}
	if params.FeePercentage.IsNegative() || params.FeePercentage.GreaterThan(decimal.NewFromInt(100)) {
		return domain.ErrInvalidFeePercentage
	}
	if params.AutoExtend && (params.ExtensionMinutes < 1 || params.ExtensionMinutes > 60) {
		return domain.ErrInvalidExtensionMinutes
	}
	return nil
}

// CancelAuction cancels an upcoming or active auction. With zero bids the
// transition is immediate; with bids every outstanding bid is first routed
// through the same refund path settlement uses, and any remainder is drained
// by subsequent sweeps.
func (m *AuctionManager) CancelAuction(ctx context.Context, auctionID string, now time.Time) error {
	var cancelled *domain.Auction
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		auction, err := m.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		expected := auction.Version

		auction.DemoteTopBid()
		if err := domain.Transition(auction, domain.AuctionCancelled); err != nil {
			return err
		}

		if err := m.repo.UpdateAuctionCAS(ctx, auction, expected); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return err
		}
		cancelled = auction
		break
	}
	if cancelled == nil {
		return domain.ErrTooMuchContention
	}

	if err := m.stateCache.SetAuctionStatus(ctx, auctionID, domain.AuctionCancelled); err != nil {
		m.log.Warn("Failed to update status cache", "auction_id", auctionID, "error", err)
	}
	m.publish(ctx, &domain.Event{
		Name:      domain.EventAuctionCancelled,
		AuctionID: auctionID,
		Timestamp: now,
	})
	m.log.Info("Auction cancelled", "auction_id", auctionID, "bid_count", cancelled.BidCount)

	if cancelled.BidCount > 0 {
		// Issue the refunds immediately; a partial batch resumes on the
		// next sweep, exactly like an expired auction.
		if err := m.settlement.ProcessEnded(ctx, auctionID, now); err != nil {
			return fmt.Errorf("cancel refunds: %w", err)
		}
	}
	return nil
}

func (m *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return m.repo.GetAuction(ctx, auctionID)
}

func (m *AuctionManager) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	return m.repo.ListAuctions(ctx, filter)
}

func (m *AuctionManager) GetBidHistory(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	return m.repo.GetBidHistory(ctx, auctionID)
}

func (m *AuctionManager) publish(ctx context.Context, event *domain.Event) {
	if err := m.events.PublishEvent(ctx, event); err != nil {
		m.log.Warn("Failed to publish event", "event", event.Name,
			"auction_id", event.AuctionID, "error", err)
	}
}
