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

type BiddingService struct {
	repo            domain.AuctionRepository
	wallet          domain.WalletService
	events          domain.EventPublisher
	stateCache      domain.AuctionStateCache
	maxAttempts     int
	extensionWindow time.Duration
	log             logger.Logger
}

func NewBiddingService(
	repo domain.AuctionRepository,
	wallet domain.WalletService,
	events domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	maxAttempts int,
	extensionWindow time.Duration,
	log logger.Logger,
) *BiddingService {
	return &BiddingService{
		repo:            repo,
		wallet:          wallet,
		events:          events,
		stateCache:      stateCache,
		maxAttempts:     maxAttempts,
		extensionWindow: extensionWindow,
		log:             log,
	}
}

// PlaceBid runs the full bid acceptance path: validate against a fresh read,
// hold the gross amount with the wallet, then commit with a conditional
// write on the auction version. On a lost race the reservation is released
// and the whole validation re-runs against a fresh read, up to maxAttempts.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal, now time.Time) (*domain.BidResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidBidAmount
	}

	// Cheap pre-read rejection from the status cache, only for statuses the
	// auction can never come back from. Anything else falls through to the
	// authoritative read below: a cached "upcoming" may be stale, since
	// activation commits the store first and a failed cache refresh is only
	// logged.
	if status, found, err := s.stateCache.GetAuctionStatus(ctx, auctionID); err == nil && found && closedForBidding(status) {
		return nil, statusRejection(status)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		result, err := s.tryPlaceBid(ctx, auctionID, userID, amount, now)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.log.Debug("Bid commit lost the race, retrying",
				"auction_id", auctionID, "user_id", userID, "attempt", attempt+1)
			continue
		}
		return result, err
	}

	s.log.Warn("Bid gave up after repeated version conflicts",
		"auction_id", auctionID, "user_id", userID, "attempts", s.maxAttempts)
	return nil, domain.ErrTooMuchContention
}

func (s *BiddingService) tryPlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal, now time.Time) (*domain.BidResult, error) {
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	expectedVersion := auction.Version

	if err := s.validateBid(auction, userID, amount, now); err != nil {
		return nil, err
	}

	// Hold the gross amount before anything is committed. If the wallet is
	// down or the balance is short, no bid exists and nothing moved.
	reservationID, err := s.wallet.ReserveFunds(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrWalletUnavailable, err)
	}

	quote := domain.QuoteFee(amount, auction.FeePercentage)
	bid := domain.Bid{
		ID:            utils.GenerateID("bid"),
		AuctionID:     auction.ID,
		UserID:        userID,
		Amount:        amount,
		Fee:           quote.Fee,
		NetAmount:     quote.NetAmount,
		Status:        domain.BidActive,
		ReservationID: reservationID,
		PlacedAt:      now,
	}
	demoted := auction.ApplyBid(bid)

	decision := domain.DecideExtension(auction, now, s.extensionWindow)
	if decision.Extend {
		auction.EndTime = decision.NewEndTime
		extendedAt := now
		auction.LastExtensionTime = &extendedAt
	}

	if err := s.repo.UpdateAuctionCAS(ctx, auction, expectedVersion); err != nil {
		// The hold for this attempt must not survive the failed commit,
		// or a retry would double-reserve the bidder's balance.
		if relErr := s.wallet.ReleaseReservation(ctx, reservationID); relErr != nil {
			s.log.Error("Failed to release reservation after commit failure",
				"reservation_id", reservationID, "auction_id", auctionID, "error", relErr)
		}
		return nil, err
	}

	s.publish(ctx, &domain.Event{
		Name:      domain.EventBidPlaced,
		AuctionID: auction.ID,
		UserID:    userID,
		Amount:    &amount,
		Timestamp: now,
	})
	if demoted != nil {
		s.publish(ctx, &domain.Event{
			Name:      domain.EventBidOutbid,
			AuctionID: auction.ID,
			UserID:    demoted.UserID,
			Amount:    &demoted.Amount,
			Timestamp: now,
		})
	}
	if decision.Extend {
		endTime := auction.EndTime
		s.publish(ctx, &domain.Event{
			Name:      domain.EventAuctionExtended,
			AuctionID: auction.ID,
			EndTime:   &endTime,
			Timestamp: now,
		})
		s.log.Info("Auction extended", "auction_id", auction.ID, "new_end_time", auction.EndTime)
	}

	s.log.Info("Bid accepted", "auction_id", auction.ID, "user_id", userID,
		"amount", amount.String(), "bid_count", auction.BidCount)

	return &domain.BidResult{
		AuctionID: auction.ID,
		BidID:     bid.ID,
		UserID:    userID,
		Amount:    amount,
		EndTime:   auction.EndTime,
		Extended:  decision.Extend,
	}, nil
}

func (s *BiddingService) validateBid(a *domain.Auction, userID string, amount decimal.Decimal, now time.Time) error {
	if !domain.IsBiddable(a, now) {
		return domain.BiddableError(a, now)
	}
	if userID == a.OwnerID {
		return domain.ErrSelfBidding
	}
	// Re-raising your own top bid is allowed, but only above your current
	// amount; matching or undercutting it is a no-op bid.
	if a.CurrentTopBidder == userID && !amount.GreaterThan(a.CurrentTopBid) {
		return domain.ErrAlreadyHighestBidder
	}
	if a.BidCount > 0 && amount.Equal(a.CurrentTopBid) {
		return domain.ErrDuplicateBid
	}
	if amount.LessThan(domain.MinimumNextBid(a)) {
		return domain.ErrBelowMinimumBid
	}
	return nil
}

// publish is fire-and-forget: sink failures are logged, never surfaced.
func (s *BiddingService) publish(ctx context.Context, event *domain.Event) {
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warn("Failed to publish event", "event", event.Name,
			"auction_id", event.AuctionID, "error", err)
	}
}

// closedForBidding reports whether a cached status alone justifies
// rejecting a bid without reading the aggregate.
func closedForBidding(status domain.AuctionStatus) bool {
	return status == domain.AuctionEnded || status.Terminal()
}

func statusRejection(status domain.AuctionStatus) error {
	if status == domain.AuctionCancelled {
		return domain.ErrAuctionCancelled
	}
	return domain.ErrAuctionEnded
}
