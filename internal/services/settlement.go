package services

import (
	"context"
	"errors"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// SettlementProcessor drives ended auctions to a terminal status, determines
// the winner, and issues refunds to every losing bidder in bounded batches.
// Every step commits through the same version CAS as bidding, so a sweep and
// a late bid can never both win the same race.
type SettlementProcessor struct {
	repo            domain.AuctionRepository
	wallet          domain.WalletService
	events          domain.EventPublisher
	stateCache      domain.AuctionStateCache
	refundBatchSize int
	maxAttempts     int
	log             logger.Logger
}

func NewSettlementProcessor(
	repo domain.AuctionRepository,
	wallet domain.WalletService,
	events domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	refundBatchSize int,
	maxAttempts int,
	log logger.Logger,
) *SettlementProcessor {
	return &SettlementProcessor{
		repo:            repo,
		wallet:          wallet,
		events:          events,
		stateCache:      stateCache,
		refundBatchSize: refundBatchSize,
		maxAttempts:     maxAttempts,
		log:             log,
	}
}

// SweepEndedAuctions is the periodic entry point: it claims every auction
// due for settlement and advances each as far as it can. Safe to call
// concurrently and redundantly; already processed auctions are no-ops and
// racing sweeps lose the CAS cleanly.
func (p *SettlementProcessor) SweepEndedAuctions(ctx context.Context, now time.Time, batchSize int) (int, error) {
	due, err := p.repo.ListSettleable(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, auction := range due {
		if err := p.ProcessEnded(ctx, auction.ID, now); err != nil {
			if domain.IsConflict(err) {
				// Another sweep or a racing bid owns this auction right
				// now; it stays due and the next pass retries.
				continue
			}
			p.log.Error("Settlement failed", "auction_id", auction.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// ActivateDueAuctions flips upcoming auctions whose start time has passed to
// active, under the same CAS discipline as every other write.
func (p *SettlementProcessor) ActivateDueAuctions(ctx context.Context, now time.Time, batchSize int) (int, error) {
	due, err := p.repo.ListStartDue(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, auction := range due {
		if err := domain.Transition(auction, domain.AuctionActive); err != nil {
			p.log.Error("Cannot activate auction", "auction_id", auction.ID,
				"status", auction.Status.String(), "error", err)
			continue
		}
		if err := p.commit(ctx, auction); err != nil {
			if !errors.Is(err, domain.ErrVersionConflict) {
				p.log.Error("Failed to activate auction", "auction_id", auction.ID, "error", err)
			}
			continue
		}
		activated++
		p.log.Info("Auction activated", "auction_id", auction.ID, "end_time", auction.EndTime)
	}
	return activated, nil
}

// ProcessEnded settles one auction. It is idempotent and resumable: each
// call advances the auction as far as it can (claim, decide, one refund
// batch) and a later call picks up where it left off. Calling it on an
// already processed auction is a no-op.
func (p *SettlementProcessor) ProcessEnded(ctx context.Context, auctionID string, now time.Time) error {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		done, err := p.step(ctx, auctionID, now)
		if errors.Is(err, domain.ErrVersionConflict) {
			// Another writer touched the auction; re-read and continue.
			continue
		}
		if err != nil || done {
			return err
		}
	}
	return domain.ErrTooMuchContention
}

// step performs at most one CAS-committed stage of settlement and reports
// whether the auction needs no further work right now.
func (p *SettlementProcessor) step(ctx context.Context, auctionID string, now time.Time) (bool, error) {
	auction, err := p.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return true, err
	}

	if auction.IsProcessed {
		if auction.Status != domain.AuctionCompleted && auction.Status != domain.AuctionExpired {
			p.log.Error("Processed flag set on a non-terminal auction",
				"auction_id", auction.ID, "status", auction.Status.String())
			return true, domain.ErrInvariantViolation
		}
		return true, nil
	}

	switch auction.Status {
	case domain.AuctionActive:
		if !domain.IsActionable(auction, now) {
			return true, nil
		}
		// Claim the auction. A concurrent bid or a concurrent sweep will
		// have bumped the version and this commit fails cleanly.
		if err := domain.Transition(auction, domain.AuctionEnded); err != nil {
			return true, err
		}
		if err := p.commit(ctx, auction); err != nil {
			return false, err
		}
		p.log.Info("Auction claimed for settlement", "auction_id", auction.ID)
		return false, nil

	case domain.AuctionEnded:
		if err := p.decide(ctx, auction, now); err != nil {
			return false, err
		}
		return false, nil

	case domain.AuctionCompleted, domain.AuctionExpired, domain.AuctionCancelled:
		return p.issueRefunds(ctx, auction, now)

	default:
		// Upcoming auctions are not settleable.
		return true, nil
	}
}

// decide picks the outcome of an ended auction: expired with no bids,
// expired with the top bid refunded when the reserve is unmet, or completed
// with a winner. Refund issuance happens afterwards, in batches.
func (p *SettlementProcessor) decide(ctx context.Context, auction *domain.Auction, now time.Time) error {
	switch {
	case auction.BidCount == 0:
		if err := domain.Transition(auction, domain.AuctionExpired); err != nil {
			return err
		}
		// No bids means no funds ever moved; nothing left to resume.
		auction.IsProcessed = true
		if err := p.commit(ctx, auction); err != nil {
			return err
		}
		p.publishTerminal(ctx, auction, now)
		p.log.Info("Auction expired with no bids", "auction_id", auction.ID)
		return nil

	case auction.ReservePrice != nil && auction.CurrentTopBid.LessThan(*auction.ReservePrice):
		// Reserve not met: the top bid does not win and is refunded like
		// any other losing bid.
		auction.DemoteTopBid()
		if err := domain.Transition(auction, domain.AuctionExpired); err != nil {
			return err
		}
		if err := p.commit(ctx, auction); err != nil {
			return err
		}
		p.publishTerminal(ctx, auction, now)
		p.log.Info("Auction expired below reserve", "auction_id", auction.ID,
			"top_bid", auction.CurrentTopBid.String(), "reserve", auction.ReservePrice.String())
		return nil

	default:
		top := auction.TopBid()
		if top == nil {
			p.log.Error("Ended auction has bids but no winning bid",
				"auction_id", auction.ID, "bid_count", auction.BidCount)
			return domain.ErrInvariantViolation
		}
		auction.WinnerID = top.UserID
		winning := top.Amount
		auction.WinningBid = &winning
		if err := domain.Transition(auction, domain.AuctionCompleted); err != nil {
			return err
		}
		if err := p.commit(ctx, auction); err != nil {
			return err
		}
		p.publishTerminal(ctx, auction, now)
		p.log.Info("Auction completed", "auction_id", auction.ID,
			"winner_id", auction.WinnerID, "winning_bid", winning.String())
		return nil
	}
}

// issueRefunds credits up to one batch of pending refunds and commits the
// acknowledgements. The processed flag is set only once every refunded bid
// has a durably recorded outcome; cancelled auctions simply drain to empty.
func (p *SettlementProcessor) issueRefunds(ctx context.Context, auction *domain.Auction, now time.Time) (bool, error) {
	pending := auction.PendingRefunds()
	if len(pending) == 0 {
		if auction.Status == domain.AuctionCancelled {
			return true, nil
		}
		auction.IsProcessed = true
		if err := p.commit(ctx, auction); err != nil {
			return false, err
		}
		p.log.Info("Auction settlement finished", "auction_id", auction.ID,
			"status", auction.Status.String())
		return true, nil
	}

	batch := pending
	if len(batch) > p.refundBatchSize {
		batch = batch[:p.refundBatchSize]
	}

	issued := 0
	for _, bid := range batch {
		if err := p.wallet.CreditRefund(ctx, bid.UserID, bid.NetAmount, bid.RefundRef); err != nil {
			// Leave this bid unacknowledged; the next sweep retries it
			// under the same refund reference.
			p.log.Warn("Refund credit failed, will retry",
				"auction_id", auction.ID, "bid_id", bid.ID,
				"refund_ref", bid.RefundRef, "error", err)
			continue
		}
		auction.MarkRefundIssued(bid.ID, now)
		issued++
		p.publish(ctx, &domain.Event{
			Name:      domain.EventRefundIssued,
			AuctionID: auction.ID,
			UserID:    bid.UserID,
			Amount:    &bid.NetAmount,
			RefundRef: bid.RefundRef,
			Timestamp: now,
		})
	}

	if issued > 0 {
		if err := p.commit(ctx, auction); err != nil {
			return false, err
		}
		p.log.Info("Refund batch issued", "auction_id", auction.ID,
			"issued", issued, "remaining", len(pending)-issued)
	}

	// More pending refunds (or failures to retry) mean the auction stays
	// settleable; a later invocation continues from here.
	if issued == len(pending) {
		return false, nil
	}
	return true, nil
}

func (p *SettlementProcessor) commit(ctx context.Context, auction *domain.Auction) error {
	expected := auction.Version
	if err := p.repo.UpdateAuctionCAS(ctx, auction, expected); err != nil {
		return err
	}
	if err := p.stateCache.SetAuctionStatus(ctx, auction.ID, auction.Status); err != nil {
		p.log.Warn("Failed to update status cache", "auction_id", auction.ID, "error", err)
	}
	return nil
}

func (p *SettlementProcessor) publishTerminal(ctx context.Context, auction *domain.Auction, now time.Time) {
	name := domain.EventAuctionExpired
	if auction.Status == domain.AuctionCompleted {
		name = domain.EventAuctionCompleted
	}
	event := &domain.Event{
		Name:      name,
		AuctionID: auction.ID,
		Timestamp: now,
	}
	if auction.Status == domain.AuctionCompleted {
		event.UserID = auction.WinnerID
		event.Amount = auction.WinningBid
	}
	p.publish(ctx, event)
}

func (p *SettlementProcessor) publish(ctx context.Context, event *domain.Event) {
	if err := p.events.PublishEvent(ctx, event); err != nil {
		p.log.Warn("Failed to publish event", "event", event.Name,
			"auction_id", event.AuctionID, "error", err)
	}
}
