package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestPlaceBid_HappyPath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	result, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)
	check.Equal(t, id, result.AuctionID)
	check.True(t, result.Amount.Equal(dec("150")))
	check.False(t, result.Extended)

	result, err = env.bidding.PlaceBid(ctx, id, "bob", dec("250"), now.Add(time.Minute))
	assert.NoError(t, err)
	check.True(t, result.Amount.Equal(dec("250")))

	stored := env.repo.stored(id)
	check.Equal(t, 2, stored.BidCount)
	check.Equal(t, "bob", stored.CurrentTopBidder)
	check.True(t, stored.CurrentTopBid.Equal(dec("250")))

	// The outbid bid carries a refund instruction; the new top does not.
	check.Equal(t, domain.BidRefunded, stored.Bids[0].Status)
	check.NotEqual(t, "", stored.Bids[0].RefundRef)
	check.Equal(t, domain.BidWinning, stored.Bids[1].Status)
	check.Equal(t, "", stored.Bids[1].RefundRef)

	check.Equal(t, []string{
		domain.EventBidPlaced,
		domain.EventBidPlaced,
		domain.EventBidOutbid,
	}, env.events.names())
}

func TestPlaceBid_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	_, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		amount decimal.Decimal
		want   error
	}{
		{"zero amount", "bob", decimal.Zero, domain.ErrInvalidBidAmount},
		{"negative amount", "bob", dec("-10"), domain.ErrInvalidBidAmount},
		{"owner bids", "seller", dec("500"), domain.ErrSelfBidding},
		{"below minimum", "bob", dec("180"), domain.ErrBelowMinimumBid},
		{"equal to top", "bob", dec("150"), domain.ErrDuplicateBid},
		{"top bidder repeats own amount", "alice", dec("150"), domain.ErrAlreadyHighestBidder},
		{"top bidder undercuts self", "alice", dec("120"), domain.ErrAlreadyHighestBidder},
		{"unknown auction", "bob", dec("200"), domain.ErrAuctionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := id
			if tt.want == domain.ErrAuctionNotFound {
				target = "auction-missing"
			}
			_, err := env.bidding.PlaceBid(ctx, target, tt.userID, tt.amount, now)
			check.True(t, errors.Is(err, tt.want))
		})
	}

	// Nothing above got committed.
	check.Equal(t, 1, env.repo.stored(id).BidCount)
}

func TestPlaceBid_TopBidderMayRaiseOwnBid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	_, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)
	_, err = env.bidding.PlaceBid(ctx, id, "alice", dec("200"), now)
	assert.NoError(t, err)

	stored := env.repo.stored(id)
	check.Equal(t, "alice", stored.CurrentTopBidder)
	check.True(t, stored.CurrentTopBid.Equal(dec("200")))
	check.Equal(t, 2, stored.BidCount)
}

func TestPlaceBid_Lifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()

	upcoming := activeAuction(now)
	upcoming.Status = domain.AuctionUpcoming
	upcoming.StartTime = now.Add(time.Hour)
	upcoming.EndTime = now.Add(2 * time.Hour)
	upcomingID := env.seedAuction(upcoming)

	closed := activeAuction(now)
	closed.EndTime = now.Add(-time.Minute)
	closedID := env.seedAuction(closed)
	// The cache still says active; the authoritative read decides.
	env.stateCache.SetAuctionStatus(ctx, closedID, domain.AuctionActive)

	cancelled := activeAuction(now)
	cancelled.Status = domain.AuctionCancelled
	cancelledID := env.seedAuction(cancelled)

	_, err := env.bidding.PlaceBid(ctx, upcomingID, "bob", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrAuctionNotStarted))

	_, err = env.bidding.PlaceBid(ctx, closedID, "bob", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrAuctionEnded))

	_, err = env.bidding.PlaceBid(ctx, cancelledID, "bob", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrAuctionCancelled))

	// No wallet hold was ever taken for a rejected bid.
	check.Equal(t, 0, env.wallet.outstandingHolds())
}

func TestPlaceBid_StaleUpcomingCacheFallsThrough(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	// Activation commits the store first and a failed cache refresh is only
	// logged, so the cache can say upcoming for an auction that is live. The
	// stale entry must not outlive the authoritative read.
	env.stateCache.SetAuctionStatus(ctx, id, domain.AuctionUpcoming)

	result, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)
	check.True(t, result.Amount.Equal(dec("150")))
	check.Equal(t, 1, env.repo.stored(id).BidCount)
}

func TestPlaceBid_InsufficientFunds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))
	env.wallet.insufficientUsers["alice"] = true

	_, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	check.Equal(t, 0, env.repo.stored(id).BidCount)
}

func TestPlaceBid_WalletDownFailsClosed(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))
	env.wallet.reserveErr = fmt.Errorf("connection refused")

	_, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrWalletUnavailable))
	check.Equal(t, 0, env.repo.stored(id).BidCount)
	check.Equal(t, 0, len(env.events.names()))
}

func TestPlaceBid_ConflictReleasesReservationAndRetries(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	// Bump the stored version between alice's read and her commit, once.
	raced := false
	env.bidding.repo = repoHook{
		AuctionRepository: env.repo,
		beforeCAS: func() {
			if raced {
				return
			}
			raced = true
			stored := env.repo.stored(id)
			stored.BidCount++
			if err := env.repo.UpdateAuctionCAS(ctx, stored, stored.Version); err != nil {
				t.Fatalf("raced update: %v", err)
			}
		},
	}

	result, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)
	check.True(t, result.Amount.Equal(dec("150")))

	// Two holds were taken, the first attempt's was released with its failed
	// commit, and exactly one survives for the committed bid.
	check.Equal(t, 1, env.wallet.outstandingHolds())
}

// repoHook runs a callback just before every conditional write, to stage
// interleavings the fakes cannot produce on their own.
type repoHook struct {
	domain.AuctionRepository
	beforeCAS func()
}

func (h repoHook) UpdateAuctionCAS(ctx context.Context, auction *domain.Auction, expectedVersion int64) error {
	h.beforeCAS()
	return h.AuctionRepository.UpdateAuctionCAS(ctx, auction, expectedVersion)
}

func TestPlaceBid_GivesUpUnderSustainedContention(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	env.bidding.repo = repoHook{
		AuctionRepository: env.repo,
		beforeCAS: func() {
			stored := env.repo.stored(id)
			if err := env.repo.UpdateAuctionCAS(ctx, stored, stored.Version); err != nil {
				t.Fatalf("raced update: %v", err)
			}
		},
	}

	_, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	check.True(t, errors.Is(err, domain.ErrTooMuchContention))
	// Every attempt's hold was compensated.
	check.Equal(t, 0, env.wallet.outstandingHolds())
}

func TestPlaceBid_Concurrent(t *testing.T) {
	env := newTestEnv()
	// Enough retry headroom that every strictly increasing bid lands.
	env.bidding.maxAttempts = 64
	ctx := context.Background()
	now := time.Now()
	id := env.seedAuction(activeAuction(now))

	const bidders = 8
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := dec("150").Add(decimal.NewFromInt(int64(i * 100)))
			_, err := env.bidding.PlaceBid(ctx, id, fmt.Sprintf("user-%d", i), amount, now)
			// Lower bids may find themselves below the current minimum by
			// the time they commit; that is a valid serialized outcome.
			if err != nil && !errors.Is(err, domain.ErrBelowMinimumBid) && !errors.Is(err, domain.ErrDuplicateBid) {
				t.Errorf("user-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored := env.repo.stored(id)

	// The highest bid always wins and every version of the ledger agreed on
	// exactly one winning bid.
	check.Equal(t, fmt.Sprintf("user-%d", bidders-1), stored.CurrentTopBidder)
	check.True(t, stored.CurrentTopBid.Equal(dec("850")))
	check.Equal(t, len(stored.Bids), stored.BidCount)

	winning := 0
	for _, b := range stored.Bids {
		if b.Status == domain.BidWinning {
			winning++
		} else {
			check.Equal(t, domain.BidRefunded, b.Status)
			check.Equal(t, domain.RefundRefFor(b.ID), b.RefundRef)
		}
	}
	check.Equal(t, 1, winning)

	// Amounts recorded in the ledger are strictly increasing.
	for i := 1; i < len(stored.Bids); i++ {
		check.True(t, stored.Bids[i].Amount.GreaterThan(stored.Bids[i-1].Amount))
	}
}

func TestPlaceBid_ExtendsNearDeadline(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()

	a := activeAuction(now)
	a.AutoExtend = true
	a.ExtensionMinutes = 5
	a.EndTime = now.Add(time.Minute)
	id := env.seedAuction(a)

	result, err := env.bidding.PlaceBid(ctx, id, "alice", dec("150"), now)
	assert.NoError(t, err)
	check.True(t, result.Extended)
	check.Equal(t, now.Add(5*time.Minute), result.EndTime)

	stored := env.repo.stored(id)
	check.Equal(t, now.Add(5*time.Minute), stored.EndTime)
	check.NotNil(t, stored.LastExtensionTime)

	// A later bid still inside the new window extends again.
	later := stored.EndTime.Add(-time.Minute)
	result, err = env.bidding.PlaceBid(ctx, id, "bob", dec("250"), later)
	assert.NoError(t, err)
	check.True(t, result.Extended)
	check.Equal(t, later.Add(5*time.Minute), result.EndTime)
}
