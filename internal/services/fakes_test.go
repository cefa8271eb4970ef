package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory AuctionRepository with the same conditional-write
// semantics as the MySQL implementation: reads hand out deep copies and
// UpdateAuctionCAS only succeeds when the stored version still matches.
type fakeRepo struct {
	mu       sync.Mutex
	auctions map[string]*domain.Auction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{auctions: make(map[string]*domain.Auction)}
}

func copyAuction(a *domain.Auction) *domain.Auction {
	c := *a
	if a.ReservePrice != nil {
		v := *a.ReservePrice
		c.ReservePrice = &v
	}
	if a.WinningBid != nil {
		v := *a.WinningBid
		c.WinningBid = &v
	}
	if a.LastExtensionTime != nil {
		v := *a.LastExtensionTime
		c.LastExtensionTime = &v
	}
	c.Bids = make([]domain.Bid, len(a.Bids))
	copy(c.Bids, a.Bids)
	for i := range c.Bids {
		if a.Bids[i].RefundIssuedAt != nil {
			v := *a.Bids[i].RefundIssuedAt
			c.Bids[i].RefundIssuedAt = &v
		}
	}
	return &c
}

func (r *fakeRepo) CreateAuction(_ context.Context, auction *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.ID] = copyAuction(auction)
	return nil
}

func (r *fakeRepo) GetAuction(_ context.Context, auctionID string) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return copyAuction(a), nil
}

func (r *fakeRepo) UpdateAuctionCAS(_ context.Context, auction *domain.Auction, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.auctions[auction.ID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	c := copyAuction(auction)
	c.Version = expectedVersion + 1
	r.auctions[auction.ID] = c
	auction.Version++
	return nil
}

func (r *fakeRepo) ListStartDue(_ context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.Auction
	for _, a := range r.auctions {
		if a.Status == domain.AuctionUpcoming && !a.StartTime.After(now) {
			due = append(due, copyAuction(a))
		}
	}
	sortByID(due)
	return truncate(due, limit), nil
}

func (r *fakeRepo) ListSettleable(_ context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.Auction
	for _, a := range r.auctions {
		if settleable(a, now) {
			due = append(due, copyAuction(a))
		}
	}
	sortByID(due)
	return truncate(due, limit), nil
}

func settleable(a *domain.Auction, now time.Time) bool {
	switch a.Status {
	case domain.AuctionActive:
		return !now.Before(a.EndTime)
	case domain.AuctionEnded:
		return true
	case domain.AuctionCompleted, domain.AuctionExpired:
		return !a.IsProcessed
	case domain.AuctionCancelled:
		return len(a.PendingRefunds()) > 0
	default:
		return false
	}
}

func (r *fakeRepo) ListAuctions(_ context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Auction
	for _, a := range r.auctions {
		if matchesFilter(a, filter) {
			out = append(out, copyAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	return truncate(out, filter.Limit), nil
}

func matchesFilter(a *domain.Auction, filter domain.AuctionFilter) bool {
	if filter.Status != nil && a.Status != *filter.Status {
		return false
	}
	if filter.EndAfter != nil && a.EndTime.Before(*filter.EndAfter) {
		return false
	}
	if filter.EndUntil != nil && a.EndTime.After(*filter.EndUntil) {
		return false
	}
	if filter.BidderID == "" {
		return true
	}
	for _, b := range a.Bids {
		if b.UserID == filter.BidderID {
			return true
		}
	}
	return false
}

func (r *fakeRepo) GetBidHistory(_ context.Context, auctionID string) ([]domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return copyAuction(a).Bids, nil
}

// stored peeks at the authoritative record, bypassing the copy, for
// assertions only.
func (r *fakeRepo) stored(auctionID string) *domain.Auction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyAuction(r.auctions[auctionID])
}

func sortByID(auctions []*domain.Auction) {
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
}

func truncate(auctions []*domain.Auction, limit int) []*domain.Auction {
	if limit > 0 && len(auctions) > limit {
		return auctions[:limit]
	}
	return auctions
}

type refundRecord struct {
	userID string
	amount decimal.Decimal
}

// fakeWallet tracks holds and refunds. Refunds are idempotent on the refund
// reference, mirroring the real wallet contract.
type fakeWallet struct {
	mu           sync.Mutex
	nextRes      int
	reservations map[string]decimal.Decimal
	released     map[string]bool
	refunds      map[string]refundRecord

	insufficientUsers map[string]bool
	reserveErr        error
	refundFailures    int
	duplicateRefunds  int
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		reservations:      make(map[string]decimal.Decimal),
		released:          make(map[string]bool),
		refunds:           make(map[string]refundRecord),
		insufficientUsers: make(map[string]bool),
	}
}

func (w *fakeWallet) ReserveFunds(_ context.Context, userID string, amount decimal.Decimal) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reserveErr != nil {
		return "", w.reserveErr
	}
	if w.insufficientUsers[userID] {
		return "", domain.ErrInsufficientFunds
	}
	w.nextRes++
	id := fmt.Sprintf("res-%d", w.nextRes)
	w.reservations[id] = amount
	return id, nil
}

func (w *fakeWallet) ReleaseReservation(_ context.Context, reservationID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released[reservationID] = true
	return nil
}

func (w *fakeWallet) CreditRefund(_ context.Context, userID string, amount decimal.Decimal, refundRef string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refundFailures > 0 {
		w.refundFailures--
		return fmt.Errorf("wallet temporarily unavailable")
	}
	if _, ok := w.refunds[refundRef]; ok {
		w.duplicateRefunds++
		return nil
	}
	w.refunds[refundRef] = refundRecord{userID: userID, amount: amount}
	return nil
}

func (w *fakeWallet) refundCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.refunds)
}

func (w *fakeWallet) refundFor(refundRef string) (refundRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.refunds[refundRef]
	return rec, ok
}

func (w *fakeWallet) outstandingHolds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id := range w.reservations {
		if !w.released[id] {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) PublishEvent(_ context.Context, event *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

type fakeStateCache struct {
	mu       sync.Mutex
	statuses map[string]domain.AuctionStatus
}

func newFakeStateCache() *fakeStateCache {
	return &fakeStateCache{statuses: make(map[string]domain.AuctionStatus)}
}

func (c *fakeStateCache) SetAuctionStatus(_ context.Context, auctionID string, status domain.AuctionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[auctionID] = status
	return nil
}

func (c *fakeStateCache) GetAuctionStatus(_ context.Context, auctionID string) (domain.AuctionStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, found := c.statuses[auctionID]
	return status, found, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Fatal(string, ...interface{}) {}

var _ logger.Logger = nopLogger{}

// testEnv wires the three services over shared fakes the way main does over
// the real infrastructure.
type testEnv struct {
	repo       *fakeRepo
	wallet     *fakeWallet
	events     *fakePublisher
	stateCache *fakeStateCache
	bidding    *BiddingService
	settlement *SettlementProcessor
	manager    *AuctionManager
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:       newFakeRepo(),
		wallet:     newFakeWallet(),
		events:     &fakePublisher{},
		stateCache: newFakeStateCache(),
	}
	log := nopLogger{}
	env.bidding = NewBiddingService(env.repo, env.wallet, env.events, env.stateCache, 4, 5*time.Minute, log)
	env.settlement = NewSettlementProcessor(env.repo, env.wallet, env.events, env.stateCache, 100, 6, log)
	env.manager = NewAuctionManager(env.repo, env.events, env.stateCache, env.settlement, 10*time.Minute, 720*time.Hour, 4, log)
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedAuction stores an active auction directly, skipping creation
// validation, and returns its ID.
func (env *testEnv) seedAuction(a domain.Auction) string {
	if a.ID == "" {
		a.ID = fmt.Sprintf("auction-%d", len(env.repo.auctions)+1)
	}
	if a.CurrentTopBid.IsZero() {
		a.CurrentTopBid = decimal.Zero
	}
	env.repo.auctions[a.ID] = copyAuction(&a)
	env.stateCache.statuses[a.ID] = a.Status
	return a.ID
}

func activeAuction(now time.Time) domain.Auction {
	return domain.Auction{
		OwnerID:       "seller",
		StartPrice:    dec("100"),
		BidIncrement:  dec("50"),
		FeePercentage: dec("5"),
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		Status:        domain.AuctionActive,
	}
}
