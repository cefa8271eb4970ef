package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// MySQLAuctionRepository persists the auction aggregate: one auctions row
// carrying the version lock token plus ordered child rows in bids. All
// mutations after creation go through the conditional write in
// UpdateAuctionCAS.
type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

const auctionColumns = `id, owner_id, start_price, reserve_price, bid_increment, fee_percentage,
        start_time, end_time, auto_extend, extension_minutes, last_extension_time,
        current_top_bid, current_top_bidder, bid_count, status, is_processed,
        winner_id, winning_bid, version, created_at, updated_at`

const bidColumns = `id, auction_id, seq, user_id, amount, fee, net_amount, status,
        reservation_id, refund_ref, refund_issued_at, placed_at`

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.OwnerID,
		auction.StartPrice, nullDecimal(auction.ReservePrice),
		auction.BidIncrement, auction.FeePercentage,
		auction.StartTime, auction.EndTime,
		auction.AutoExtend, auction.ExtensionMinutes, auction.LastExtensionTime,
		auction.CurrentTopBid, nullString(auction.CurrentTopBidder),
		auction.BidCount, int(auction.Status), auction.IsProcessed,
		nullString(auction.WinnerID), nullDecimal(auction.WinningBid),
		auction.Version, auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}

	bids, err := r.GetBidHistory(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	auction.Bids = bids
	return auction, nil
}

// UpdateAuctionCAS commits the aggregate in one transaction: a conditional
// update on the auctions row (version must still match) plus an upsert of
// every bid row. RowsAffected zero means a lost race, never a partial write.
func (r *MySQLAuctionRepository) UpdateAuctionCAS(ctx context.Context, auction *domain.Auction, expectedVersion int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        UPDATE auctions SET
            end_time = ?, last_extension_time = ?,
            current_top_bid = ?, current_top_bidder = ?, bid_count = ?,
            status = ?, is_processed = ?, winner_id = ?, winning_bid = ?,
            version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `
	res, err := tx.ExecContext(ctx, query,
		auction.EndTime, auction.LastExtensionTime,
		auction.CurrentTopBid, nullString(auction.CurrentTopBidder), auction.BidCount,
		int(auction.Status), auction.IsProcessed,
		nullString(auction.WinnerID), nullDecimal(auction.WinningBid),
		time.Now(), auction.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	upsert := `
        INSERT INTO bids (` + bidColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            status = VALUES(status),
            refund_ref = VALUES(refund_ref),
            refund_issued_at = VALUES(refund_issued_at)
    `
	for seq, bid := range auction.Bids {
		_, err := tx.ExecContext(ctx, upsert,
			bid.ID, auction.ID, seq, bid.UserID,
			bid.Amount, bid.Fee, bid.NetAmount, string(bid.Status),
			bid.ReservationID, nullString(bid.RefundRef), bid.RefundIssuedAt,
			bid.PlacedAt)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	auction.Version++
	return nil
}

func (r *MySQLAuctionRepository) ListStartDue(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	query := `
        SELECT id FROM auctions
        WHERE status = ? AND start_time <= ?
        ORDER BY start_time ASC
        LIMIT ?
    `
	return r.loadByIDQuery(ctx, query, int(domain.AuctionUpcoming), now, limit)
}

func (r *MySQLAuctionRepository) ListSettleable(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	// Four shapes of pending work: elapsed actives to claim, claimed but
	// undecided, decided but with refunds outstanding, and cancelled
	// auctions still draining refunds.
	query := `
        SELECT a.id FROM auctions a
        WHERE (a.status = ? AND a.end_time <= ?)
           OR a.status = ?
           OR (a.status IN (?, ?) AND a.is_processed = FALSE)
           OR (a.status = ? AND EXISTS (
                 SELECT 1 FROM bids b
                 WHERE b.auction_id = a.id AND b.status = 'refunded'
                   AND b.refund_issued_at IS NULL))
        ORDER BY a.end_time ASC
        LIMIT ?
    `
	return r.loadByIDQuery(ctx, query,
		int(domain.AuctionActive), now,
		int(domain.AuctionEnded),
		int(domain.AuctionCompleted), int(domain.AuctionExpired),
		int(domain.AuctionCancelled),
		limit)
}

func (r *MySQLAuctionRepository) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "a.status = ?")
		args = append(args, int(*filter.Status))
	}
	if filter.EndAfter != nil {
		conditions = append(conditions, "a.end_time >= ?")
		args = append(args, *filter.EndAfter)
	}
	if filter.EndUntil != nil {
		conditions = append(conditions, "a.end_time <= ?")
		args = append(args, *filter.EndUntil)
	}
	if filter.BidderID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM bids b WHERE b.auction_id = a.id AND b.user_id = ?)")
		args = append(args, filter.BidderID)
	}

	query := "SELECT a.id FROM auctions a"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.end_time ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return r.loadByIDQuery(ctx, query, args...)
}

func (r *MySQLAuctionRepository) GetBidHistory(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ? ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var bid domain.Bid
		var seq int
		var status string
		var refundRef sql.NullString
		var refundIssuedAt sql.NullTime

		err := rows.Scan(&bid.ID, &bid.AuctionID, &seq, &bid.UserID,
			&bid.Amount, &bid.Fee, &bid.NetAmount, &status,
			&bid.ReservationID, &refundRef, &refundIssuedAt, &bid.PlacedAt)
		if err != nil {
			return nil, err
		}

		bid.Status = domain.BidStatus(status)
		if refundRef.Valid {
			bid.RefundRef = refundRef.String
		}
		if refundIssuedAt.Valid {
			issued := refundIssuedAt.Time
			bid.RefundIssuedAt = &issued
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func (r *MySQLAuctionRepository) loadByIDQuery(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	auctions := make([]*domain.Auction, 0, len(ids))
	for _, id := range ids {
		auction, err := r.GetAuction(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrAuctionNotFound) {
				continue
			}
			return nil, fmt.Errorf("load auction %s: %w", id, err)
		}
		auctions = append(auctions, auction)
	}
	return auctions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status int
	var reservePrice, winningBid decimal.NullDecimal
	var topBidder, winnerID sql.NullString
	var lastExtension sql.NullTime

	err := row.Scan(
		&auction.ID, &auction.OwnerID,
		&auction.StartPrice, &reservePrice,
		&auction.BidIncrement, &auction.FeePercentage,
		&auction.StartTime, &auction.EndTime,
		&auction.AutoExtend, &auction.ExtensionMinutes, &lastExtension,
		&auction.CurrentTopBid, &topBidder,
		&auction.BidCount, &status, &auction.IsProcessed,
		&winnerID, &winningBid,
		&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if reservePrice.Valid {
		reserve := reservePrice.Decimal
		auction.ReservePrice = &reserve
	}
	if winningBid.Valid {
		winning := winningBid.Decimal
		auction.WinningBid = &winning
	}
	if topBidder.Valid {
		auction.CurrentTopBidder = topBidder.String
	}
	if winnerID.Valid {
		auction.WinnerID = winnerID.String
	}
	if lastExtension.Valid {
		extended := lastExtension.Time
		auction.LastExtensionTime = &extended
	}
	return &auction, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
