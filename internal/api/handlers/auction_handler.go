package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	biddingService *services.BiddingService
	log            logger.Logger
}

func NewAuctionHandler(
	auctionManager *services.AuctionManager,
	biddingService *services.BiddingService,
	log logger.Logger,
) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		biddingService: biddingService,
		log:            log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListAuctions)
	g.GET("/auctions/:id", h.GetAuction)
	g.GET("/auctions/:id/bids", h.GetBidHistory)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
}

type CreateAuctionRequest struct {
	OwnerID          string           `json:"owner_id"`
	StartPrice       decimal.Decimal  `json:"start_price"`
	ReservePrice     *decimal.Decimal `json:"reserve_price,omitempty"`
	BidIncrement     decimal.Decimal  `json:"bid_increment"`
	FeePercentage    decimal.Decimal  `json:"fee_percentage"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	AutoExtend       bool             `json:"auto_extend"`
	ExtensionMinutes int              `json:"extension_minutes"`
}

type AuctionResponse struct {
	AuctionID        string           `json:"auction_id"`
	OwnerID          string           `json:"owner_id"`
	StartPrice       decimal.Decimal  `json:"start_price"`
	ReservePrice     *decimal.Decimal `json:"reserve_price,omitempty"`
	BidIncrement     decimal.Decimal  `json:"bid_increment"`
	FeePercentage    decimal.Decimal  `json:"fee_percentage"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	AutoExtend       bool             `json:"auto_extend"`
	Status           string           `json:"status"`
	CurrentTopBid    decimal.Decimal  `json:"current_top_bid"`
	CurrentTopBidder string           `json:"current_top_bidder,omitempty"`
	BidCount         int              `json:"bid_count"`
	WinnerID         string           `json:"winner_id,omitempty"`
	WinningBid       *decimal.Decimal `json:"winning_bid,omitempty"`
}

type PlaceBidRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if req.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, errorPayload("auction.create.missing_owner", "owner_id is required"))
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), services.CreateAuctionParams{
		OwnerID:          req.OwnerID,
		StartPrice:       req.StartPrice,
		ReservePrice:     req.ReservePrice,
		BidIncrement:     req.BidIncrement,
		FeePercentage:    req.FeePercentage,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		AutoExtend:       req.AutoExtend,
		ExtensionMinutes: req.ExtensionMinutes,
	}, time.Now())
	if err != nil {
		return h.writeDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctionManager.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	filter, bad := parseListFilter(c)
	if bad != nil {
		return c.JSON(http.StatusBadRequest, errorPayload(bad.code, bad.message))
	}

	auctions, err := h.auctionManager.ListAuctions(c.Request().Context(), filter)
	if err != nil {
		return h.writeDomainError(c, err)
	}

	out := make([]*AuctionResponse, 0, len(auctions))
	for _, auction := range auctions {
		out = append(out, toAuctionResponse(auction))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"auctions": out})
}

func (h *AuctionHandler) GetBidHistory(c echo.Context) error {
	bids, err := h.auctionManager.GetBidHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeDomainError(c, err)
	}

	type bidView struct {
		BidID    string          `json:"bid_id"`
		UserID   string          `json:"user_id"`
		Amount   decimal.Decimal `json:"amount"`
		Status   string          `json:"status"`
		PlacedAt time.Time       `json:"placed_at"`
	}
	out := make([]bidView, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidView{
			BidID:    b.ID,
			UserID:   b.UserID,
			Amount:   b.Amount,
			Status:   string(b.Status),
			PlacedAt: b.PlacedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"bids": out})
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorPayload("bid.place.invalid_body", "invalid request body"))
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorPayload("bid.place.missing_user", "user_id is required"))
	}

	result, err := h.biddingService.PlaceBid(c.Request().Context(),
		c.Param("id"), req.UserID, req.Amount, time.Now())
	if err != nil {
		return h.writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	if err := h.auctionManager.CancelAuction(c.Request().Context(), c.Param("id"), time.Now()); err != nil {
		return h.writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func (h *AuctionHandler) writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.JSON(http.StatusNotFound, errorPayload("auction.not_found", err.Error()))
	case errors.Is(err, domain.ErrInsufficientFunds):
		return c.JSON(http.StatusPaymentRequired, errorPayload("bid.insufficient_funds", err.Error()))
	case domain.IsValidation(err):
		return c.JSON(http.StatusUnprocessableEntity, errorPayload("auction.rejected", err.Error()))
	case domain.IsConflict(err):
		return c.JSON(http.StatusConflict, errorPayload("auction.conflict", err.Error()))
	case errors.Is(err, domain.ErrWalletUnavailable):
		return c.JSON(http.StatusServiceUnavailable, errorPayload("wallet.unavailable", "wallet service unavailable"))
	default:
		h.log.Error("Unhandled error", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, errorPayload("internal_error", "internal server error"))
	}
}

func writeError(c echo.Context, err *echo.HTTPError) error {
	return c.JSON(err.Code, errorPayload("request.invalid", err.Message.(string)))
}

func errorPayload(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message}
}

func toAuctionResponse(a *domain.Auction) *AuctionResponse {
	return &AuctionResponse{
		AuctionID:        a.ID,
		OwnerID:          a.OwnerID,
		StartPrice:       a.StartPrice,
		ReservePrice:     a.ReservePrice,
		BidIncrement:     a.BidIncrement,
		FeePercentage:    a.FeePercentage,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		AutoExtend:       a.AutoExtend,
		Status:           a.Status.String(),
		CurrentTopBid:    a.CurrentTopBid,
		CurrentTopBidder: a.CurrentTopBidder,
		BidCount:         a.BidCount,
		WinnerID:         a.WinnerID,
		WinningBid:       a.WinningBid,
	}
}

type badParam struct {
	code    string
	message string
}

func parseListFilter(c echo.Context) (domain.AuctionFilter, *badParam) {
	var filter domain.AuctionFilter

	if raw := c.QueryParam("status"); raw != "" {
		status, ok := parseStatus(raw)
		if !ok {
			return filter, &badParam{"auction.list.bad_status", "unknown status"}
		}
		filter.Status = &status
	}
	if raw := c.QueryParam("end_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, &badParam{"auction.list.bad_time", "end_after must be RFC3339"}
		}
		filter.EndAfter = &t
	}
	if raw := c.QueryParam("end_until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, &badParam{"auction.list.bad_time", "end_until must be RFC3339"}
		}
		filter.EndUntil = &t
	}
	filter.BidderID = c.QueryParam("bidder_id")

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, &badParam{"auction.list.bad_limit", "limit must be a positive integer"}
		}
		filter.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, &badParam{"auction.list.bad_offset", "offset must not be negative"}
		}
		filter.Offset = n
	}

	return filter, nil
}

func parseStatus(raw string) (domain.AuctionStatus, bool) {
	for _, s := range []domain.AuctionStatus{
		domain.AuctionUpcoming, domain.AuctionActive, domain.AuctionEnded,
		domain.AuctionCompleted, domain.AuctionExpired, domain.AuctionCancelled,
	} {
		if s.String() == raw {
			return s, true
		}
	}
	return 0, false
}
