package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// HTTPWalletService talks to the external wallet over JSON/HTTP. The engine
// fails closed on any wallet trouble: no bid is recorded unless the hold was
// confirmed.
type HTTPWalletService struct {
	baseURL string
	client  *http.Client
}

func NewHTTPWalletService(baseURL string, timeout time.Duration) *HTTPWalletService {
	return &HTTPWalletService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type reserveRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type reserveResponse struct {
	ReservationID string `json:"reservation_id"`
}

type refundRequest struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	RefundRef string          `json:"refund_ref"`
}

func (w *HTTPWalletService) ReserveFunds(ctx context.Context, userID string, amount decimal.Decimal) (string, error) {
	body, err := json.Marshal(reserveRequest{UserID: userID, Amount: amount})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/reservations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrWalletUnavailable, err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", domain.ErrInsufficientFunds
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out reserveResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("%w: decoding reservation: %v", domain.ErrWalletUnavailable, err)
		}
		return out.ReservationID, nil
	default:
		return "", fmt.Errorf("%w: reserve returned %d", domain.ErrWalletUnavailable, resp.StatusCode)
	}
}

func (w *HTTPWalletService) ReleaseReservation(ctx context.Context, reservationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		w.baseURL+"/reservations/"+reservationID, nil)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWalletUnavailable, err)
	}
	defer drain(resp)

	// A missing reservation was already released; that is the outcome we
	// wanted.
	if resp.StatusCode == http.StatusNotFound ||
		(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("%w: release returned %d", domain.ErrWalletUnavailable, resp.StatusCode)
}

func (w *HTTPWalletService) CreditRefund(ctx context.Context, userID string, amount decimal.Decimal, refundRef string) error {
	body, err := json.Marshal(refundRequest{UserID: userID, Amount: amount, RefundRef: refundRef})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWalletUnavailable, err)
	}
	defer drain(resp)

	// 409 means the wallet already credited this refund reference, which is
	// exactly the idempotency we rely on when re-issuing a batch.
	if resp.StatusCode == http.StatusConflict ||
		(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("%w: refund returned %d", domain.ErrWalletUnavailable, resp.StatusCode)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
