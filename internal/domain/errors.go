package domain

import "errors"

// Validation errors: client-correctable, never retried automatically.
var (
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrInvalidBidAmount        = errors.New("bid amount must be positive")
	ErrBelowMinimumBid         = errors.New("bid is below the minimum next bid")
	ErrDuplicateBid            = errors.New("bid equals the current top bid")
	ErrAlreadyHighestBidder    = errors.New("bidder already holds the top bid at this amount")
	ErrSelfBidding             = errors.New("owner cannot bid on own auction")
	ErrAuctionNotActive        = errors.New("auction is not active")
	ErrAuctionNotStarted       = errors.New("auction has not started")
	ErrAuctionEnded            = errors.New("auction has ended")
	ErrAuctionCancelled        = errors.New("auction is cancelled")
	ErrInvalidTimeRange        = errors.New("end time must be after start time")
	ErrDurationTooShort        = errors.New("auction duration is below the minimum")
	ErrDurationTooLong         = errors.New("auction duration exceeds the maximum")
	ErrInvalidFeePercentage    = errors.New("fee percentage must be between 0 and 100")
	ErrInvalidBidIncrement     = errors.New("bid increment must be at least one smallest unit")
	ErrInvalidStartPrice       = errors.New("start price must not be negative")
	ErrInvalidReservePrice     = errors.New("reserve price must not be negative")
	ErrInvalidExtensionMinutes = errors.New("extension minutes must be between 1 and 60")
)

// State conflicts: retried internally up to a bound, then surfaced.
var (
	ErrVersionConflict         = errors.New("auction was modified concurrently")
	ErrTooMuchContention       = errors.New("auction is under heavy contention, try again")
	ErrInvalidStatusTransition = errors.New("invalid auction status transition")
)

// External dependency failures.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for bid")
	ErrWalletUnavailable = errors.New("wallet service unavailable")
)

// ErrInvariantViolation marks a state that should be unreachable. It is never
// swallowed; callers abort without side effects and log it loudly.
var ErrInvariantViolation = errors.New("auction invariant violated")

// IsValidation reports whether err is a client-correctable rejection.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrInvalidBidAmount, ErrBelowMinimumBid, ErrDuplicateBid,
		ErrAlreadyHighestBidder, ErrSelfBidding, ErrAuctionNotActive,
		ErrAuctionNotStarted, ErrAuctionEnded, ErrAuctionCancelled,
		ErrInvalidTimeRange, ErrDurationTooShort, ErrDurationTooLong,
		ErrInvalidFeePercentage, ErrInvalidBidIncrement, ErrInvalidStartPrice,
		ErrInvalidReservePrice, ErrInvalidExtensionMinutes,
		ErrInvalidStatusTransition,
	} {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err is a transient concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrTooMuchContention)
}
