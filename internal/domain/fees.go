package domain

import "github.com/shopspring/decimal"

// moneyPlaces is the number of decimal places of the smallest currency unit.
const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to the smallest currency unit, half up. Every money
// rounding in the engine goes through here so that a charge and its refund
// can never disagree.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// FeeQuote is the fee breakdown of a single bid. Amount = Fee + NetAmount
// holds exactly.
type FeeQuote struct {
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
}

// QuoteFee computes the platform fee for a bid amount at the auction's fee
// percentage. The net amount is the remainder, so no money is created or
// destroyed by rounding.
func QuoteFee(amount, feePercentage decimal.Decimal) FeeQuote {
	fee := RoundMoney(amount.Mul(feePercentage).Div(hundred))
	return FeeQuote{
		Amount:    amount,
		Fee:       fee,
		NetAmount: amount.Sub(fee),
	}
}

// MinimumNextBid is the lowest acceptable amount for the next bid: the
// current top plus the increment, or the start price while the ledger is
// still empty.
func MinimumNextBid(a *Auction) decimal.Decimal {
	if a.BidCount == 0 {
		return a.StartPrice
	}
	return a.CurrentTopBid.Add(a.BidIncrement)
}
