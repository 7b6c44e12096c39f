package services

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Split is a total divided between the platform and the seller, in minor units
type Split struct {
	Total      int64
	Commission int64
	Seller     int64
	Percent    decimal.Decimal
}

// Breakdown is the display form of a Split in major currency units
type Breakdown struct {
	Total             decimal.Decimal `json:"total"`
	PlatformFee       decimal.Decimal `json:"platformFee"`
	SellerAmount      decimal.Decimal `json:"sellerAmount"`
	CommissionPercent decimal.Decimal `json:"commissionPercent"`
}

// SplitCommission computes commission = round(total * percent / 100) to the nearest minor
// unit (two decimals in major units) and derives the seller share by subtraction, so
// Commission + Seller == Total always holds.
func SplitCommission(total int64, percent decimal.Decimal) Split {
	commission := decimal.NewFromInt(total).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	return Split{
		Total:      total,
		Commission: commission,
		Seller:     total - commission,
		Percent:    percent,
	}
}

// Breakdown converts the split to major units for display
func (s Split) Breakdown() Breakdown {
	return Breakdown{
		Total:             minorToMajor(s.Total),
		PlatformFee:       minorToMajor(s.Commission),
		SellerAmount:      minorToMajor(s.Seller),
		CommissionPercent: s.Percent,
	}
}

// MarshalJSON renders amounts with exactly two decimals, e.g. "0.10" rather than "0.1"
func (b Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total             string `json:"total"`
		PlatformFee       string `json:"platformFee"`
		SellerAmount      string `json:"sellerAmount"`
		CommissionPercent string `json:"commissionPercent"`
	}{
		Total:             b.Total.StringFixed(2),
		PlatformFee:       b.PlatformFee.StringFixed(2),
		SellerAmount:      b.SellerAmount.StringFixed(2),
		CommissionPercent: b.CommissionPercent.String(),
	})
}

func minorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
