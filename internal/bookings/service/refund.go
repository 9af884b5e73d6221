package service

import (
	"math"
	"time"

	"innkeep/pkg/config"
	"innkeep/pkg/model"
)

// RefundQuote is the cancellation outcome for a booking at a given instant.
// The fee is charged against the total price; the refund can never exceed
// what was actually paid, never exceeds the total price, and never goes
// negative.
type RefundQuote struct {
	NoticeHours  int   `json:"notice_hours"`
	FeePercent   int   `json:"fee_percent"`
	FeeAmount    int64 `json:"fee_amount"`
	RefundAmount int64 `json:"refund_amount"`
}

// RefundCalculator resolves the refund tier for a cancellation. It is a pure
// function of the stored booking and the clock; it never reads anything else,
// so quoting and charging always agree.
type RefundCalculator struct {
	tiers []config.RefundTier
}

// NewRefundCalculator takes tiers sorted by notice descending with a 0-hour
// catch-all last, as produced by config.ParseRefundTiers.
func NewRefundCalculator(tiers []config.RefundTier) *RefundCalculator {
	return &RefundCalculator{tiers: tiers}
}

func (c *RefundCalculator) Quote(booking *model.Booking, now time.Time) *RefundQuote {
	noticeHours := int(booking.StartDate.Sub(now).Hours())

	tier := c.tiers[len(c.tiers)-1]
	for _, t := range c.tiers {
		if noticeHours >= t.MinNoticeHours {
			tier = t
			break
		}
	}

	fee := int64(math.Round(float64(booking.TotalPrice) * float64(tier.FeePercent) / 100.0))
	// An overpaying settlement must not inflate the refund past the price
	// of the stay.
	base := booking.PaidAmount
	if base > booking.TotalPrice {
		base = booking.TotalPrice
	}
	refund := base - fee
	if refund < 0 {
		refund = 0
	}

	return &RefundQuote{
		NoticeHours:  noticeHours,
		FeePercent:   tier.FeePercent,
		FeeAmount:    fee,
		RefundAmount: refund,
	}
}
