package model

import "time"

const (
	PaymentSettlement = "settlement"
	PaymentDeposit    = "deposit"
	PaymentRefund     = "refund"
)

// PaymentRecord is one ledger line against a booking. Refunds are negative
// amounts written in the same transaction as the cancellation so a booking can
// never be cancelled twice with two refunds.
type PaymentRecord struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID  string    `json:"booking_id" bson:"booking_id" validate:"required"`
	Amount     int64     `json:"amount" bson:"amount"`
	Kind       string    `json:"kind" bson:"kind" validate:"required,oneof=settlement deposit refund"`
	Actor      string    `json:"actor" bson:"actor" validate:"required"`
	RecordedAt time.Time `json:"recorded_at" bson:"recorded_at"`
}
