package model

import (
	"time"
)

// Booking statuses. A booking is created PROVISIONAL while payment is pending,
// and only ever moves PROVISIONAL->CONFIRMED, PROVISIONAL->CANCELLED,
// CONFIRMED->CANCELLED or CONFIRMED->COMPLETED. Terminal rows are immutable.
const (
	BookingProvisional = "PROVISIONAL"
	BookingConfirmed   = "CONFIRMED"
	BookingCancelled   = "CANCELLED"
	BookingCompleted   = "COMPLETED"
)

// Guest types as reported by the membership service. The engine never derives
// these itself.
const (
	GuestRegular   = "REGULAR"
	GuestVIP       = "VIP"
	GuestCorporate = "CORPORATE"
)

type Booking struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID        string    `json:"user_id" bson:"user_id" validate:"required,min=1,max=64"`
	RoomTypeID    string    `json:"room_type_id" bson:"room_type_id" validate:"required,min=1,max=64"`
	StartDate     time.Time `json:"start_date" bson:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" bson:"end_date" validate:"required,gtfield=StartDate"`
	RoomsBooked   int       `json:"rooms_booked" bson:"rooms_booked" validate:"required,min=1,max=100"`
	GuestType     string    `json:"guest_type" bson:"guest_type" validate:"required,oneof=REGULAR VIP CORPORATE"`
	Status        string    `json:"status" bson:"status" validate:"required,oneof=PROVISIONAL CONFIRMED CANCELLED COMPLETED"`
	TotalPrice    int64     `json:"total_price" bson:"total_price" validate:"min=0"`
	DepositAmount int64     `json:"deposit_amount" bson:"deposit_amount" validate:"min=0"`
	PaidAmount    int64     `json:"paid_amount" bson:"paid_amount" validate:"min=0"`
	ConfirmedBy   string    `json:"confirmed_by,omitempty" bson:"confirmed_by,omitempty"`
	CancelledBy   string    `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelledAt   time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Nights returns the number of nights covered by the half-open stay range.
func (b *Booking) Nights() int {
	return int(Day(b.EndDate).Sub(Day(b.StartDate)).Hours() / 24)
}

// Active reports whether the booking currently holds inventory.
func (b *Booking) Active() bool {
	return b.Status == BookingProvisional || b.Status == BookingConfirmed
}
