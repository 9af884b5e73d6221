package model

import "time"

// Waitlist entry statuses. PENDING entries are ranked FIFO; NOTIFIED entries
// hold a time-boxed priority claim on freed inventory until ExpiresAt.
// CONVERTED and EXPIRED are terminal.
const (
	WaitlistPending   = "PENDING"
	WaitlistNotified  = "NOTIFIED"
	WaitlistConverted = "CONVERTED"
	WaitlistExpired   = "EXPIRED"
)

// WaitlistEntry is a pending request for dates with no inventory. An empty
// RoomTypeID means the user will take any room type covering the range.
// ExpiresAt is only ever set on the transition to NOTIFIED.
type WaitlistEntry struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID     string    `json:"user_id" bson:"user_id" validate:"required,min=1,max=64"`
	RoomTypeID string    `json:"room_type_id,omitempty" bson:"room_type_id,omitempty" validate:"omitempty,max=64"`
	StartDate  time.Time `json:"start_date" bson:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" bson:"end_date" validate:"required,gtfield=StartDate"`
	Guests     int       `json:"guests" bson:"guests" validate:"required,min=1,max=100"`
	GuestType  string    `json:"guest_type" bson:"guest_type" validate:"required,oneof=REGULAR VIP CORPORATE"`
	Status     string    `json:"status" bson:"status" validate:"required,oneof=PENDING NOTIFIED CONVERTED EXPIRED"`
	NotifiedAt time.Time `json:"notified_at,omitempty" bson:"notified_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// ActiveWaitlist reports whether the entry still occupies a waitlist slot.
func (e *WaitlistEntry) ActiveWaitlist() bool {
	return e.Status == WaitlistPending || e.Status == WaitlistNotified
}
