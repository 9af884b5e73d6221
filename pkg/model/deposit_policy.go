package model

import "math"

const (
	DepositPercent = "percent"
	DepositFixed   = "fixed"
)

// DepositPolicy requires a partial payment for bookings whose room count falls
// in [MinRooms, MaxRooms]. At most one active policy may cover any given room
// count; overlap is rejected at creation time.
type DepositPolicy struct {
	ID       string `json:"id,omitempty" bson:"_id,omitempty"`
	MinRooms int    `json:"min_rooms" bson:"min_rooms" validate:"required,min=1"`
	MaxRooms int    `json:"max_rooms" bson:"max_rooms" validate:"required,gtefield=MinRooms"`
	Type     string `json:"type" bson:"type" validate:"required,oneof=percent fixed"`
	Value    int64  `json:"value" bson:"value" validate:"required,min=1"`
	Active   bool   `json:"active" bson:"active"`
}

// Covers reports whether rooms falls inside the policy bracket.
func (p *DepositPolicy) Covers(rooms int) bool {
	return rooms >= p.MinRooms && rooms <= p.MaxRooms
}

// Overlaps reports whether two brackets share any room count.
func (p *DepositPolicy) Overlaps(other *DepositPolicy) bool {
	return p.MinRooms <= other.MaxRooms && other.MinRooms <= p.MaxRooms
}

// DepositFor computes the required deposit in minor units for the given total.
func (p *DepositPolicy) DepositFor(totalPrice int64) int64 {
	if p.Type == DepositFixed {
		return p.Value
	}
	return int64(math.Round(float64(totalPrice) * float64(p.Value) / 100.0))
}
