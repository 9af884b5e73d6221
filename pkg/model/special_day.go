package model

import "time"

const (
	RuleBlocked     = "blocked"
	RuleSpecialRate = "special_rate"

	RateMultiplier = "multiplier"
	RateFixed      = "fixed"
)

// SpecialDay overrides booking rules for one date. An empty RoomTypeID applies
// the override to every room type. Blocked days hard-reject stays that touch
// them; special-rate days only warn that pricing differs.
type SpecialDay struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty"`
	Date       time.Time `json:"date" bson:"date" validate:"required"`
	RoomTypeID string    `json:"room_type_id,omitempty" bson:"room_type_id,omitempty" validate:"omitempty,max=64"`
	RuleType   string    `json:"rule_type" bson:"rule_type" validate:"required,oneof=blocked special_rate"`
	RateType   string    `json:"rate_type,omitempty" bson:"rate_type,omitempty" validate:"omitempty,oneof=multiplier fixed"`
	RateValue  int64     `json:"rate_value,omitempty" bson:"rate_value,omitempty" validate:"omitempty,min=1"`
	Active     bool      `json:"active" bson:"active"`
}

// AppliesTo reports whether the override covers the given room type.
func (s *SpecialDay) AppliesTo(roomTypeID string) bool {
	return s.RoomTypeID == "" || s.RoomTypeID == roomTypeID
}
