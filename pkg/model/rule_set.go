package model

// RuleSet bounds how far ahead and how late a guest type may book.
// MaxDaysAdvance must stay strictly greater than MinDaysNotice.
type RuleSet struct {
	ID             string `json:"id,omitempty" bson:"_id,omitempty"`
	GuestType      string `json:"guest_type" bson:"guest_type" validate:"required,oneof=REGULAR VIP CORPORATE"`
	MaxDaysAdvance int    `json:"max_days_advance" bson:"max_days_advance" validate:"required,min=1,max=1095"`
	MinDaysNotice  int    `json:"min_days_notice" bson:"min_days_notice" validate:"min=0"`
}

// DefaultRuleSets are applied when no catalog row exists for a guest type.
func DefaultRuleSets() map[string]RuleSet {
	return map[string]RuleSet{
		GuestRegular:   {GuestType: GuestRegular, MaxDaysAdvance: 90, MinDaysNotice: 3},
		GuestVIP:       {GuestType: GuestVIP, MaxDaysAdvance: 365, MinDaysNotice: 2},
		GuestCorporate: {GuestType: GuestCorporate, MaxDaysAdvance: 180, MinDaysNotice: 1},
	}
}
