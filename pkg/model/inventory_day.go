package model

import "time"

// InventoryDay tracks reserved versus total rooms for one room type on one
// calendar date. Rows are capacity configuration: they pre-exist, are never
// deleted, and reserved_rooms only moves through the ledger's guarded
// reserve/release updates. availableRooms is always derived, never stored.
type InventoryDay struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	RoomTypeID    string    `json:"room_type_id" bson:"room_type_id" validate:"required,min=1,max=64"`
	Date          time.Time `json:"date" bson:"date" validate:"required"`
	TotalRooms    int       `json:"total_rooms" bson:"total_rooms" validate:"min=0"`
	ReservedRooms int       `json:"reserved_rooms" bson:"reserved_rooms" validate:"min=0"`
}

func (d *InventoryDay) AvailableRooms() int {
	return d.TotalRooms - d.ReservedRooms
}

// Day truncates t to UTC midnight. All inventory dates are stored in this
// normalized form so range queries and unique indexes behave.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysIn enumerates every date in the half-open range [start, end).
func DaysIn(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
