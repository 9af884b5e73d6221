package model

import "time"

// LedgerLock is an advisory lock document. Inserting it with a fixed _id
// either succeeds (lock acquired) or fails with a duplicate key error (someone
// else holds it). A TTL index on expires_at reaps locks left by crashed
// holders.
type LedgerLock struct {
	ID        string    `json:"id" bson:"_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
