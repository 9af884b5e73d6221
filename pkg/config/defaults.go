package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "innkeep"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLedgerLockTTL  = 10 * time.Second
	DefaultTxMaxRetries   = 2
	DefaultTxRetryBackoff = 50 * time.Millisecond

	DefaultMaxStayNights      = 365
	DefaultMaxRoomsPerBooking = 100

	// Refund tiers as "hoursBeforeStart:feePercent" pairs, most notice first.
	// Full refund with 72h notice, half inside 72h, nothing inside 24h.
	DefaultRefundTiers = "72:0,24:50,0:100"

	DefaultWaitlistHoldWindow = 24 * time.Hour

	DefaultGuestResolverURL = "http://localhost:8090"

	DefaultKafkaBrokers       = "localhost:9092"
	DefaultBookingEventsTopic = "innkeep.bookings"
	DefaultWaitlistTopic      = "innkeep.waitlist"

	DefaultSweepInterval = 1 * time.Minute

	DefaultPaginationLimit = 100
)
