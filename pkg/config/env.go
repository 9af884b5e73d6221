package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvPaymentWebhookSecret = "PAYMENT_WEBHOOK_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLedgerLockTTL  = "LEDGER_LOCK_TTL"
	EnvTxMaxRetries   = "TX_MAX_RETRIES"
	EnvTxRetryBackoff = "TX_RETRY_BACKOFF"

	EnvRefundTiers        = "REFUND_TIERS"
	EnvWaitlistHoldWindow = "WAITLIST_HOLD_WINDOW"

	EnvGuestResolverURL = "GUEST_RESOLVER_URL"

	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvBookingEventsTopic = "BOOKING_EVENTS_TOPIC"
	EnvWaitlistTopic      = "WAITLIST_EVENTS_TOPIC"

	EnvSweepInterval = "SWEEP_INTERVAL"
)
