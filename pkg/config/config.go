package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"innkeep/pkg/client"
	"innkeep/pkg/logger"
)

// RefundTier retains FeePercent of the total price when the booking is
// cancelled with at least MinNoticeHours of notice before the start date.
type RefundTier struct {
	MinNoticeHours int
	FeePercent     int
}

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	PaymentWebhookSecret string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LedgerLockTTL  time.Duration
	TxMaxRetries   int
	TxRetryBackoff time.Duration

	RefundTiers        []RefundTier
	WaitlistHoldWindow time.Duration

	GuestResolverURL string

	KafkaBrokers       []string
	BookingEventsTopic string
	WaitlistTopic      string

	SweepInterval time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		PaymentWebhookSecret: getEnvStr(EnvPaymentWebhookSecret, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LedgerLockTTL:  getEnvDuration(EnvLedgerLockTTL, DefaultLedgerLockTTL),
		TxMaxRetries:   getEnvNum(EnvTxMaxRetries, DefaultTxMaxRetries),
		TxRetryBackoff: getEnvDuration(EnvTxRetryBackoff, DefaultTxRetryBackoff),

		WaitlistHoldWindow: getEnvDuration(EnvWaitlistHoldWindow, DefaultWaitlistHoldWindow),

		GuestResolverURL: getEnvStr(EnvGuestResolverURL, DefaultGuestResolverURL),

		KafkaBrokers:       strings.Split(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers), ","),
		BookingEventsTopic: getEnvStr(EnvBookingEventsTopic, DefaultBookingEventsTopic),
		WaitlistTopic:      getEnvStr(EnvWaitlistTopic, DefaultWaitlistTopic),

		SweepInterval: getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	tiers, err := ParseRefundTiers(getEnvStr(EnvRefundTiers, DefaultRefundTiers))
	if err != nil {
		cfg.Log.Fatal("Invalid refund tier configuration", "error", err)
	}
	cfg.RefundTiers = tiers

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// ParseRefundTiers parses "hours:feePercent" pairs separated by commas, e.g.
// "72:0,24:50,0:100". Tiers are sorted by notice descending; the fee percent
// must be non-decreasing as notice shrinks so refunds stay monotonic.
func ParseRefundTiers(raw string) ([]RefundTier, error) {
	parts := strings.Split(raw, ",")
	tiers := make([]RefundTier, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed refund tier %q, want hours:feePercent", part)
		}
		hours, err := strconv.Atoi(fields[0])
		if err != nil || hours < 0 {
			return nil, fmt.Errorf("invalid notice hours in refund tier %q", part)
		}
		fee, err := strconv.Atoi(fields[1])
		if err != nil || fee < 0 || fee > 100 {
			return nil, fmt.Errorf("invalid fee percent in refund tier %q", part)
		}
		tiers = append(tiers, RefundTier{MinNoticeHours: hours, FeePercent: fee})
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one refund tier is required")
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinNoticeHours > tiers[j].MinNoticeHours
	})
	for i := 1; i < len(tiers); i++ {
		if tiers[i].FeePercent < tiers[i-1].FeePercent {
			return nil, fmt.Errorf("refund fee must not decrease as notice shrinks: %d%% at %dh after %d%% at %dh",
				tiers[i].FeePercent, tiers[i].MinNoticeHours, tiers[i-1].FeePercent, tiers[i-1].MinNoticeHours)
		}
	}
	if tiers[len(tiers)-1].MinNoticeHours != 0 {
		return nil, fmt.Errorf("refund tiers must include a 0-hour catch-all tier")
	}
	return tiers, nil
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errs = append(errs, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}

	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}

	for name, d := range map[string]time.Duration{
		"MongoConnTimeout":   cfg.MongoConnTimeout,
		"RateLimitWindow":    cfg.RateLimitWindow,
		"RequestTimeout":     cfg.RequestTimeout,
		"IdempotencyTTL":     cfg.IdempotencyTTL,
		"ReadTimeout":        cfg.ReadTimeout,
		"WriteTimeout":       cfg.WriteTimeout,
		"IdleTimeout":        cfg.IdleTimeout,
		"ShutdownTimeout":    cfg.ShutdownTimeout,
		"LedgerLockTTL":      cfg.LedgerLockTTL,
		"WaitlistHoldWindow": cfg.WaitlistHoldWindow,
		"SweepInterval":      cfg.SweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.TxMaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("TxMaxRetries cannot be negative, got: %d", cfg.TxMaxRetries))
	}
	if cfg.TxRetryBackoff < 0 {
		errs = append(errs, fmt.Sprintf("TxRetryBackoff cannot be negative, got: %s", cfg.TxRetryBackoff))
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaBrokers[0] == "" {
		errs = append(errs, "KafkaBrokers cannot be empty")
	}
	if cfg.BookingEventsTopic == "" {
		errs = append(errs, "BookingEventsTopic cannot be empty")
	}
	if cfg.WaitlistTopic == "" {
		errs = append(errs, "WaitlistTopic cannot be empty")
	}

	if len(errs) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, e := range errs {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"payment_webhook_secret_set", cfg.PaymentWebhookSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"ledger_lock_ttl", cfg.LedgerLockTTL,
		"tx_max_retries", cfg.TxMaxRetries,
		"tx_retry_backoff", cfg.TxRetryBackoff,
		"refund_tiers", cfg.RefundTiers,
		"waitlist_hold_window", cfg.WaitlistHoldWindow,
		"guest_resolver_url", cfg.GuestResolverURL,
		"kafka_brokers", cfg.KafkaBrokers,
		"booking_events_topic", cfg.BookingEventsTopic,
		"waitlist_topic", cfg.WaitlistTopic,
		"sweep_interval", cfg.SweepInterval,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
