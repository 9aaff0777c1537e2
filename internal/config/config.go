package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (rate limiting + enqueue idempotency)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Active mail provider: ses | resend | smtp | log
	MailProvider string

	// AWS SES
	AWSRegion    string
	SESFromEmail string

	// Resend
	ResendAPIKey    string
	ResendFromEmail string
	ResendFromName  string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Queue processing
	PollIntervalSeconds int // scheduled pass interval
	BatchSize           int // messages claimed per pass
	BaseRetryMinutes    int // first retry delay, doubles per retry
	SendTimeoutSeconds  int // per-message transport deadline
	SendRatePerSecond   int // provider pacing; 0 disables

	// Optional out-of-band trigger: POST target for processing nudges.
	// Empty means nudges go to the in-process worker.
	ProcessURL string

	// API rate limit (requests per minute per client)
	RateLimitPerMinute int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "mailroom",
		DBPassword: "",
		DBName:     "mailroom",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		MailProvider: "log",

		AWSRegion:    "ap-southeast-1",
		SESFromEmail: "noreply@fitreserve.local",

		ResendFromEmail: "noreply@fitreserve.local",
		ResendFromName:  "FitReserve",

		SMTPHost: "",
		SMTPPort: 587,
		SMTPFrom: "noreply@fitreserve.local",

		PollIntervalSeconds: 60,
		BatchSize:           10,
		BaseRetryMinutes:    5,
		SendTimeoutSeconds:  30,
		SendRatePerSecond:   0,

		RateLimitPerMinute: 100,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Mail provider selection
	if provider := os.Getenv("MAIL_PROVIDER"); provider != "" {
		switch provider {
		case "ses", "resend", "smtp", "log":
			cfg.MailProvider = provider
		default:
			return nil, fmt.Errorf("invalid MAIL_PROVIDER: %s (want ses, resend, smtp, or log)", provider)
		}
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		cfg.ResendAPIKey = key
	}

	if from := os.Getenv("RESEND_FROM_EMAIL"); from != "" {
		cfg.ResendFromEmail = from
	}

	if name := os.Getenv("RESEND_FROM_NAME"); name != "" {
		cfg.ResendFromName = name
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}

	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = p
	}

	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTPUsername = user
	}

	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTPPassword = pass
	}

	if from := os.Getenv("SMTP_FROM"); from != "" {
		cfg.SMTPFrom = from
	}

	// Queue processing
	if interval := os.Getenv("POLL_INTERVAL_SECONDS"); interval != "" {
		v, err := strconv.Atoi(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.PollIntervalSeconds = v
	}

	if size := os.Getenv("BATCH_SIZE"); size != "" {
		v, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = v
	}

	if mins := os.Getenv("BASE_RETRY_MINUTES"); mins != "" {
		v, err := strconv.Atoi(mins)
		if err != nil {
			return nil, fmt.Errorf("invalid BASE_RETRY_MINUTES: %w", err)
		}
		cfg.BaseRetryMinutes = v
	}

	if secs := os.Getenv("SEND_TIMEOUT_SECONDS"); secs != "" {
		v, err := strconv.Atoi(secs)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_TIMEOUT_SECONDS: %w", err)
		}
		cfg.SendTimeoutSeconds = v
	}

	if rps := os.Getenv("SEND_RATE_PER_SECOND"); rps != "" {
		v, err := strconv.Atoi(rps)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE_PER_SECOND: %w", err)
		}
		cfg.SendRatePerSecond = v
	}

	if url := os.Getenv("PROCESS_URL"); url != "" {
		cfg.ProcessURL = url
	}

	if limit := os.Getenv("RATE_LIMIT_PER_MINUTE"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = v
	}

	return cfg, nil
}
