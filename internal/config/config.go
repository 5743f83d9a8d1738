// Package config loads runtime settings from the environment (populated
// from .env in main) and the dataset registry from a schema document.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/ledgerbridge/internal/etl"
	"github.com/BartekS5/ledgerbridge/internal/retry"
)

const (
	SinkMongo    = "mongo"
	SinkMSSQL    = "mssql"
	SinkPostgres = "postgres"
	SinkMemory   = "memory"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	Endpoint        string
	RequestEncoding string
	Timeout         time.Duration
	CompanyName     string
	FromDate        string // YYYYMMDD
	ToDate          string // YYYYMMDD
	Headers         map[string]string

	SinkType        string
	MongoConnString string
	MongoDatabase   string
	SQLConnString   string
	PostgresDSN     string

	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	Workers     int
	Parallelism int

	PushgatewayURL string
	LogFile        string
	LogLevel       string
}

// LoadConfig loads application settings from environment variables. It
// fails only on values that cannot be parsed; use Validate before a sync.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Endpoint:        os.Getenv("LEDGER_ENDPOINT"),
		RequestEncoding: getEnv("LEDGER_REQUEST_ENCODING", "utf-8"),
		CompanyName:     os.Getenv("LEDGER_COMPANY_NAME"),
		SinkType:        strings.ToLower(getEnv("SINK_TYPE", SinkMongo)),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "ledgerbridge"),
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		PushgatewayURL:  os.Getenv("METRICS_PUSHGATEWAY"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.Timeout, err = getDuration("LEDGER_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.BaseDelay, err = getDuration("IMPORT_BASE_DELAY", retry.DefaultBaseDelay)
	collect(err)
	cfg.BatchSize, err = getInt("IMPORT_BATCH_SIZE", etl.DefaultBatchSize)
	collect(err)
	cfg.MaxAttempts, err = getInt("IMPORT_MAX_ATTEMPTS", retry.DefaultMaxAttempts)
	collect(err)
	cfg.Workers, err = getInt("IMPORT_WORKERS", 1)
	collect(err)
	cfg.Parallelism, err = getInt("SYNC_PARALLELISM", 1)
	collect(err)

	cfg.FromDate, err = normalizeDate("LEDGER_FROM_DATE", os.Getenv("LEDGER_FROM_DATE"))
	collect(err)
	cfg.ToDate, err = normalizeDate("LEDGER_TO_DATE", os.Getenv("LEDGER_TO_DATE"))
	collect(err)
	cfg.Headers, err = parseHeaders(os.Getenv("LEDGER_HEADERS"))
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the settings a sync run depends on.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return &etl.ConfigurationError{Op: "config", Err: fmt.Errorf(format, args...)}
	}

	if c.Endpoint == "" {
		return fail("LEDGER_ENDPOINT environment variable not set")
	}
	switch c.SinkType {
	case SinkMongo:
		if c.MongoConnString == "" {
			return fail("MONGO_CONNECTION_STRING environment variable not set")
		}
	case SinkMSSQL:
		if c.SQLConnString == "" {
			return fail("SQL_CONNECTION_STRING environment variable not set")
		}
	case SinkPostgres:
		if c.PostgresDSN == "" {
			return fail("POSTGRES_DSN environment variable not set")
		}
	case SinkMemory:
	default:
		return fail("unknown sink type %q", c.SinkType)
	}
	if c.BatchSize <= 0 {
		return fail("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxAttempts <= 0 {
		return fail("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Workers <= 0 || c.Parallelism <= 0 {
		return fail("workers and parallelism must be positive")
	}
	if c.FromDate != "" && c.ToDate != "" && c.FromDate > c.ToDate {
		return fail("LEDGER_FROM_DATE %s is after LEDGER_TO_DATE %s", c.FromDate, c.ToDate)
	}
	return nil
}

func (c *Config) TransportConfig() etl.TransportConfig {
	return etl.TransportConfig{
		Endpoint: c.Endpoint,
		Timeout:  c.Timeout,
		Encoding: c.RequestEncoding,
		Headers:  c.Headers,
	}
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay}
}

func (c *Config) StaticVariables() etl.StaticVariables {
	return etl.StaticVariables{Company: c.CompanyName, FromDate: c.FromDate, ToDate: c.ToDate}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

// normalizeDate accepts YYYY-MM-DD or YYYYMMDD and returns YYYYMMDD.
func normalizeDate(key, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	for _, layout := range []string{time.DateOnly, "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("20060102"), nil
		}
	}
	return "", fmt.Errorf("%s: invalid date %q", key, v)
}

// parseHeaders reads "Name=value;Other=value".
func parseHeaders(v string) (map[string]string, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(v, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("LEDGER_HEADERS: malformed entry %q", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}
