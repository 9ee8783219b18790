package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the server binary needs from the environment.
// FromEnv keeps main lean; defaults target local development against the
// authority sandbox.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	// KeysDir is where device private keys live as PEM files. Must be on
	// durable storage; losing a key orphans the device's fiscal chain.
	KeysDir string

	JWTSigningKey string

	Authority Authority

	// TaxRate is the flat placeholder VAT rate applied to receipts.
	TaxRate float64

	// ReportRetryInterval is how often the background worker re-submits
	// receipts stuck in QUEUED.
	ReportRetryInterval time.Duration
}

// Authority holds the external fiscal-authority gateway settings.
type Authority struct {
	// PublicBaseURL serves unauthenticated endpoints (device ID lookup).
	PublicBaseURL string
	// DeviceBaseURL serves device-scoped endpoints (certificate issuance,
	// receipt submission).
	DeviceBaseURL string
	Timeout       time.Duration

	DeviceModelName    string
	DeviceModelVersion string

	// CertPrefix is the CSR common-name prefix mandated by the authority.
	CertPrefix string
	// CertCountry and CertOrganization are the fixed CSR subject attributes.
	CertCountry      string
	CertOrganization string

	// Mock swaps the HTTP client for the deterministic in-process mock.
	Mock bool
}

// FromEnv builds a Config from environment variables, loading .env first if
// present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Addr:          envOr("LITHIPOS_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KeysDir:       envOr("LITHIPOS_KEYS_DIR", "./keys"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Authority: Authority{
			PublicBaseURL:      envOr("AUTHORITY_PUBLIC_URL", "http://localhost:4000/Public/v1"),
			DeviceBaseURL:      envOr("AUTHORITY_DEVICE_URL", "http://localhost:4000/Device/v1"),
			Timeout:            envDurationOr("AUTHORITY_TIMEOUT", 10*time.Second),
			DeviceModelName:    envOr("DEVICE_MODEL_NAME", "LithiPos"),
			DeviceModelVersion: envOr("DEVICE_MODEL_VERSION", "1.0"),
			CertPrefix:         envOr("AUTHORITY_CERT_PREFIX", "ZIMRA"),
			CertCountry:        envOr("AUTHORITY_CERT_COUNTRY", "ZW"),
			CertOrganization:   envOr("AUTHORITY_CERT_ORG", "LithiPos"),
			Mock:               os.Getenv("AUTHORITY_MOCK") == "true",
		},
		TaxRate:             envFloatOr("TAX_RATE", 0.15),
		ReportRetryInterval: envDurationOr("REPORT_RETRY_INTERVAL", time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
