package config

import (
	"os"
	"strconv"
	"time"

	"gatepass/internal/services/chain"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Gate scan server
	GatePort          string
	ScanRatePerMinute int

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (app-side notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Credential signing
	SigningMode      string // "ed25519" or "hmac"
	SigningKeySeed   string // hex, ed25519 seed; issuance path only
	SigningPublicKey string // hex, ed25519 public key; verify-only deployments
	HMACSecret       string

	// Credential lifetime
	CredentialTTL time.Duration
	ScanCacheTTL  time.Duration

	// Escrow
	ClaimStaleAfter time.Duration

	// Chain gateway
	ChainConfig chain.Config

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Gate server
		GatePort:          getEnv("GATE_PORT", "8091"),
		ScanRatePerMinute: getEnvAsInt("SCAN_RATE_PER_MINUTE", 120),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Signing
		SigningMode:      getEnv("SIGNING_MODE", "ed25519"),
		SigningKeySeed:   getEnv("SIGNING_KEY_SEED", ""),
		SigningPublicKey: getEnv("SIGNING_PUBLIC_KEY", ""),
		HMACSecret:       getEnv("SIGNING_HMAC_SECRET", ""),

		// Credential lifetime
		CredentialTTL: getEnvAsDuration("CREDENTIAL_TTL", "24h"),
		ScanCacheTTL:  getEnvAsDuration("SCAN_CACHE_TTL", "25h"),

		// Escrow
		ClaimStaleAfter: getEnvAsDuration("CLAIM_STALE_AFTER", "2m"),

		// Chain gateway
		ChainConfig: chain.Config{
			BaseURL:   getEnv("CHAIN_BASE_URL", ""),
			PartnerID: getEnv("CHAIN_PARTNER_ID", ""),
			ClientID:  getEnv("CHAIN_CLIENT_ID", ""),
			ClientKey: getEnv("CHAIN_CLIENT_KEY", ""),
			HMACKey:   getEnv("CHAIN_HMAC_KEY", ""),

			PNSubKey:    getEnv("CHAIN_PN_SUBKEY", ""),
			PNSubSecret: getEnv("CHAIN_PN_SUBSECRET", ""),
			PNUUID:      getEnv("CHAIN_PN_UUID", ""),
			PNChannel:   getEnv("CHAIN_PN_CHANNEL", ""),
			PNCipherKey: getEnv("CHAIN_PN_CIPHERKEY", ""),
		},

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
