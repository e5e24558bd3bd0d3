// Package config provides the runtime defaults, environment loading, and
// validation for the pollchat service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting
// on the WebSocket gateway.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	// Port is the listen address of the chat endpoint, e.g. ":8080".
	Port      string
	IsActive  bool
	PeerURL   string
	IsPrimary bool

	ReadTimeout      time.Duration
	PollTimeout      time.Duration
	FailoverInterval time.Duration
	PeerTimeout      time.Duration

	// MaxConnections caps concurrently served connections. Zero means unbounded.
	MaxConnections int
	MaxRequestSize int
	RecentMessages int
	SnapshotPath   string

	// WSPort enables the WebSocket gateway when non-empty.
	WSPort         string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

func defaultConfig() Config {
	return Config{
		Port:             ":8080",
		ReadTimeout:      10 * time.Second,
		PollTimeout:      25 * time.Second,
		FailoverInterval: 5 * time.Second,
		PeerTimeout:      5 * time.Second,
		MaxRequestSize:   1 << 20,
		RecentMessages:   10,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// Sanitize replaces zero or invalid values with their defaults and normalizes
// listen addresses. It returns the adjusted copy.
func Sanitize(cfg Config) Config {
	def := defaultConfig()

	cfg.Port = normalizePort(cfg.Port, def.Port)
	if cfg.WSPort != "" {
		cfg.WSPort = normalizePort(cfg.WSPort, "")
	}
	cfg.PeerURL = strings.TrimRight(strings.TrimSpace(cfg.PeerURL), "/")

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.FailoverInterval <= 0 {
		cfg.FailoverInterval = def.FailoverInterval
	}
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = def.PeerTimeout
	}
	if cfg.MaxConnections < 0 {
		cfg.MaxConnections = 0
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = def.MaxRequestSize
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = def.RecentMessages
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)

	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	return newConfigFromLookup(os.Getenv)
}

func newConfigFromLookup(getenv func(string) string) *Config {
	cfg := defaultConfig()

	if port := getenv("PORT"); port != "" {
		cfg.Port = port
	}
	cfg.IsActive = parseBool(getenv("IS_ACTIVE"), false)
	cfg.PeerURL = getenv("PEER_URL")
	cfg.IsPrimary = parseBool(getenv("IS_PRIMARY"), false)

	if v := getenv("READ_TIMEOUT"); v != "" {
		cfg.ReadTimeout = parseDuration(v, cfg.ReadTimeout)
	}
	if v := getenv("POLL_TIMEOUT"); v != "" {
		cfg.PollTimeout = parseDuration(v, cfg.PollTimeout)
	}
	if v := getenv("FAILOVER_INTERVAL"); v != "" {
		cfg.FailoverInterval = parseDuration(v, cfg.FailoverInterval)
	}
	if v := getenv("PEER_TIMEOUT"); v != "" {
		cfg.PeerTimeout = parseDuration(v, cfg.PeerTimeout)
	}
	if v := getenv("MAX_CONNECTIONS"); v != "" {
		cfg.MaxConnections = parseIntValue(v, cfg.MaxConnections)
	}
	if v := getenv("MAX_REQUEST_SIZE"); v != "" {
		cfg.MaxRequestSize = parseIntValue(v, cfg.MaxRequestSize)
	}
	if v := getenv("RECENT_MESSAGES"); v != "" {
		cfg.RecentMessages = parseIntValue(v, cfg.RecentMessages)
	}
	cfg.SnapshotPath = getenv("SNAPSHOT_PATH")

	cfg.WSPort = getenv("WS_PORT")
	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	sanitized := Sanitize(cfg)
	return &sanitized
}

func normalizePort(value, defaultValue string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	if strings.Contains(value, ":") {
		return value
	}
	if _, err := strconv.Atoi(value); err != nil {
		return defaultValue
	}
	return ":" + value
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("250ms") or whole seconds ("5").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
