package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the base server configuration.
type Config struct {
	Host          string
	Port          string
	SQLiteDBPath  string
	NodeEnv       string
	AllowTestMode bool

	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// ServerBaseURL is the externally reachable base URL renderers use to
	// fetch media. It must be an address the renderer can resolve, so
	// localhost only works for renderers on the same host.
	ServerBaseURL string
	// StreamAPIKey is appended to generated stream URLs as api_key.
	StreamAPIKey string

	// ProfilesDir holds device profile YAML files. Empty means built-in
	// defaults only.
	ProfilesDir string

	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	// SSDPRescanSchedule is a cron spec for periodic rescans.
	SSDPRescanSchedule string

	DeviceTimeoutMs        int
	DevicePollIntervalMs   int
	DeviceFailureThreshold int
	WaitForPlayingMs       int
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	host := envString("HOST", "0.0.0.0")
	port := envString("PORT", "9000")
	sqlitePath := envString("SQLITE_DB_PATH", "./data/playto-hub.db")
	nodeEnv := envString("NODE_ENV", "development")
	allowTestMode := envBool("ALLOW_TEST_MODE", false)
	jwtSecret := envString("JWT_SECRET", "")
	jwtAccessExpiry := envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)
	jwtRefreshExpiry := envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000)
	serverBaseURL := envString("SERVER_BASE_URL", "http://"+host+":"+port)
	streamAPIKey := envString("STREAM_API_KEY", "")
	profilesDir := envString("PROFILES_DIR", "./profiles")
	ssdpTimeout := envInt("SSDP_DISCOVERY_TIMEOUT_MS", 5000)
	ssdpPasses := envInt("SSDP_DISCOVERY_PASSES", 3)
	ssdpPassInterval := envInt("SSDP_PASS_INTERVAL_MS", 1000)
	ssdpRescanSchedule := envString("SSDP_RESCAN_SCHEDULE", "@every 1m")
	deviceTimeout := envInt("DEVICE_TIMEOUT_MS", 5000)
	devicePollInterval := envInt("DEVICE_POLL_INTERVAL_MS", 10000)
	deviceFailureThreshold := envInt("DEVICE_FAILURE_THRESHOLD", 3)
	waitForPlaying := envInt("WAIT_FOR_PLAYING_MS", 15000)

	if len(strings.TrimSpace(jwtSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	return Config{
		Host:                     host,
		Port:                     port,
		SQLiteDBPath:             sqlitePath,
		NodeEnv:                  nodeEnv,
		AllowTestMode:            allowTestMode,
		JWTSecret:                jwtSecret,
		JWTAccessTokenExpirySec:  jwtAccessExpiry,
		JWTRefreshTokenExpirySec: jwtRefreshExpiry,
		ServerBaseURL:            strings.TrimRight(serverBaseURL, "/"),
		StreamAPIKey:             streamAPIKey,
		ProfilesDir:              profilesDir,
		SSDPDiscoveryTimeoutMs:   ssdpTimeout,
		SSDPDiscoveryPasses:      ssdpPasses,
		SSDPPassIntervalMs:       ssdpPassInterval,
		SSDPRescanSchedule:       ssdpRescanSchedule,
		DeviceTimeoutMs:          deviceTimeout,
		DevicePollIntervalMs:     devicePollInterval,
		DeviceFailureThreshold:   deviceFailureThreshold,
		WaitForPlayingMs:         waitForPlaying,
	}, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
