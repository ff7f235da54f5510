package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all daemon configuration loaded from environment
// variables (a .env file is honored in development).
type Config struct {
	// Terminal bridge session
	BridgeBaseURL    string
	BridgeLogin      string
	BridgePassword   string
	BridgeServer     string
	BridgeTOTPSecret string

	// Snapshot source: "bridge" (default) or "binance" for staging
	SnapshotSource   string
	BinanceAPIKey    string
	BinanceSecretKey string

	// Live feed
	FeedURL string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Chart sync tuning
	LookbackDays int
	RefreshSpec  string // cron expression; empty disables scheduled refresh

	// Startup series
	DefaultSymbol    string
	DefaultTimeframe string

	// Watchlist + indicator presets
	WatchlistPath string
	DefaultPreset string // preset name applied at startup; empty for none
}

// Load reads configuration with sensible defaults. A .env file in the
// working directory is merged in first, without overriding real env.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		BridgeBaseURL:    getEnv("BRIDGE_URL", "http://localhost:8000"),
		BridgeLogin:      getEnv("BRIDGE_LOGIN", ""),
		BridgePassword:   getEnv("BRIDGE_PASSWORD", ""),
		BridgeServer:     getEnv("BRIDGE_SERVER", ""),
		BridgeTOTPSecret: getEnv("BRIDGE_TOTP_SECRET", ""),

		SnapshotSource:   getEnv("SNAPSHOT_SOURCE", "bridge"),
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_SECRET_KEY", ""),

		FeedURL: getEnv("FEED_URL", "ws://localhost:8000/ws/market"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		LookbackDays: getEnvInt("LOOKBACK_DAYS", 30),
		RefreshSpec:  getEnv("REFRESH_SPEC", "*/5 * * * *"),

		DefaultSymbol:    getEnv("DEFAULT_SYMBOL", "EURUSD"),
		DefaultTimeframe: getEnv("DEFAULT_TIMEFRAME", "1H"),

		WatchlistPath: getEnv("WATCHLIST_PATH", "config/watchlist.yaml"),
		DefaultPreset: getEnv("DEFAULT_PRESET", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
