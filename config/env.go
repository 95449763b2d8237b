package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Env is the process environment the CLI and server run with.
type Env struct {
	AppEnv          string
	Port            string
	Store           string // memory, sqlite, postgres, mongo or leveldb
	DatabaseURL     string
	MongoDatabase   string
	Owner           string
	Network         string
	NetworksFile    string
	DeploymentsFile string
	PriceFeedURL    string
	RedisAddr       string
	PriceCacheTTL   time.Duration
	OracleRetries   uint64
	MinimumUSD      int64
}

// Load reads .env files if present, then the environment.
func Load(files ...string) Env {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		// A missing file is not an error.
		_ = godotenv.Load(f)
	}

	return Env{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		Store:           getEnv("FUNDME_STORE", "sqlite"),
		DatabaseURL:     getEnv("FUNDME_DATABASE_URL", "fundme.db"),
		MongoDatabase:   getEnv("FUNDME_MONGO_DATABASE", "fundme"),
		Owner:           getEnv("FUNDME_OWNER", ""),
		Network:         getEnv("FUNDME_NETWORK", ""),
		NetworksFile:    getEnv("FUNDME_NETWORKS_FILE", "networks.yaml"),
		DeploymentsFile: getEnv("FUNDME_DEPLOYMENTS_FILE", "deployments.yaml"),
		PriceFeedURL:    getEnv("FUNDME_PRICE_FEED_URL", ""),
		RedisAddr:       getEnv("FUNDME_REDIS_ADDR", ""),
		PriceCacheTTL:   getDuration("FUNDME_PRICE_CACHE_TTL", 30*time.Second),
		OracleRetries:   uint64(getInt("FUNDME_ORACLE_RETRIES", 3)),
		MinimumUSD:      getInt("FUNDME_MINIMUM_USD", 50),
	}
}

// IsDevelopment reports whether the process runs in development mode.
func (e Env) IsDevelopment() bool {
	return e.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
