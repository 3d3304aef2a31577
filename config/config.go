package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreBackend string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	CatalogURL     string
	InventoryURL   string
	PageSize       int
	RequestTimeout time.Duration
	MaxConcurrency int
	UserAgent      string

	ImageBaseURL      string
	ImageSearchMode   string
	ImageSearchURL    string
	ImageProbeTimeout time.Duration
	ChromeBin         string

	InventoryRetries int
	RetryBackoff     time.Duration

	FreshnessWindow     time.Duration
	StalenessWindow     time.Duration
	BatchSize           int
	ItemDelay           time.Duration
	EnrichConcurrency   int
	HaltOnEnrichFailure bool

	ValueWeight  float64
	RatingWeight float64
	SaleWeight   float64
	MinValue     float64
	MaxPrice     float64

	TaxMultiplier float64
	TopN          int
	Locations     string

	HTTPAddr        string
	RefreshInterval time.Duration
	ShutdownTimeout time.Duration
	CSVSnapshotPath string
	LogLevel        string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "liquorbot"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "liquorbot"),
		PostgresDB:       getEnv("POSTGRES_DB", "liquorbot"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "liquorbot:"),

		CatalogURL:     getEnv("CATALOG_URL", "http://www.bcliquorstores.com/ajax/browse"),
		InventoryURL:   getEnv("INVENTORY_URL", "http://www.bcliquorstores.com/ajax/get-product-inventory"),
		PageSize:       getEnvInt("PAGE_SIZE", 6000),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		UserAgent: getEnv("USER_AGENT",
			"Mozilla/5.0 (Windows NT 6.1; Win64; x64; rv:60.0) Gecko/20100101 Firefox/60.0"),

		ImageBaseURL:      getEnv("IMAGE_BASE_URL", "https://www.bcliquorstores.com/files/images/products/800/"),
		ImageSearchMode:   strings.ToLower(getEnv("IMAGE_SEARCH", "html")),
		ImageSearchURL:    getEnv("IMAGE_SEARCH_URL", "https://www.bing.com/images/search"),
		ImageProbeTimeout: getEnvDuration("IMAGE_PROBE_TIMEOUT", 2*time.Second),
		ChromeBin:         getEnv("CHROME_BIN", ""),

		InventoryRetries: getEnvInt("INVENTORY_RETRIES", 3),
		RetryBackoff:     getEnvDuration("RETRY_BACKOFF", 3*time.Second),

		FreshnessWindow:     getEnvDuration("FRESHNESS_WINDOW", 2*time.Hour),
		StalenessWindow:     getEnvDuration("STALENESS_WINDOW", 24*time.Hour),
		BatchSize:           getEnvInt("BATCH_SIZE", 600),
		ItemDelay:           getEnvDuration("ITEM_DELAY", 800*time.Millisecond),
		EnrichConcurrency:   getEnvInt("ENRICH_CONCURRENCY", 1),
		HaltOnEnrichFailure: getEnvBool("HALT_ON_ENRICH_FAILURE", true),

		ValueWeight:  getEnvFloat("VALUE_WEIGHT", 0.9),
		RatingWeight: getEnvFloat("RATING_WEIGHT", 0.1),
		SaleWeight:   getEnvFloat("SALE_WEIGHT", 0.2),
		MinValue:     getEnvFloat("MIN_VALUE", 1.2),
		MaxPrice:     getEnvFloat("MAX_PRICE", 100),

		TaxMultiplier: getEnvFloat("TAX_MULTIPLIER", 1.15),
		TopN:          getEnvInt("TOP_N_RESULTS", 5),
		Locations:     getEnv("LOCATIONS", ""),

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		CSVSnapshotPath: getEnv("CSV_SNAPSHOT_PATH", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("800ms", "2h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
