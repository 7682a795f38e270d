package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr          string
	DataDir             string
	BaseURL             string
	LogLevel            string
	LogFile             string
	WorkerCount         int
	TokenEncryptionKey  string
	WebhookURLs         []string
	WebhookSecret       string
	CleanupIntervalMins int
	JobRetentionDays    int
	APIRatePerSec       float64
	APIRateBurst        int
	DiskWarnYellowPct   float64
	DiskWarnRedPct      float64
	DiskWarnBlockPct    float64
	Graph               Graph
	Scraper             Scraper
	Pipeline            Pipeline
}

// Graph configures the ads-graph API client.
type Graph struct {
	BaseURL    string
	APIVersion string
	CallDelay  time.Duration
	Timeout    time.Duration
}

// Scraper configures the external page scraping service used for video fallback.
type Scraper struct {
	Endpoint string
	APIKey   string
	Delay    time.Duration
	Timeout  time.Duration
}

// Pipeline holds the import tuning values.
type Pipeline struct {
	SpendTiers              []float64
	MaxPagesPerTier         int
	PageSize                int
	PageDelay               time.Duration
	TierDelay               time.Duration
	BatchSize               int
	StaggerDelay            time.Duration
	BatchDelay              time.Duration
	CircuitBreakerThreshold int
	DownloadRetries         int
	DownloadBaseDelay       time.Duration
	DownloadTimeout         time.Duration
	MinAssetBytes           int64
	GuessImageURLs          bool
	ImageCDNTemplate        string
	DefaultMaxAds           int
}

var defaultSpendTiers = []float64{20000, 10000, 5000, 2000, 1000, 500, 250, 100, 50, 10}

func Load() *Config {
	return &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		DataDir:             envOr("DATA_DIR", "./data"),
		BaseURL:             envOr("BASE_URL", "http://localhost:8080"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
		WorkerCount:         envIntOr("WORKER_COUNT", 2),
		TokenEncryptionKey:  os.Getenv("TOKEN_ENCRYPTION_KEY"),
		WebhookURLs:         envListOr("WEBHOOK_URLS", nil),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 60),
		JobRetentionDays:    envIntOr("JOB_RETENTION_DAYS", 30),
		APIRatePerSec:       envFloatOr("API_RATE_PER_SEC", 2),
		APIRateBurst:        envIntOr("API_RATE_BURST", 30),
		DiskWarnYellowPct:   envFloatOr("DISK_WARN_YELLOW_PCT", 20),
		DiskWarnRedPct:      envFloatOr("DISK_WARN_RED_PCT", 10),
		DiskWarnBlockPct:    envFloatOr("DISK_WARN_BLOCK_PCT", 5),
		Graph: Graph{
			BaseURL:    envOr("GRAPH_BASE_URL", "https://graph.facebook.com"),
			APIVersion: envOr("GRAPH_API_VERSION", "v21.0"),
			CallDelay:  envDurationOr("GRAPH_CALL_DELAY", 250*time.Millisecond),
			Timeout:    envDurationOr("API_TIMEOUT", 10*time.Second),
		},
		Scraper: Scraper{
			Endpoint: os.Getenv("SCRAPER_ENDPOINT"),
			APIKey:   os.Getenv("SCRAPER_API_KEY"),
			Delay:    envDurationOr("SCRAPER_DELAY", time.Second),
			Timeout:  envDurationOr("SCRAPER_TIMEOUT", 20*time.Second),
		},
		Pipeline: DefaultPipeline(),
	}
}

// FilesDir is where the object store keeps uploaded media.
func (c *Config) FilesDir() string {
	return filepath.Join(c.DataDir, "files")
}

// DefaultPipeline returns the pipeline tuning with env overrides applied.
func DefaultPipeline() Pipeline {
	return Pipeline{
		SpendTiers:              envFloatListOr("SPEND_TIERS", defaultSpendTiers),
		MaxPagesPerTier:         envIntOr("MAX_PAGES_PER_TIER", 10),
		PageSize:                envIntOr("PAGE_SIZE", 100),
		PageDelay:               envDurationOr("PAGE_DELAY", 300*time.Millisecond),
		TierDelay:               envDurationOr("TIER_DELAY", 500*time.Millisecond),
		BatchSize:               envIntOr("BATCH_SIZE", 5),
		StaggerDelay:            envDurationOr("STAGGER_DELAY", 200*time.Millisecond),
		BatchDelay:              envDurationOr("BATCH_DELAY", time.Second),
		CircuitBreakerThreshold: envIntOr("CIRCUIT_BREAKER_THRESHOLD", 10),
		DownloadRetries:         envIntOr("DOWNLOAD_RETRIES", 2),
		DownloadBaseDelay:       envDurationOr("DOWNLOAD_BASE_DELAY", time.Second),
		DownloadTimeout:         envDurationOr("DOWNLOAD_TIMEOUT", 15*time.Second),
		MinAssetBytes:           envInt64Or("MIN_ASSET_BYTES", 1000),
		GuessImageURLs:          envBoolOr("GUESS_IMAGE_URLS", true),
		ImageCDNTemplate:        envOr("IMAGE_CDN_TEMPLATE", "https://scontent.xx.fbcdn.net/v/t45.1600-4/%s_n.jpg"),
		DefaultMaxAds:           envIntOr("DEFAULT_MAX_ADS", 100),
	}
}

// GraphURL is the versioned API root, e.g. https://graph.facebook.com/v21.0.
func (g Graph) GraphURL() string {
	return strings.TrimRight(g.BaseURL, "/") + "/" + g.APIVersion
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
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

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDurationOr accepts Go duration strings ("300ms") or plain milliseconds ("300").
func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envFloatListOr(key string, fallback []float64) []float64 {
	parts := envListOr(key, nil)
	if len(parts) == 0 {
		return fallback
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fallback
		}
		out = append(out, f)
	}
	return out
}
