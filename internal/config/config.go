// Package config carrega a configuração dos binários a partir do ambiente.
// Um arquivo .env no diretório corrente, se existir, é aplicado antes (sem sobrescrever o ambiente).
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Production bool

	ListenAddr  string
	UpstreamURL string

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled bool
	// ClassesFile aponta para o YAML versionado de classes; vazio usa o registry embutido.
	ClassesFile string
	Class       string
	// Routes mapeia prefixo de path -> classe ("/api/auth/=api:auth,/api/=api:general").
	Routes    map[string]string
	KeyHeader string
	TrustXFF  bool

	StatsEnabled          bool
	StatsPrefix           string
	StatsTTL              time.Duration
	StatsBucket           string
	StatsTrackIdentifiers bool
}

type JobsConfig struct {
	Secret            string
	Types             []string
	Concurrency       int
	DequeueTimeout    time.Duration
	VisibilityTimeout time.Duration
	MaintenanceEvery  time.Duration
	ExportDir         string
}

type MetricsConfig struct {
	// Exporter: none, prometheus ou stdout.
	Exporter string
	// Addr é onde binários sem servidor HTTP próprio (worker) expõem /metrics.
	Addr     string
	Interval time.Duration
	Version  string
}

type LogConfig struct {
	Service       string
	Level         string
	File          string
	RemoteURL     string
	RemoteToken   string
	FlushInterval time.Duration
	BufferSize    int
}

// Load aplica o .env (se houver) e lê o ambiente.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{}
	cfg.Production = strings.EqualFold(getenvDefault("APP_ENV", "development"), "production")
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", "")

	cfg.Redis = RedisConfig{
		Addr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		Password: getenvDefault("REDIS_PASSWORD", ""),
		DB:       getenvIntDefault("REDIS_DB", 0),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:               getenvBoolDefault("RATE_ENABLED", true),
		ClassesFile:           getenvDefault("RATE_LIMIT_CLASSES_FILE", ""),
		Class:                 getenvDefault("RATE_LIMIT_CLASS", "api:general"),
		Routes:                getenvMap("RATE_LIMIT_ROUTES"),
		KeyHeader:             getenvDefault("RATE_KEY_HEADER", ""),
		TrustXFF:              getenvBoolDefault("TRUST_XFF", false),
		StatsEnabled:          getenvBoolDefault("RATE_STATS_ENABLED", false),
		StatsPrefix:           getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats"),
		StatsTTL:              getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour),
		StatsBucket:           getenvDefault("RATE_STATS_BUCKET", "minute"),
		StatsTrackIdentifiers: getenvBoolDefault("RATE_STATS_TRACK_IDENTIFIERS", false),
	}

	cfg.Jobs = JobsConfig{
		Secret:            getenvDefault("JOB_SECRET", ""),
		Types:             splitList(getenvDefault("JOB_TYPES", "data_export,data_deletion")),
		Concurrency:       getenvIntDefault("JOB_CONCURRENCY", 4),
		DequeueTimeout:    getenvDurationDefault("JOB_DEQUEUE_TIMEOUT", 10*time.Second),
		VisibilityTimeout: getenvDurationDefault("JOB_VISIBILITY_TIMEOUT", 5*time.Minute),
		MaintenanceEvery:  getenvDurationDefault("JOB_MAINTENANCE_EVERY", time.Minute),
		ExportDir:         getenvDefault("JOB_EXPORT_DIR", "exports"),
	}

	cfg.Log = LogConfig{
		Service:       getenvDefault("LOG_SERVICE", "security-gateway"),
		Level:         getenvDefault("LOG_LEVEL", "info"),
		File:          getenvDefault("LOG_FILE", ""),
		RemoteURL:     getenvDefault("LOG_REMOTE_URL", ""),
		RemoteToken:   getenvDefault("LOG_REMOTE_TOKEN", ""),
		FlushInterval: getenvDurationDefault("LOG_FLUSH_INTERVAL", 5*time.Second),
		BufferSize:    getenvIntDefault("LOG_BUFFER_SIZE", 100),
	}

	cfg.Metrics = MetricsConfig{
		Exporter: strings.ToLower(getenvDefault("METRICS_EXPORTER", "prometheus")),
		Addr:     getenvDefault("METRICS_ADDR", ":9090"),
		Interval: getenvDurationDefault("METRICS_INTERVAL", 30*time.Second),
		Version:  getenvDefault("SERVICE_VERSION", "dev"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.Jobs.Concurrency < 1 {
		return errors.New("JOB_CONCURRENCY must be >= 1")
	}
	if c.Jobs.DequeueTimeout < time.Second {
		return errors.New("JOB_DEQUEUE_TIMEOUT must be >= 1s")
	}
	switch c.Metrics.Exporter {
	case "none", "prometheus", "stdout":
	default:
		return errors.Errorf("METRICS_EXPORTER must be none, prometheus or stdout (got %q)", c.Metrics.Exporter)
	}
	if c.Production && c.Jobs.Secret == "" {
		return errors.New("JOB_SECRET is required when APP_ENV=production")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
