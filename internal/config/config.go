package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultSources lists every NGA daily memorandum in fetch order.
const DefaultSources = "Pacific,HYDROPAC,Atlantic,HYDROLANT,HYDROARC"

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Bulletin sources.
	Sources      []string
	MSIBaseURL   string
	RulesFile    string
	HeaderBlocks int

	// Fetch retry policy.
	FetchTimeout time.Duration
	FetchRetries int
	FetchBackoff time.Duration

	// RunInterval of 0 runs the pipeline once and exits.
	RunInterval     time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	LogMaxSizeMB    int
	LogMaxBackups   int
	ShutdownTimeout time.Duration

	// Record sinks. Each is enabled by its own setting.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaSinkTopic  string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	CSVOutput       string

	// Malformed-report notification.
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	NotifyFrom     string
	NotifyTo       []string
	NotifyCC       []string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	NotifyDedupTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sources:         splitList(sharedcfg.EnvOrDefault("MSI_SOURCES", DefaultSources)),
		MSIBaseURL:      sharedcfg.EnvOrDefault("MSI_BASE_URL", "https://msi.nga.mil/api/publications/download?type=view&key=16694640/SFH00000/"),
		RulesFile:       sharedcfg.EnvOrDefault("RULES_FILE", ""),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         sharedcfg.EnvOrDefault("LOG_FILE", ""),
		ShutdownTimeout: shutdownTimeout,
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "msi-broadcast-records"),
		MongoURI:        sharedcfg.EnvOrDefault("MONGO_URI", ""),
		MongoDatabase:   sharedcfg.EnvOrDefault("MONGO_DATABASE", "msi"),
		MongoCollection: sharedcfg.EnvOrDefault("MONGO_COLLECTION", "broadcast_reports"),
		CSVOutput:       sharedcfg.EnvOrDefault("CSV_OUTPUT", ""),
		SMTPHost:        sharedcfg.EnvOrDefault("SMTP_HOST", ""),
		SMTPUsername:    sharedcfg.EnvOrDefault("SMTP_USERNAME", ""),
		SMTPPassword:    sharedcfg.EnvOrDefault("SMTP_PASSWORD", ""),
		NotifyFrom:      sharedcfg.EnvOrDefault("NOTIFY_FROM", ""),
		NotifyTo:        splitList(sharedcfg.EnvOrDefault("NOTIFY_TO", "")),
		NotifyCC:        splitList(sharedcfg.EnvOrDefault("NOTIFY_CC", "")),
		RedisAddr:       sharedcfg.EnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:   sharedcfg.EnvOrDefault("REDIS_PASSWORD", ""),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.HeaderBlocks, err = parseInt("HEADER_BLOCKS", 3, 0)
	collect(err)
	cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "30s", false)
	collect(err)
	cfg.FetchRetries, err = parseInt("FETCH_RETRIES", 3, 1)
	collect(err)
	cfg.FetchBackoff, err = parseDuration("FETCH_BACKOFF", "500ms", false)
	collect(err)
	cfg.RunInterval, err = parseDuration("RUN_INTERVAL", "0s", true)
	collect(err)
	cfg.LogMaxSizeMB, err = parseInt("LOG_MAX_SIZE_MB", 100, 1)
	collect(err)
	cfg.LogMaxBackups, err = parseInt("LOG_MAX_BACKUPS", 5, 0)
	collect(err)
	cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false)
	collect(err)
	cfg.SMTPPort, err = parseInt("SMTP_PORT", 587, 1)
	collect(err)
	cfg.RedisDB, err = parseInt("REDIS_DB", 0, 0)
	collect(err)
	cfg.NotifyDedupTTL, err = parseDuration("NOTIFY_DEDUP_TTL", "24h", false)
	collect(err)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if len(cfg.Sources) == 0 {
		return nil, errors.New("MSI_SOURCES is required")
	}
	if cfg.MSIBaseURL == "" {
		return nil, errors.New("MSI_BASE_URL is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.SMTPHost != "" {
		if cfg.NotifyFrom == "" {
			return nil, errors.New("NOTIFY_FROM is required when SMTP_HOST is set")
		}
		if len(cfg.NotifyTo) == 0 {
			return nil, errors.New("NOTIFY_TO is required when SMTP_HOST is set")
		}
	}

	return cfg, nil
}

// NotificationsEnabled reports whether an SMTP relay is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(name string, def, minimum int) (int, error) {
	s := sharedcfg.EnvOrDefault(name, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", name, s, minimum)
	}
	return n, nil
}

func parseDuration(name, def string, allowZero bool) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return d, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(name, strconv.FormatBool(def))
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, s)
	}
	return b, nil
}
