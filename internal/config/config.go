package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Elasticsearch connection and index settings.
	ESURL         string
	ESUsername    string
	ESPassword    string
	ESTimeout     time.Duration
	ESRetryMax    int
	IndexName     string
	IndexShards   int
	IndexReplicas int

	// Public URL rewriting of local CAP paths.
	PublicBaseURL         string
	GeometWeatherBasePath string

	// Optional valueName of the CAP parameters holding the status and alert
	// type. Empty means positional lookup only.
	StatusParam    string
	AlertTypeParam string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string // empty disables feature publishing
	KafkaGroupID     string

	// Seen-document ledger.
	RedisURL        string // empty selects the in-memory ledger
	LedgerTTL       time.Duration
	LedgerCacheSize int

	// Raw document archive.
	ArchiveBucket string // empty disables archiving
	ArchivePrefix string
	AWSRegion     string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	esTimeout, err := parsePositiveDuration("ES_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	ledgerTTL, err := parsePositiveDuration("LEDGER_TTL", "24h")
	if err != nil {
		return nil, err
	}

	esRetryMax, err := parseInt("ES_RETRY_MAX", 3, 0)
	if err != nil {
		return nil, err
	}
	shards, err := parseInt("INDEX_SHARDS", 1, 1)
	if err != nil {
		return nil, err
	}
	replicas, err := parseInt("INDEX_REPLICAS", 0, 0)
	if err != nil {
		return nil, err
	}
	ledgerCacheSize, err := parseInt("LEDGER_CACHE_SIZE", 10000, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ESURL:         sharedcfg.EnvOrDefault("ES_URL", "http://localhost:9200"),
		ESUsername:    os.Getenv("ES_USERNAME"),
		ESPassword:    os.Getenv("ES_PASSWORD"),
		ESTimeout:     esTimeout,
		ESRetryMax:    esRetryMax,
		IndexName:     sharedcfg.EnvOrDefault("INDEX_NAME", "cap_alerts"),
		IndexShards:   shards,
		IndexReplicas: replicas,

		PublicBaseURL:         sharedcfg.EnvOrDefault("PUBLIC_BASE_URL", "https://dd.weather.gc.ca/"),
		GeometWeatherBasePath: sharedcfg.EnvOrDefault("GEOMET_WEATHER_BASEPATH", "/data/geomet/weather"),

		StatusParam:    os.Getenv("CAP_STATUS_PARAM"),
		AlertTypeParam: os.Getenv("CAP_ALERT_TYPE_PARAM"),

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "cap-notifications"),
		KafkaSinkTopic:   os.Getenv("KAFKA_SINK_TOPIC"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "cap-alerts-etl"),

		RedisURL:        os.Getenv("REDIS_URL"),
		LedgerTTL:       ledgerTTL,
		LedgerCacheSize: ledgerCacheSize,

		ArchiveBucket: os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix: sharedcfg.EnvOrDefault("ARCHIVE_PREFIX", "cap/raw/"),
		AWSRegion:     sharedcfg.EnvOrDefault("AWS_REGION", "ca-central-1"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.IndexName == "" {
		return nil, errors.New("INDEX_NAME is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if (cfg.ESUsername == "") != (cfg.ESPassword == "") {
		return nil, errors.New("ES_USERNAME and ES_PASSWORD must be set together")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}
