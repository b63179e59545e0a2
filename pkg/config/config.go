package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cuemby/turbosync/pkg/log"
)

// Config holds every environment-derived tunable for a turbosync process.
// Every field carries a documented default; a malformed environment value
// falls back to that default and is logged rather than treated as fatal,
// since an operator typo should never crash the scheduler.
type Config struct {
	MongoURI      string
	MongoDatabase string
	ESNode        string
	ESIndex       string
	ESUsername    string
	ESPassword    string
	UseWorker     bool
	BulkLoaderBin string

	FTPParallel int
	FTPRetries  int
	FTPTimeout  time.Duration

	TransformParallel int

	MongoWorkers    int
	MongoConcurrent int

	ESChunkLines      int
	ESBulkConcurrent  int
	ESIndexPrefix     string
	ESKeepOldIndexes  int

	StuckSyncThreshold time.Duration
	OverdueGrace       time.Duration
	HistoryRetention   time.Duration
	StartupDelay       time.Duration
	HealthCheckEvery   time.Duration

	MetricsAddr string
	DataDir     string
}

// Load reads Config from the environment, applying the defaults above.
func Load() Config {
	c := Config{
		MongoURI:      getenv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getenv("MONGODB_DATABASE", "turbosync"),
		ESNode:        getenv("ELASTICSEARCH_NODE", "http://localhost:9200"),
		ESIndex:       getenv("ELASTICSEARCH_INDEX", "automotive_parts"),
		ESUsername:    getenv("ELASTICSEARCH_USERNAME", ""),
		ESPassword:    getenv("ELASTICSEARCH_PASSWORD", ""),
		UseWorker:     getenvBool("SYNC_USE_WORKER", false),
		BulkLoaderBin: getenv("MONGOIMPORT_BIN", "mongoimport"),

		FTPParallel: getenvInt("FTP_PARALLEL", 30),
		FTPRetries:  getenvInt("FTP_RETRIES", 3),
		FTPTimeout:  getenvDuration("FTP_TIMEOUT", 60*time.Second),

		TransformParallel: getenvInt("TRANSFORM_PARALLEL", 24),

		MongoWorkers:    getenvInt("MONGO_WORKERS", 6),
		MongoConcurrent: getenvInt("MONGO_CONCURRENT", 4),

		ESChunkLines:     getenvInt("ES_CHUNK_LINES", 30000),
		ESBulkConcurrent: getenvInt("ES_BULK_CONCURRENT", 8),
		ESIndexPrefix:    getenv("ES_INDEX_PREFIX", "automotive_parts"),
		ESKeepOldIndexes: getenvInt("ES_KEEP_OLD_INDEXES", 1),

		StuckSyncThreshold: getenvDuration("STUCK_SYNC_THRESHOLD", time.Hour),
		OverdueGrace:       getenvDuration("OVERDUE_GRACE", 2*time.Hour),
		HistoryRetention:   getenvDuration("HISTORY_RETENTION", 90*24*time.Hour),
		StartupDelay:       getenvDuration("STARTUP_DELAY", 30*time.Second),
		HealthCheckEvery:   getenvDuration("HEALTH_CHECK_INTERVAL", 5*time.Minute),

		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
		DataDir:     getenv("DATA_DIR", "./turbosync-data"),
	}
	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Logger.Warn().Str("var", key).Str("value", v).Msg("invalid boolean env var, using default")
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Logger.Warn().Str("var", key).Str("value", v).Msg("invalid integer env var, using default")
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Logger.Warn().Str("var", key).Str("value", v).Msg("invalid duration env var, using default")
		return def
	}
	return d
}
