// Package config loads service settings from the environment with an
// optional YAML (or JSON) file overlay. Environment always wins over file,
// file over defaults. Invalid values fall back to defaults with a logged
// notice unless STRICT_CONFIG is set, in which case loading fails.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the ingestion service.
type Config struct {
	WatchDir            string
	DBDriver            string
	DBDSN               string
	HTTPPort            string
	WorkerCount         int
	QueueSize           int
	CandidateTimeoutSec int
	PollIntervalSec     int
	LogLevel            string
	LogFormat           string
	StrictConfig        bool
}

type fileConfig struct {
	WatchDir        string `json:"watch_dir" yaml:"watch_dir"`
	DBDriver        string `json:"db_driver" yaml:"db_driver"`
	DBDSN           string `json:"db_dsn" yaml:"db_dsn"`
	HTTPPort        string `json:"http_port" yaml:"http_port"`
	PollIntervalSec int    `json:"poll_interval_sec" yaml:"poll_interval_sec"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	LogFormat       string `json:"log_format" yaml:"log_format"`
}

const (
	defaultPort        = ":8000"
	defaultWatchDir    = "runtime/exports"
	defaultDBDriver    = "sqlite"
	defaultDBFile      = "runtime/cad_ingest.db"
	minQueueSize       = 1
	defaultQueueSize   = 100
	maxQueueSize       = 1024
	defaultWorkerCount = 4
	maxWorkerCount     = 64
	defaultTimeoutSec  = 60
	defaultPollSec     = 300
)

// Load reads configuration from the environment and optional config file.
func Load() (Config, error) {
	godotenv.Load()

	cfg := Config{
		DBDriver:            defaultDBDriver,
		WorkerCount:         defaultWorkerCount,
		QueueSize:           defaultQueueSize,
		CandidateTimeoutSec: defaultTimeoutSec,
		PollIntervalSec:     defaultPollSec,
		LogLevel:            "info",
		LogFormat:           "json",
		StrictConfig:        parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil && !errors.Is(fileErr, os.ErrNotExist) {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.WatchDir = firstNonEmpty(os.Getenv("WATCH_DIR"), fileCfg.WatchDir, defaultWatchDir)
	cfg.DBDriver = strings.ToLower(firstNonEmpty(os.Getenv("DB_DRIVER"), fileCfg.DBDriver, defaultDBDriver))
	cfg.DBDSN = firstNonEmpty(os.Getenv("DB_DSN"), fileCfg.DBDSN, defaultDBFile)
	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fileCfg.LogLevel, cfg.LogLevel)
	cfg.LogFormat = firstNonEmpty(os.Getenv("LOG_FORMAT"), fileCfg.LogFormat, cfg.LogFormat)
	if fileCfg.PollIntervalSec > 0 {
		cfg.PollIntervalSec = fileCfg.PollIntervalSec
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid WORKER_COUNT=%q", v)
			}
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}
	cfg.WorkerCount = clampInt(cfg.WorkerCount, 1, maxWorkerCount)

	if v := os.Getenv("QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid QUEUE_SIZE=%q", v)
			}
			log.Printf("invalid QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		cfg.QueueSize = clampInt(n, minQueueSize, maxQueueSize)
	}
	if cfg.QueueSize < cfg.WorkerCount {
		cfg.QueueSize = cfg.WorkerCount
	}

	if v := os.Getenv("CANDIDATE_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid CANDIDATE_TIMEOUT_SEC=%q", v)
			}
			log.Printf("invalid CANDIDATE_TIMEOUT_SEC=%q, using default %d", v, defaultTimeoutSec)
			n = defaultTimeoutSec
		}
		cfg.CandidateTimeoutSec = n
	}

	if v := os.Getenv("POLL_INTERVAL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid POLL_INTERVAL_SEC=%q", v)
			}
			log.Printf("invalid POLL_INTERVAL_SEC=%q, using default %d", v, defaultPollSec)
			n = defaultPollSec
		}
		cfg.PollIntervalSec = n
	}

	if err := validate(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}
	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	return cfg, err
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.WatchDir) == "" {
		return errors.New("WATCH_DIR is required")
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres (got %q)", cfg.DBDriver)
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return errors.New("DB_DSN is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
