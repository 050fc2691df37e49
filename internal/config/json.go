package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Keys missing from the file
// keep their current value.
type JsonConfig struct {
	DatabaseDSN       string         `json:"database_dsn"`
	SettingsPath      string         `json:"settings_path"`
	StorageRoot       string         `json:"storage_root"`
	RedisURL          string         `json:"redis_url"`
	CryptStrategy     string         `json:"crypt_strategy"`
	LogLevel          string         `json:"log_level"`
	LogVerbosity      int            `json:"log_verbosity"`
	LogRetention      timex.Duration `json:"log_retention"`
	HTTPTimeout       timex.Duration `json:"http_timeout"`
	MaxStageBytes     int64          `json:"max_stage_bytes"`
	QueueBatchSize    int            `json:"queue_batch_size"`
	QueueMaxAttempts  int            `json:"queue_max_attempts"`
	QueueMaxAge       timex.Duration `json:"queue_max_age"`
	QueueLeaseTimeout timex.Duration `json:"queue_lease_timeout"`
	CheckConcurrency  int            `json:"check_concurrency"`
	AllowedMimeTypes  []string       `json:"allowed_mime_types"`
	AlwaysDownload    bool           `json:"always_download"`
	SyncPrunePolicy   string         `json:"sync_prune_policy"`
	SchedulerTick     timex.Duration `json:"scheduler_tick"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		DatabaseDSN:       c.DatabaseDSN,
		SettingsPath:      c.SettingsPath,
		StorageRoot:       c.StorageRoot,
		RedisURL:          c.RedisURL,
		CryptStrategy:     c.CryptStrategy,
		LogLevel:          c.LogLevel,
		LogVerbosity:      c.LogVerbosity,
		LogRetention:      timex.Duration{Duration: c.LogRetention},
		HTTPTimeout:       timex.Duration{Duration: c.HTTPTimeout},
		MaxStageBytes:     c.MaxStageBytes,
		QueueBatchSize:    c.QueueBatchSize,
		QueueMaxAttempts:  c.QueueMaxAttempts,
		QueueMaxAge:       timex.Duration{Duration: c.QueueMaxAge},
		QueueLeaseTimeout: timex.Duration{Duration: c.QueueLeaseTimeout},
		CheckConcurrency:  c.CheckConcurrency,
		AllowedMimeTypes:  c.AllowedMimeTypes,
		AlwaysDownload:    c.AlwaysDownload,
		SyncPrunePolicy:   c.SyncPrunePolicy,
		SchedulerTick:     timex.Duration{Duration: c.SchedulerTick},
	}
}

// parseJson overlays the JSON file at path onto config. An empty path
// loads nothing.
func parseJson(config *Config, path string) error {
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SettingsPath = c.SettingsPath
	config.StorageRoot = c.StorageRoot
	config.RedisURL = c.RedisURL
	config.CryptStrategy = c.CryptStrategy
	config.LogLevel = c.LogLevel
	config.LogVerbosity = c.LogVerbosity
	config.LogRetention = time.Duration(c.LogRetention.Duration)
	config.HTTPTimeout = time.Duration(c.HTTPTimeout.Duration)
	config.MaxStageBytes = c.MaxStageBytes
	config.QueueBatchSize = c.QueueBatchSize
	config.QueueMaxAttempts = c.QueueMaxAttempts
	config.QueueMaxAge = time.Duration(c.QueueMaxAge.Duration)
	config.QueueLeaseTimeout = time.Duration(c.QueueLeaseTimeout.Duration)
	config.CheckConcurrency = c.CheckConcurrency
	config.AllowedMimeTypes = c.AllowedMimeTypes
	config.AlwaysDownload = c.AlwaysDownload
	config.SyncPrunePolicy = c.SyncPrunePolicy
	config.SchedulerTick = time.Duration(c.SchedulerTick.Duration)
	return nil
}
