package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "EXTMEDIA_"

var lookupEnv = os.LookupEnv

type setter func(c *Config, v string) error

var envVars = map[string]setter{
	"DATABASE_DSN":        setString(func(c *Config) *string { return &c.DatabaseDSN }),
	"SETTINGS_PATH":       setString(func(c *Config) *string { return &c.SettingsPath }),
	"STORAGE_ROOT":        setString(func(c *Config) *string { return &c.StorageRoot }),
	"REDIS_URL":           setString(func(c *Config) *string { return &c.RedisURL }),
	"CRYPT_STRATEGY":      setString(func(c *Config) *string { return &c.CryptStrategy }),
	"LOG_LEVEL":           setString(func(c *Config) *string { return &c.LogLevel }),
	"LOG_VERBOSITY":       setInt(func(c *Config) *int { return &c.LogVerbosity }),
	"LOG_RETENTION":       setDuration(func(c *Config) *time.Duration { return &c.LogRetention }),
	"HTTP_TIMEOUT":        setDuration(func(c *Config) *time.Duration { return &c.HTTPTimeout }),
	"MAX_STAGE_BYTES":     setInt64(func(c *Config) *int64 { return &c.MaxStageBytes }),
	"QUEUE_BATCH_SIZE":    setInt(func(c *Config) *int { return &c.QueueBatchSize }),
	"QUEUE_MAX_ATTEMPTS":  setInt(func(c *Config) *int { return &c.QueueMaxAttempts }),
	"QUEUE_MAX_AGE":       setDuration(func(c *Config) *time.Duration { return &c.QueueMaxAge }),
	"QUEUE_LEASE_TIMEOUT": setDuration(func(c *Config) *time.Duration { return &c.QueueLeaseTimeout }),
	"CHECK_CONCURRENCY":   setInt(func(c *Config) *int { return &c.CheckConcurrency }),
	"ALLOWED_MIME_TYPES":  setList(func(c *Config) *[]string { return &c.AllowedMimeTypes }),
	"ALWAYS_DOWNLOAD":     setBool(func(c *Config) *bool { return &c.AlwaysDownload }),
	"SYNC_PRUNE_POLICY":   setString(func(c *Config) *string { return &c.SyncPrunePolicy }),
	"SCHEDULER_TICK":      setDuration(func(c *Config) *time.Duration { return &c.SchedulerTick }),
}

// parseEnv overlays EXTMEDIA_* variables onto cfg. Variables from envFile
// apply first; a missing file is not an error. Process variables win.
func parseEnv(cfg *Config, envFile string) error {
	fileVals := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read %s: %w", envFile, err)
		default:
			fileVals = m
		}
	}

	for name, set := range envVars {
		key := EnvPrefix + name
		v, ok := lookupEnv(key)
		if !ok {
			v, ok = fileVals[key]
		}
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setString(field func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func setInt64(field func(*Config) *int64) setter {
	return func(c *Config, v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func setBool(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func setList(field func(*Config) *[]string) setter {
	return func(c *Config, v string) error {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*field(c) = out
		return nil
	}
}
