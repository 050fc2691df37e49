package config

import (
	"github.com/spf13/pflag"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
)

// RegisterFlags adds the configuration flags to fs, typically the
// persistent flag set of the root command. Flag defaults mirror
// LoadDefaults but only flags set on the command line override the JSON
// file and the environment.
//
//	-c, --config string          JSON config file
//	    --env-file string        .env file (default ".env")
//	-d, --database-dsn string    PostgreSQL DSN
//	    --settings-path string   bbolt settings file
//	    --storage-root string    blob storage directory
//	    --redis-url string       enables the cross-process sync lock
//	-v, --verbosity int          journal verbosity, 0..3
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(flagConfig, "c", "", "path to JSON config file")
	fs.String(flagEnvFile, ".env", "path to .env file")
	fs.StringP("database-dsn", "d", d.DatabaseDSN, "PostgreSQL DSN")
	fs.String("settings-path", d.SettingsPath, "settings store file")
	fs.String("storage-root", d.StorageRoot, "blob storage directory")
	fs.String("redis-url", d.RedisURL, "redis URL for the sync lock (optional)")
	fs.String("crypt-strategy", d.CryptStrategy, "crypt strategy: cbc-hmac or aead")
	fs.String("log-level", d.LogLevel, "structured log level")
	fs.IntP("verbosity", "v", d.LogVerbosity, "journal verbosity, 0..3")
	fs.Duration("log-retention", d.LogRetention, "journal retention")
	fs.Duration("http-timeout", d.HTTPTimeout, "HTTP request timeout")
	fs.Int64("max-stage-bytes", d.MaxStageBytes, "max bytes downloaded to sniff a mime type")
	fs.Int("queue-batch-size", d.QueueBatchSize, "queue entries per drain")
	fs.Int("queue-max-attempts", d.QueueMaxAttempts, "attempts before a queue entry is left failed")
	fs.Duration("queue-max-age", d.QueueMaxAge, "age after which queue entries are evicted")
	fs.Duration("queue-lease-timeout", d.QueueLeaseTimeout, "time after which a claimed entry is released")
	fs.Int("check-concurrency", d.CheckConcurrency, "parallel availability checks")
	fs.StringSlice("allowed-mime-types", d.AllowedMimeTypes, "allowed mime types")
	fs.Bool("always-download", d.AlwaysDownload, "cache every imported file")
	fs.String("sync-prune-policy", d.SyncPrunePolicy, "mark or delete files gone upstream")
	fs.Duration("scheduler-tick", d.SchedulerTick, "scheduler tick")
}

// applyFlags copies the explicitly set flags of fs into cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "database-dsn":
			cfg.DatabaseDSN, err = fs.GetString(f.Name)
		case "settings-path":
			cfg.SettingsPath, err = fs.GetString(f.Name)
		case "storage-root":
			cfg.StorageRoot, err = fs.GetString(f.Name)
		case "redis-url":
			cfg.RedisURL, err = fs.GetString(f.Name)
		case "crypt-strategy":
			cfg.CryptStrategy, err = fs.GetString(f.Name)
		case "log-level":
			cfg.LogLevel, err = fs.GetString(f.Name)
		case "verbosity":
			cfg.LogVerbosity, err = fs.GetInt(f.Name)
		case "log-retention":
			cfg.LogRetention, err = fs.GetDuration(f.Name)
		case "http-timeout":
			cfg.HTTPTimeout, err = fs.GetDuration(f.Name)
		case "max-stage-bytes":
			cfg.MaxStageBytes, err = fs.GetInt64(f.Name)
		case "queue-batch-size":
			cfg.QueueBatchSize, err = fs.GetInt(f.Name)
		case "queue-max-attempts":
			cfg.QueueMaxAttempts, err = fs.GetInt(f.Name)
		case "queue-max-age":
			cfg.QueueMaxAge, err = fs.GetDuration(f.Name)
		case "queue-lease-timeout":
			cfg.QueueLeaseTimeout, err = fs.GetDuration(f.Name)
		case "check-concurrency":
			cfg.CheckConcurrency, err = fs.GetInt(f.Name)
		case "allowed-mime-types":
			cfg.AllowedMimeTypes, err = fs.GetStringSlice(f.Name)
		case "always-download":
			cfg.AlwaysDownload, err = fs.GetBool(f.Name)
		case "sync-prune-policy":
			cfg.SyncPrunePolicy, err = fs.GetString(f.Name)
		case "scheduler-tick":
			cfg.SchedulerTick, err = fs.GetDuration(f.Name)
		}
	})
	return err
}
