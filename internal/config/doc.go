// Package config loads runtime configuration for extmedia.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with --config / -c.
//  3. Environment: a .env file (see --env-file) read with godotenv, then
//     EXTMEDIA_* process variables, which win over the file.
//  4. Command-line flags that were set explicitly.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "15m" or
// integer nanoseconds:
//
//	{
//	  "database_dsn": "postgres://localhost/extmedia",
//	  "http_timeout": "30s",
//	  "allowed_mime_types": ["image/*", "application/pdf"]
//	}
//
// Values an operator tunes at runtime (allowed mime types, verbosity, job
// intervals) are read from the settings store first; the fields here are
// their fallbacks.
package config
