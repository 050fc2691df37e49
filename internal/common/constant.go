package common

// Settings keys. Every key lives in one flat namespace of the settings store.
const (
	SettingCryptKey          = "crypt.key"
	SettingAllowedMimeTypes  = "import.allowed_mime_types"
	SettingAlwaysDownload    = "import.always_download"
	SettingLogVerbosity      = "log.verbosity"
	SettingServicePrefix     = "service."
	SettingSchedulePrefix    = "schedule."
	SettingScheduleIntervalS = ".interval"
)

// Metadata keys stored against a file identifier.
const (
	MetaExportPrefix = "export."
	// MetaLogin holds the encrypted login a file was imported with.
	MetaLogin = "login"
)

// DefaultAllowedMimeTypes is used until an operator stores another list.
var DefaultAllowedMimeTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	"application/pdf", "application/msword", "text/plain", "text/csv",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/x-tar", "application/gzip",
	"audio/mpeg", "audio/ogg", "audio/wav",
	"video/mp4", "video/webm", "video/quicktime",
}
