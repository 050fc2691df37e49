package importer

import (
	"strings"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/settings"
)

// Policy exposes the runtime-tunable import settings. Values are read from
// the settings store on every call and fall back to the configured defaults.
type Policy struct {
	settings       settings.Store
	allowed        []string
	alwaysDownload bool
}

// NewPolicy builds a Policy. An empty allowed list means
// common.DefaultAllowedMimeTypes.
func NewPolicy(s settings.Store, allowed []string, alwaysDownload bool) *Policy {
	if len(allowed) == 0 {
		allowed = common.DefaultAllowedMimeTypes
	}
	return &Policy{settings: s, allowed: allowed, alwaysDownload: alwaysDownload}
}

func (p *Policy) AllowedMimeTypes() []string {
	return settings.List(p.settings, common.SettingAllowedMimeTypes, p.allowed)
}

func (p *Policy) AlwaysDownload() bool {
	return settings.Bool(p.settings, common.SettingAlwaysDownload, p.alwaysDownload)
}

// MimeAllowed checks mime against the current allow-list.
func (p *Policy) MimeAllowed(mime string) bool {
	return mimeIn(p.AllowedMimeTypes(), mime)
}

// mimeIn matches exact types and "type/*" wildcards, ignoring case and
// parameters.
func mimeIn(allowed []string, mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}
