package protocols

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/netx"
)

// DefaultMaxStageBytes caps how much the HTTP handler downloads to sniff a
// response that declares no usable Content-Type.
const DefaultMaxStageBytes = 32 << 20

type httpHandler struct {
	client        *http.Client
	blob          *blob.Storage
	maxStageBytes int64
	index         URLIndex
	journal       Journal
}

// NewHTTPHandler is the generic http(s) handler, registered last. Redirects
// are never followed.
func NewHTTPHandler(d Deps) Handler {
	client := d.HTTPClient
	if client == nil {
		client = netx.NewClient(netx.DefaultTimeout)
	}
	limit := d.MaxStageBytes
	if limit <= 0 {
		limit = DefaultMaxStageBytes
	}
	return &httpHandler{client: client, blob: d.Blob, maxStageBytes: limit, index: d.Index, journal: d.Journal}
}

func (h *httpHandler) Name() string             { return NameHTTP }
func (h *httpHandler) ShouldBeSavedLocal() bool { return false }
func (h *httpHandler) CanChangeHosting() bool   { return true }

func (h *httpHandler) IsURLCompatible(rawURL string) bool {
	return hasScheme(rawURL, "http", "https")
}

func (h *httpHandler) CheckURL(rawURL string) bool {
	u, ok := parse(rawURL, "http", "https")
	return ok && u.Host != ""
}

func (h *httpHandler) URLInfos(ctx context.Context, rawURL string, login *models.Login) ([]models.FileInfo, error) {
	if !h.CheckURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidURL, common.RedactURL(rawURL))
	}

	// Cheap duplicate check first: no request for a URL already stored.
	if _, err := dedupe(ctx, h.index, h.journal, []models.FileInfo{{URL: rawURL}}); err != nil {
		return nil, err
	}

	resp, err := netx.Do(ctx, h.client, http.MethodHead, rawURL, loginOrNil(login))
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()

	info := models.FileInfo{
		Title:    titleFromResponse(resp, rawURL),
		URL:      rawURL,
		MimeType: normalizeMime(resp.Header.Get("Content-Type")),
		Size:     max(resp.ContentLength, 0),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.ModifiedAt = t
		}
	}

	if info.MimeType == "" || info.MimeType == octetStream {
		if err := h.stage(ctx, rawURL, login, &info); err != nil {
			return nil, err
		}
	}

	if h.journal != nil {
		h.journal.Info(ctx, logging.LevelDetailed, "resolved "+info.MimeType, rawURL)
	}
	return []models.FileInfo{info}, nil
}

// stage downloads up to maxStageBytes into blob storage and sniffs the type.
// A name-based guess is used when no blob storage is configured.
func (h *httpHandler) stage(ctx context.Context, rawURL string, login *models.Login, info *models.FileInfo) error {
	if h.blob == nil {
		info.MimeType = resolveMime("", info.Title, nil)
		return nil
	}

	resp, err := netx.Do(ctx, h.client, http.MethodGet, rawURL, loginOrNil(login))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp := blob.TempPath()
	n, err := h.blob.WriteFrom(tmp, resp.Body, h.maxStageBytes)
	if err != nil {
		return fmt.Errorf("stage %s: %w", common.RedactURL(rawURL), err)
	}

	info.MimeType = ""
	if rc, err := h.blob.Open(tmp); err == nil {
		info.MimeType = sniff(rc)
		_ = rc.Close()
	}
	if info.MimeType == "" || info.MimeType == octetStream {
		info.MimeType = resolveMime("", info.Title, nil)
	}
	if info.Size == 0 {
		info.Size = n
	}
	// A capped copy is only kept when it holds the whole body.
	info.Staged = n < h.maxStageBytes || resp.ContentLength == n
	if info.Staged {
		info.TempPath = tmp
	} else {
		_ = h.blob.Delete(tmp)
	}
	return nil
}

func (h *httpHandler) IsAvailable(ctx context.Context, rawURL string, login *models.Login) (bool, error) {
	resp, err := netx.Do(ctx, h.client, http.MethodHead, rawURL, loginOrNil(login))
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

func (h *httpHandler) Open(ctx context.Context, rawURL string, login *models.Login) (io.ReadCloser, error) {
	resp, err := netx.Do(ctx, h.client, http.MethodGet, rawURL, loginOrNil(login))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// titleFromResponse prefers Content-Disposition, then the last path segment,
// then the host.
func titleFromResponse(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if u, ok := parse(rawURL, "http", "https"); ok {
		if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
			return base
		}
		return strings.TrimPrefix(u.Host, "www.")
	}
	return rawURL
}

func loginOrNil(l *models.Login) *models.Login {
	if l.Empty() {
		return nil
	}
	return l
}
