package protocols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/netx"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdfBody = "%PDF-1.4 fake pdf body"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
			w.Header().Set("Content-Length", "22")
		case "/download":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
			_, _ = w.Write([]byte(pdfBody))
		case "/unknown":
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
		case "/big":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/private":
			if u, p, ok := r.BasicAuth(); !ok || u != "u" || p != "p" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "image/png")
		case "/moved":
			http.Redirect(w, r, "/doc.pdf", http.StatusMovedPermanently)
		case "/slow":
			time.Sleep(300 * time.Millisecond)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newHTTP(t *testing.T, d Deps) (Handler, *blob.Storage) {
	t.Helper()
	if d.Blob == nil {
		d.Blob = blob.New(afero.NewMemMapFs())
	}
	if d.HTTPClient == nil {
		d.HTTPClient = netx.NewClient(100 * time.Millisecond)
	}
	return NewHTTPHandler(d), d.Blob
}

func TestHTTPHandler_HeadMetadata(t *testing.T) {
	ts := newServer(t)
	h, _ := newHTTP(t, Deps{})

	infos, err := h.URLInfos(context.Background(), ts.URL+"/doc.pdf", nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "doc.pdf", infos[0].Title)
	assert.Equal(t, "application/pdf", infos[0].MimeType)
	assert.EqualValues(t, 22, infos[0].Size)
	assert.Equal(t, 2015, infos[0].ModifiedAt.Year())
	assert.False(t, infos[0].Staged)
}

func TestHTTPHandler_StagesAndSniffs(t *testing.T) {
	ts := newServer(t)
	h, store := newHTTP(t, Deps{})

	infos, err := h.URLInfos(context.Background(), ts.URL+"/download", nil)
	require.NoError(t, err)
	fi := infos[0]
	assert.Equal(t, "report.pdf", fi.Title)
	assert.Equal(t, "application/pdf", fi.MimeType)
	assert.True(t, fi.Staged)
	assert.EqualValues(t, len(pdfBody), fi.Size)

	b, err := store.Read(fi.TempPath)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, string(b))

	infos, err = h.URLInfos(context.Background(), ts.URL+"/unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, "image/png", infos[0].MimeType)
}

func TestHTTPHandler_StageLimit(t *testing.T) {
	ts := newServer(t)
	h, store := newHTTP(t, Deps{MaxStageBytes: 16})

	infos, err := h.URLInfos(context.Background(), ts.URL+"/big", nil)
	require.NoError(t, err)
	assert.False(t, infos[0].Staged)
	assert.Empty(t, infos[0].TempPath)

	left, err := afero.ReadDir(store.Fs(), "/tmp")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestHTTPHandler_Errors(t *testing.T) {
	ts := newServer(t)
	h, _ := newHTTP(t, Deps{})
	ctx := context.Background()

	_, err := h.URLInfos(ctx, ts.URL+"/missing.pdf", nil)
	assert.ErrorIs(t, err, common.ErrUnexpectedStatus)

	_, err = h.URLInfos(ctx, ts.URL+"/moved", nil)
	assert.ErrorIs(t, err, common.ErrUnexpectedStatus)

	_, err = h.URLInfos(ctx, ts.URL+"/slow", nil)
	assert.ErrorIs(t, err, common.ErrTimeout)

	_, err = h.URLInfos(ctx, ts.URL+"/private", nil)
	assert.ErrorIs(t, err, common.ErrUnexpectedStatus)

	_, err = h.URLInfos(ctx, "http:///x", nil)
	assert.ErrorIs(t, err, common.ErrInvalidURL)
}

func TestHTTPHandler_BasicAuth(t *testing.T) {
	ts := newServer(t)
	h, _ := newHTTP(t, Deps{})

	infos, err := h.URLInfos(context.Background(), ts.URL+"/private", loginPtr("u", "p"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", infos[0].MimeType)
}

func TestHTTPHandler_DuplicateSkipsRequest(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer ts.Close()

	j := &recordingJournal{}
	h, _ := newHTTP(t, Deps{Index: urlSet{ts.URL + "/a.pdf": true}, Journal: j})

	_, err := h.URLInfos(context.Background(), ts.URL+"/a.pdf", nil)
	assert.ErrorIs(t, err, common.ErrDuplicate)
	assert.Zero(t, hits)
	assert.Len(t, j.warnings, 1)
}

func TestHTTPHandler_AvailabilityAndOpen(t *testing.T) {
	ts := newServer(t)
	h, _ := newHTTP(t, Deps{})
	ctx := context.Background()

	ok, err := h.IsAvailable(ctx, ts.URL+"/doc.pdf", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.IsAvailable(ctx, ts.URL+"/gone", nil)
	assert.Error(t, err)
	assert.False(t, ok)

	rc, err := h.Open(ctx, ts.URL+"/download", nil)
	require.NoError(t, err)
	_ = rc.Close()
}

func TestTitleFromResponse(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, "example.com", titleFromResponse(resp, "https://www.example.com/"))
	assert.Equal(t, "a b.pdf", titleFromResponse(resp, "https://example.com/x/a%20b.pdf"))
}
