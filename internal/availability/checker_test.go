package availability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/cryptox"
	"github.com/dmitrijs2005/extmedia/internal/importer"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/netx"
	"github.com/dmitrijs2005/extmedia/internal/protocols"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files/filestest"
	"github.com/dmitrijs2005/extmedia/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker(t *testing.T, repo *filestest.Memory, handler http.HandlerFunc, concurrency int) (*Checker, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	reg := protocols.NewRegistry(protocols.NewHTTPHandler(protocols.Deps{HTTPClient: netx.NewClient(time.Second)}))
	policy := importer.NewPolicy(settings.NewMemory(), []string{"application/pdf"}, false)
	j := logging.NewJournal(logging.Nop(), nil, nil)
	return NewChecker(repo, reg, policy, j, concurrency), ts
}

func TestChecker_CheckAll(t *testing.T) {
	repo := filestest.New()
	c, ts := newChecker(t, repo, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.pdf" {
			w.WriteHeader(http.StatusNotFound)
		}
	}, 2)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, f := range []*models.File{
		{URL: ts.URL + "/ok.pdf", MimeType: "application/pdf", CheckedAt: old},
		{URL: ts.URL + "/gone.pdf", MimeType: "application/pdf", Available: true, CheckedAt: old},
		{URL: ts.URL + "/ok.zip", MimeType: "application/zip", Available: true, CheckedAt: old},
		{URL: "gopher://host/x.pdf", MimeType: "application/pdf", Available: true, CheckedAt: old},
	} {
		require.NoError(t, repo.Create(context.Background(), f))
	}

	stats, err := c.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 4, Available: 1, Unavailable: 3}, stats)

	for _, f := range repo.All() {
		assert.Equal(t, f.URL == ts.URL+"/ok.pdf", f.Available, f.URL)
		assert.True(t, f.CheckedAt.After(old), f.URL)
	}
}

func TestChecker_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	repo := filestest.New()
	c, ts := newChecker(t, repo, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}, 3)

	for i := 0; i < 12; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.File{
			URL:      ts.URL + "/" + string(rune('a'+i)) + ".pdf",
			MimeType: "application/pdf",
		}))
	}

	stats, err := c.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Available)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestChecker_StorageError(t *testing.T) {
	repo := filestest.New(&models.File{URL: "http://example.com/a.pdf", MimeType: "application/pdf"})
	c, _ := newChecker(t, repo, func(http.ResponseWriter, *http.Request) {}, 1)
	repo.Err = errors.New("db down")

	_, err := c.CheckAll(context.Background())
	assert.Error(t, err)
}

func TestChecker_UsesStoredLogin(t *testing.T) {
	repo := filestest.New()
	c, ts := newChecker(t, repo, func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "alice" || p != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}, 1)
	crypt, err := cryptox.New(settings.NewMemory(), cryptox.StrategyAEAD, logging.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	private := &models.File{URL: ts.URL + "/private.pdf", MimeType: "application/pdf"}
	require.NoError(t, repo.Create(ctx, private))
	ct, err := crypt.Encrypt(`{"username":"alice","password":"s3cret"}`)
	require.NoError(t, err)
	require.NoError(t, repo.SetMeta(ctx, private.ID, common.MetaLogin, ct))

	anonymous := &models.File{URL: ts.URL + "/other.pdf", MimeType: "application/pdf", Available: true}
	require.NoError(t, repo.Create(ctx, anonymous))

	// without a cipher the stored login is not used
	ok, err := c.Check(ctx, private)
	require.NoError(t, err)
	assert.False(t, ok)

	c.SetCipher(crypt)
	ok, err = c.Check(ctx, private)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Check(ctx, anonymous)
	require.NoError(t, err)
	assert.False(t, ok)

	// a login sealed under another key is ignored
	require.NoError(t, repo.SetMeta(ctx, private.ID, common.MetaLogin, "bm90IHNlYWxlZA=="))
	ok, err = c.Check(ctx, private)
	require.NoError(t, err)
	assert.False(t, ok)
}
