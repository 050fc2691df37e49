package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files/filestest"
	"github.com/dmitrijs2005/extmedia/internal/repositories/terms"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------- test fakes --------

type fakeTerms struct {
	terms.Repository
	byID map[string]*models.DirectoryTerm
}

func (f *fakeTerms) Get(_ context.Context, id string) (*models.DirectoryTerm, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

// fakeImporter stores a file per URL the way the importer would.
type fakeImporter struct {
	files *filestest.Memory
	fail  map[string]bool
	urls  []string
}

func (f *fakeImporter) AddURL(ctx context.Context, url string, opts models.ImportOptions) (models.URLResult, error) {
	f.urls = append(f.urls, url)
	if f.fail[url] {
		return models.URLResult{URL: url, Reason: "nope"}, nil
	}
	file := &models.File{URL: url, Title: url, MimeType: "image/jpeg", Available: true, TermID: opts.TermID}
	if err := f.files.Create(ctx, file); err != nil {
		return models.URLResult{}, err
	}
	return models.URLResult{URL: url, FileID: file.ID, OK: true, Imported: 1}, nil
}

type fakeRemover struct {
	files   *filestest.Memory
	removed []string
	err     error
}

func (f *fakeRemover) RemoveFile(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, id)
	return f.files.Delete(ctx, id)
}

type fakeServices struct {
	backend backends.Backend
	err     error
}

func (f fakeServices) Backend(context.Context, string) (backends.Backend, error) {
	return f.backend, f.err
}

// deniedMimes allows every mime type it does not list.
type deniedMimes map[string]bool

func (d deniedMimes) MimeAllowed(mime string) bool { return !d[mime] }

type brokenList struct{ backends.Backend }

func (brokenList) List(context.Context, string, bool) ([]backends.Entry, error) {
	return nil, errors.New("connection reset by peer")
}

type journal struct {
	mu     sync.Mutex
	errors []string
}

func (j *journal) Error(_ context.Context, msg, _ string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, msg)
}

func (j *journal) Info(context.Context, int, string, string) {}

// -------- helpers --------

type env struct {
	engine   *Engine
	files    *filestest.Memory
	fs       afero.Fs
	backend  *backends.Local
	importer *fakeImporter
	remover  *fakeRemover
	journal  *journal
	denied   deniedMimes
	term     *models.DirectoryTerm
}

func newEnv(t *testing.T, policy PrunePolicy) *env {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, p := range []string{"/share/photos/a.jpg", "/share/photos/b.jpg", "/share/photos/sub/c.jpg"} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}

	e := &env{
		files:   filestest.New(),
		fs:      fs,
		backend: backends.NewLocalWithFS(fs, "/share"),
		journal: &journal{},
		denied:  deniedMimes{},
		term:    &models.DirectoryTerm{ID: "t1", Name: "photos", Service: "nas", DirectoryURL: "file:///share/photos", Enabled: true},
	}
	e.importer = &fakeImporter{files: e.files}
	e.remover = &fakeRemover{files: e.files}
	tr := &fakeTerms{byID: map[string]*models.DirectoryTerm{"t1": e.term}}
	e.engine = NewEngine(e.files, tr, fakeServices{backend: e.backend}, e.importer, e.remover, NewMemoryLocker(), e.journal, e.denied, policy)
	return e
}

func (e *env) urls() []string {
	var out []string
	for _, f := range e.files.All() {
		out = append(out, f.URL)
	}
	return out
}

// -------- tests --------

func TestSync_AddsMissingFiles(t *testing.T) {
	e := newEnv(t, PruneMark)

	res, err := e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, Result{Listed: 2, Added: 2}, res)
	assert.ElementsMatch(t, []string{"file:///share/photos/a.jpg", "file:///share/photos/b.jpg"}, e.urls())

	res, err = e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, Result{Listed: 2}, res)
	assert.Len(t, e.importer.urls, 2)
}

func TestSync_Recursive(t *testing.T) {
	e := newEnv(t, PruneMark)
	e.term.Recursive = true

	res, err := e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
}

func TestSync_MarkPolicy(t *testing.T) {
	e := newEnv(t, PruneMark)
	ctx := context.Background()

	_, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, e.fs.Remove("/share/photos/b.jpg"))
	res, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	f, err := e.files.GetByURL(ctx, "file:///share/photos/b.jpg")
	require.NoError(t, err)
	assert.False(t, f.Available)

	// pruning is not repeated for a file already marked
	res, err = e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Pruned)

	require.NoError(t, afero.WriteFile(e.fs, "/share/photos/b.jpg", []byte("x"), 0o644))
	res, err = e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restored)

	f, err = e.files.GetByURL(ctx, "file:///share/photos/b.jpg")
	require.NoError(t, err)
	assert.True(t, f.Available)
}

func TestSync_RestoreKeepsDisallowedMimeUnavailable(t *testing.T) {
	e := newEnv(t, PruneMark)
	ctx := context.Background()

	zip := &models.File{URL: "file:///share/photos/a.jpg", Title: "a.jpg", MimeType: "application/zip", TermID: "t1"}
	require.NoError(t, e.files.Create(ctx, zip))
	e.denied["application/zip"] = true

	res, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Restored)
	assert.Equal(t, 1, res.Added)

	f, err := e.files.GetByURL(ctx, zip.URL)
	require.NoError(t, err)
	assert.False(t, f.Available)

	// allowed again: the next pass restores it
	delete(e.denied, "application/zip")
	res, err = e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Restored)

	f, err = e.files.GetByURL(ctx, zip.URL)
	require.NoError(t, err)
	assert.True(t, f.Available)
}

func TestSync_DeletePolicy(t *testing.T) {
	e := newEnv(t, PruneDelete)
	ctx := context.Background()

	_, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, e.fs.Remove("/share/photos/a.jpg"))
	res, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.Len(t, e.remover.removed, 1)
	assert.Equal(t, []string{"file:///share/photos/b.jpg"}, e.urls())
}

func TestSync_FailedRemoveIsJournaled(t *testing.T) {
	e := newEnv(t, PruneDelete)
	ctx := context.Background()

	_, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)

	e.remover.err = common.ErrDeleteIncomplete
	require.NoError(t, e.fs.Remove("/share/photos/a.jpg"))
	res, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, res.Pruned)
	assert.Len(t, e.journal.errors, 1)
	assert.Len(t, e.files.All(), 2)
}

func TestSync_ListingFailureHasNoSideEffects(t *testing.T) {
	e := newEnv(t, PruneDelete)
	ctx := context.Background()

	_, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	before := e.urls()

	_, err = e.engine.Sync(ctx, e.term.DirectoryURL, brokenList{e.backend}, e.term)
	assert.Error(t, err)
	assert.Equal(t, before, e.urls())
	assert.Empty(t, e.remover.removed)
	assert.Len(t, e.journal.errors, 1)

	// a missing directory is a failed listing too, not an empty one
	require.NoError(t, e.fs.RemoveAll("/share/photos"))
	_, err = e.engine.SyncTerm(ctx, "t1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, before, e.urls())
	assert.Len(t, e.journal.errors, 2)
}

func TestSync_ImportFailuresCounted(t *testing.T) {
	e := newEnv(t, PruneMark)
	e.importer.fail = map[string]bool{"file:///share/photos/a.jpg": true}

	res, err := e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Failed)
}

func TestSync_SameTermIsSerialized(t *testing.T) {
	e := newEnv(t, PruneMark)
	release, ok, err := e.engine.locker.Lock(context.Background(), "sync:t1", DefaultLockTTL)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, e.importer.urls)

	release()
	res, err = e.engine.SyncTerm(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestSync_LockReleasedOnFailure(t *testing.T) {
	e := newEnv(t, PruneMark)
	ctx := context.Background()

	_, err := e.engine.Sync(ctx, e.term.DirectoryURL, brokenList{e.backend}, e.term)
	require.Error(t, err)

	_, ok, err := e.engine.locker.Lock(ctx, "sync:t1", DefaultLockTTL)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncTerm_DisabledAndErrors(t *testing.T) {
	e := newEnv(t, PruneMark)
	ctx := context.Background()

	e.term.Enabled = false
	res, err := e.engine.SyncTerm(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = e.engine.SyncTerm(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	e.term.Enabled = true
	e.engine.services = fakeServices{err: common.ErrDecrypt}
	_, err = e.engine.SyncTerm(ctx, "t1")
	assert.ErrorIs(t, err, common.ErrDecrypt)
	assert.Len(t, e.journal.errors, 1)
}

func TestParsePrunePolicy(t *testing.T) {
	p, err := ParsePrunePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PruneMark, p)

	p, err = ParsePrunePolicy("delete")
	require.NoError(t, err)
	assert.Equal(t, PruneDelete, p)

	_, err = ParsePrunePolicy("purge")
	assert.Error(t, err)
}
