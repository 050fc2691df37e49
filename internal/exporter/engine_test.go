package exporter

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/dmitrijs2005/extmedia/internal/backends"
	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/credentials"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files/filestest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type services map[string]*credentials.Service

func (s services) Load(name string) (*credentials.Service, error) {
	svc, ok := s[name]
	if !ok {
		return nil, common.ErrUnknownService
	}
	return svc, nil
}

type engineEnv struct {
	engine *Engine
	files  *filestest.Memory
	blob   *blob.Storage
	target afero.Fs
	opened []backends.Config
	file   *models.File
}

func newEngine(t *testing.T) *engineEnv {
	t.Helper()
	store, f := cached(t)
	env := &engineEnv{
		files:  filestest.New(f),
		blob:   store,
		target: afero.NewMemMapFs(),
		file:   f,
	}
	svcs := services{
		"archive": {Name: "archive", Kind: backends.KindLocal, Config: &backends.LocalConfig{Root: "/exports"}},
		"bucket":  {Name: "bucket", Kind: backends.KindS3, Config: &backends.S3Config{Bucket: "media"}},
	}
	env.engine = NewEngine(env.files, store, svcs, logging.NewJournal(logging.Nop(), nil, nil))
	env.engine.open = func(_ context.Context, cfg backends.Config) (backends.Backend, error) {
		env.opened = append(env.opened, cfg)
		local := backends.NewLocalWithFS(env.target, "/exports")
		if _, ok := cfg.(*backends.S3Config); ok {
			return s3Kind{local}, nil
		}
		return local, nil
	}
	return env
}

func TestEngine_ExportAndDelete(t *testing.T) {
	env := newEngine(t)
	ctx := context.Background()

	u, err := env.engine.Export(ctx, "f1", "archive", "out/", nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///exports/out/report.pdf", u)

	got, err := env.files.GetMeta(ctx, "f1", "export.archive")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = env.engine.Export(ctx, "f1", "archive", "again/", nil)
	assert.ErrorIs(t, err, common.ErrTargetExists)

	require.NoError(t, env.engine.Delete(ctx, "f1", "archive", nil))
	ok, _ := afero.Exists(env.target, "/exports/out/report.pdf")
	assert.False(t, ok)

	_, err = env.files.GetMeta(ctx, "f1", "export.archive")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, env.engine.Delete(ctx, "f1", "archive", nil), common.ErrExportNotFound)
}

func TestEngine_ExportErrors(t *testing.T) {
	env := newEngine(t)
	ctx := context.Background()

	_, err := env.engine.Export(ctx, "f1", "archive", "", nil)
	assert.ErrorIs(t, err, common.ErrURLRequired)

	_, err = env.engine.Export(ctx, "f1", "nowhere", "x/", nil)
	assert.ErrorIs(t, err, common.ErrUnknownService)

	_, err = env.engine.Export(ctx, "missing", "archive", "x/", nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestEngine_GeneratedTargetAndLogin(t *testing.T) {
	env := newEngine(t)

	u, err := env.engine.Export(context.Background(), "f1", "bucket", "", &models.Login{Username: "AK", Password: "SK"})
	require.NoError(t, err)
	assert.Contains(t, u, "/exports/")

	require.Len(t, env.opened, 1)
	cfg := env.opened[0].(*backends.S3Config)
	assert.Equal(t, "AK", cfg.AccessKey)
	assert.Equal(t, "SK", cfg.SecretKey)
}

func TestEngine_DeleteWithLogin(t *testing.T) {
	env := newEngine(t)
	ctx := context.Background()

	open := env.engine.open
	env.engine.open = func(ctx context.Context, cfg backends.Config) (backends.Backend, error) {
		if c, ok := cfg.(*backends.S3Config); ok && c.AccessKey == "" {
			return nil, errors.New("no credentials for bucket")
		}
		return open(ctx, cfg)
	}
	login := &models.Login{Username: "AK", Password: "SK"}

	u, err := env.engine.Export(ctx, "f1", "bucket", "", login)
	require.NoError(t, err)

	assert.Error(t, env.engine.Delete(ctx, "f1", "bucket", nil))
	got, err := env.files.GetMeta(ctx, "f1", "export.bucket")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	require.NoError(t, env.engine.Delete(ctx, "f1", "bucket", login))
	_, err = env.files.GetMeta(ctx, "f1", "export.bucket")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	cfg := env.opened[len(env.opened)-1].(*backends.S3Config)
	assert.Equal(t, "AK", cfg.AccessKey)
	assert.Equal(t, "SK", cfg.SecretKey)
}

func TestEngine_RemoveFile(t *testing.T) {
	env := newEngine(t)
	ctx := context.Background()

	_, err := env.engine.Export(ctx, "f1", "archive", "a/", nil)
	require.NoError(t, err)
	_, err = env.engine.Export(ctx, "f1", "bucket", "", nil)
	require.NoError(t, err)

	exports, err := env.engine.Exports(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, exports, 2)

	require.NoError(t, env.engine.RemoveFile(ctx, "f1"))

	_, err = env.files.Get(ctx, "f1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	ok, _ := env.blob.Exists(env.file.LocalPath)
	assert.False(t, ok)

	left := 0
	_ = afero.Walk(env.target, "/", func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			left++
		}
		return nil
	})
	assert.Zero(t, left)
}

func TestEngine_RemoveFileStopsOnFailedExportDelete(t *testing.T) {
	env := newEngine(t)
	ctx := context.Background()

	_, err := env.engine.Export(ctx, "f1", "archive", "a/", nil)
	require.NoError(t, err)

	env.engine.open = func(_ context.Context, cfg backends.Config) (backends.Backend, error) {
		return stickyDelete{backends.NewLocalWithFS(env.target, "/exports")}, nil
	}

	err = env.engine.RemoveFile(ctx, "f1")
	assert.ErrorIs(t, err, common.ErrDeleteIncomplete)

	_, err = env.files.Get(ctx, "f1")
	assert.NoError(t, err)
}
