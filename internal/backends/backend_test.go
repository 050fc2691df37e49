package backends

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		raw     string
		wantErr error
	}{
		{"local", KindLocal, `{"root":"/srv"}`, nil},
		{"local missing root", KindLocal, `{}`, nil},
		{"s3", KindS3, `{"bucket":"b","region":"eu-west-1"}`, nil},
		{"ftp with timeout", KindFTP, `{"host":"nas","timeout":"5s"}`, nil},
		{"webdav", KindWebDAV, `{"base_url":"https://dav/x"}`, nil},
		{"unknown kind", "gopher", `{}`, common.ErrUnknownService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeConfig(tt.kind, json.RawMessage(tt.raw))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.name == "local missing root":
				assert.ErrorContains(t, err, "root is required")
			default:
				require.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func TestDecodeConfig_FTPTimeout(t *testing.T) {
	cfg, err := DecodeConfig(KindFTP, json.RawMessage(`{"host":"nas","timeout":"5s"}`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.(*FTPConfig).Timeout.Duration)
}

func TestOpen_Local(t *testing.T) {
	b, err := Open(context.Background(), KindLocal, json.RawMessage(`{"root":"/tmp"}`))
	require.NoError(t, err)
	assert.Equal(t, KindLocal, b.Kind())
}

func TestOpen_WebDAVUsesSeam(t *testing.T) {
	fake := &fakeDAV{files: map[string][]byte{}}
	orig := newDAVClient
	t.Cleanup(func() { newDAVClient = orig })

	var gotTimeout time.Duration
	newDAVClient = func(_, _, _ string, timeout time.Duration) davClient {
		gotTimeout = timeout
		return fake
	}

	b, err := Open(context.Background(), KindWebDAV, json.RawMessage(`{"base_url":"https://dav/x"}`))
	require.NoError(t, err)
	assert.Equal(t, KindWebDAV, b.Kind())
	assert.Equal(t, defaultWebDAVTimeout, gotTimeout)
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "", cleanPath("/"))
	assert.Equal(t, "a/b", cleanPath("/a//b/"))
	assert.Equal(t, "etc", cleanPath("../../etc"))
}

func TestWithCredentials_Copies(t *testing.T) {
	orig := &FTPConfig{Host: "nas", Username: "a", Password: "b"}
	got := WithCredentials(orig, "u", "p").(*FTPConfig)
	assert.Equal(t, "u", got.Username)
	assert.Equal(t, "p", got.Password)
	assert.Equal(t, "a", orig.Username)

	s3 := WithCredentials(&S3Config{Bucket: "b"}, "key", "secret").(*S3Config)
	assert.Equal(t, "key", s3.AccessKey)
	assert.Equal(t, "secret", s3.SecretKey)

	local := &LocalConfig{Root: "/x"}
	assert.Same(t, local, WithCredentials(local, "u", "p"))
}

func TestPathOf(t *testing.T) {
	b := NewLocalWithFS(nil, "/exports")

	p, err := PathOf(b, "file:///exports/a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a/b.pdf", p)

	p, err = PathOf(b, "file:///exports")
	require.NoError(t, err)
	assert.Equal(t, "", p)

	_, err = PathOf(b, "file:///exportsx/a.pdf")
	assert.ErrorIs(t, err, common.ErrInvalidURL)

	_, err = PathOf(b, "ftp://host/exports/a.pdf")
	assert.ErrorIs(t, err, common.ErrInvalidURL)

	s3 := newS3WithClient(newFakeS3(), "media", "pre")
	p, err = PathOf(s3, "s3://media/pre/x/y.png")
	require.NoError(t, err)
	assert.Equal(t, "x/y.png", p)
}
