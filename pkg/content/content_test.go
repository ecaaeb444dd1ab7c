package content

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/runstate"
	"github.com/mockenv/mockenv/pkg/template"
)

func newCtx(t *testing.T, buckets ...*environment.DataBucket) *template.Context {
	t.Helper()
	run := runstate.New(&environment.Environment{Port: 3000, Data: buckets}, nil, runstate.Options{Seed: 7})
	return run.TemplateContext(nil, nil)
}

func TestRenderHeaders(t *testing.T) {
	var failed []string
	out := RenderHeaders(template.New(), []environment.Header{
		{Key: "X-Sum", Value: "{{add 1 2}}"},
		{Key: "", Value: "dropped"},
		{Key: "X-Empty", Value: ""},
		{Key: "X-Broken", Value: "{{#if}}"},
	}, newCtx(t), func(key string, _ error) { failed = append(failed, key) })

	require.Len(t, out, 2)
	assert.Equal(t, environment.Header{Key: "X-Sum", Value: "3"}, out[0])
	assert.Equal(t, HeaderParsingError, out[1].Value)
	assert.Equal(t, []string{"X-Broken"}, failed)
}

func TestApplyHeaders(t *testing.T) {
	h := http.Header{}
	ApplyHeaders(h, []environment.Header{
		{Key: "Content-Type", Value: "text/plain"},
		{Key: "content-type", Value: "application/json"},
		{Key: "Set-Cookie", Value: "a=1; Secure; Path=/"},
		{Key: "set-cookie", Value: "b=2"},
	})
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, []string{"a=1; Path=/", "b=2"}, h.Values("Set-Cookie"))
}

func TestStripDomain(t *testing.T) {
	assert.Equal(t, "sid=1; Path=/", StripDomain("sid=1; Domain=example.com; Path=/"))
}

func TestHeaderValue(t *testing.T) {
	hs := []environment.Header{{Key: "Content-Type", Value: "a"}, {Key: "content-type", Value: "b"}}
	v, ok := HeaderValue(hs, "CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = HeaderValue(hs, "X-Missing")
	assert.False(t, ok)
}

func TestRenderer_Text(t *testing.T) {
	ctx := newCtx(t,
		&environment.DataBucket{ID: "users", Name: "Users", Value: `[{"id":1}]`},
		&environment.DataBucket{ID: "motd", Name: "Message", Value: "hello"},
	)
	r := NewRenderer(nil, "")

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{"inline templated", Source{Body: "{{add 2 2}}"}, "4"},
		{"templating disabled", Source{Body: "{{add 2 2}}", DisableTemplating: true}, "{{add 2 2}}"},
		{"bucket json", Source{BodyType: environment.BodyDataBucket, DatabucketID: "users"}, `[{"id":1}]`},
		{"bucket text", Source{BodyType: environment.BodyDataBucket, DatabucketID: "motd"}, "hello"},
		{"missing bucket falls back to inline", Source{BodyType: environment.BodyDataBucket, DatabucketID: "nope", Body: "x"}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Text(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_ReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"n":{{add 1 1}}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("{{add 1 1}}"), 0o600))

	r := NewRenderer(nil, dir)
	ctx := newCtx(t)

	f, err := r.ReadFile(Source{BodyType: environment.BodyFile, FilePath: "data.json"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(f.Data))
	assert.True(t, f.Templated)
	assert.Equal(t, "data.json", f.Name)
	assert.Contains(t, f.ContentType, "application/json")

	f, err = r.ReadFile(Source{BodyType: environment.BodyFile, FilePath: "blob.bin"}, ctx)
	require.NoError(t, err)
	assert.Equal(t, "{{add 1 1}}", string(f.Data))
	assert.False(t, f.Templated)
	assert.Equal(t, "application/octet-stream", f.ContentType)

	f, err = r.ReadFile(Source{BodyType: environment.BodyFile, FilePath: "data.json", DisableTemplating: true}, ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":{{add 1 1}}}`, string(f.Data))

	_, err = r.ReadFile(Source{BodyType: environment.BodyFile, FilePath: "missing.json"}, ctx)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = r.ReadFile(Source{BodyType: environment.BodyFile}, ctx)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestRenderer_ResolvePathTemplated(t *testing.T) {
	r := NewRenderer(nil, "/srv/env")
	p, err := r.ResolvePath(Source{FilePath: `files\{{add 1 1}}.json`}, newCtx(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/env", "files", "2.json"), p)
}

func TestTemplatable(t *testing.T) {
	assert.True(t, Templatable("application/json; charset=utf-8", "x"))
	assert.True(t, Templatable("application/octet-stream", "notes.yml"))
	assert.False(t, Templatable("image/png", "logo.png"))
}
