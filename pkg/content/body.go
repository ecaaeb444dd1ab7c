package content

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/mockenv/mockenv/internal/matching"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/template"
)

// ErrNoFile is returned by ReadFile when the source has no file path.
var ErrNoFile = errors.New("no file path")

// Source is where a body comes from. Responses and callbacks both
// convert to it.
type Source struct {
	BodyType          environment.BodyType
	Body              string
	FilePath          string
	DatabucketID      string
	SendFileAsBody    bool
	DisableTemplating bool
}

// FromResponse returns the body source of a response.
func FromResponse(r *environment.Response) Source {
	return Source{
		BodyType:          r.BodyType,
		Body:              r.Body,
		FilePath:          r.FilePath,
		DatabucketID:      r.DatabucketID,
		SendFileAsBody:    r.SendFileAsBody,
		DisableTemplating: r.DisableTemplating,
	}
}

// FromCallback returns the body source of a callback.
func FromCallback(c *environment.Callback) Source {
	return Source{
		BodyType:       c.BodyType,
		Body:           c.Body,
		FilePath:       c.FilePath,
		DatabucketID:   c.DatabucketID,
		SendFileAsBody: c.SendFileAsBody,
	}
}

// IsFile reports whether the body is read from a file.
func (s Source) IsFile() bool {
	return s.BodyType == environment.BodyFile && s.FilePath != ""
}

// IsBucket reports whether the body is a data bucket value.
func (s Source) IsBucket() bool {
	return s.BodyType == environment.BodyDataBucket && s.DatabucketID != ""
}

// File is a file body read from disk.
type File struct {
	Path        string
	Name        string
	ContentType string
	Data        []byte
	// Templated is set when Data went through the template engine.
	Templated bool
}

// Renderer turns body sources into bytes.
type Renderer struct {
	engine  *template.Engine
	baseDir string
}

// NewRenderer returns a Renderer resolving relative file paths against
// baseDir.
func NewRenderer(engine *template.Engine, baseDir string) *Renderer {
	if engine == nil {
		engine = template.New()
	}
	return &Renderer{engine: engine, baseDir: baseDir}
}

// Engine returns the template engine.
func (r *Renderer) Engine() *template.Engine {
	return r.engine
}

// Bucket returns the stringified value of the source's data bucket. It
// reports false when the source is not a bucket body or the bucket does
// not exist. Bucket values are never templated again.
func (r *Renderer) Bucket(src Source, ctx *template.Context) (string, bool) {
	if !src.IsBucket() || ctx == nil || ctx.Buckets == nil {
		return "", false
	}
	v, ok := ctx.Buckets.Lookup(src.DatabucketID, ctx)
	if !ok {
		return "", false
	}
	return matching.Stringify(v), true
}

// Inline renders the inline body unless templating is disabled.
func (r *Renderer) Inline(src Source, ctx *template.Context) (string, error) {
	if src.DisableTemplating {
		return src.Body, nil
	}
	return r.engine.Render(src.Body, ctx)
}

// Text renders a non-file body: the bucket value when the source names
// an existing bucket, the inline body otherwise.
func (r *Renderer) Text(src Source, ctx *template.Context) (string, error) {
	if v, ok := r.Bucket(src, ctx); ok {
		return v, nil
	}
	return r.Inline(src, ctx)
}

// ResolvePath templates the file path and resolves it against the
// environment directory.
func (r *Renderer) ResolvePath(src Source, ctx *template.Context) (string, error) {
	if src.FilePath == "" {
		return "", ErrNoFile
	}
	p, err := r.engine.Render(strings.ReplaceAll(src.FilePath, `\`, "/"), ctx)
	if err != nil {
		return "", fmt.Errorf("file path: %w", err)
	}
	return environment.ResolvePath(r.baseDir, filepath.FromSlash(p)), nil
}

// ReadFile reads the source's file, templating its content when the
// file type supports it and templating is enabled.
func (r *Renderer) ReadFile(src Source, ctx *template.Context) (*File, error) {
	path, err := r.ResolvePath(src, ctx)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &File{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: MimeType(path),
		Data:        data,
	}
	if !src.DisableTemplating && Templatable(f.ContentType, path) {
		out, err := r.engine.Render(string(data), ctx)
		if err != nil {
			return nil, err
		}
		f.Data = []byte(out)
		f.Templated = true
	}
	return f, nil
}

// MimeType guesses the content type of path from its extension, falling
// back to application/octet-stream.
func MimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return "application/octet-stream"
}

var templatableTypes = map[string]bool{
	"application/json":       true,
	"application/javascript": true,
	"application/typescript": true,
	"application/xml":        true,
	"application/xhtml+xml":  true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"text/css":               true,
	"text/csv":               true,
	"text/html":              true,
	"text/javascript":        true,
	"text/plain":             true,
	"text/xml":               true,
	"text/yaml":              true,
}

var templatableExtensions = map[string]bool{
	".json": true, ".html": true, ".htm": true, ".css": true, ".csv": true,
	".js": true, ".ts": true, ".txt": true, ".xml": true, ".yaml": true,
	".yml": true, ".md": true, ".svg": true,
}

// Templatable reports whether a file of the given content type or path
// is rendered through the template engine before being sent.
func Templatable(contentType, path string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if templatableTypes[mediaType] {
		return true
	}
	return templatableExtensions[strings.ToLower(filepath.Ext(path))]
}
