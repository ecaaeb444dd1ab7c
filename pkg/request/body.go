package request

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Content types whose bodies are parsed into objects.
var (
	jsonMimeTypes = []string{"application/json", "+json"}
	formMimeTypes = []string{"application/x-www-form-urlencoded"}
	xmlMimeTypes  = []string{"application/xml", "text/xml", "+xml"}
)

const multipartMimeType = "multipart/form-data"

// maxMultipartMemory bounds the in-memory part of multipart parsing.
const maxMultipartMemory = 10 << 20

func contentTypeIs(contentType string, candidates []string) bool {
	ct := strings.ToLower(contentType)
	for _, c := range candidates {
		if strings.Contains(ct, c) {
			return true
		}
	}
	return false
}

// ParseBody parses body according to contentType. Unknown types, empty
// bodies and parse failures yield nil; the raw body stays available to
// callers either way.
func ParseBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	switch {
	case contentTypeIs(contentType, jsonMimeTypes):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil
		}
		return v
	case contentTypeIs(contentType, formMimeTypes):
		return ParseQuery(string(body))
	case contentTypeIs(contentType, xmlMimeTypes):
		return parseXML(body)
	case strings.Contains(strings.ToLower(contentType), multipartMimeType):
		return parseMultipart(contentType, body)
	}
	return nil
}

// parseXML converts an XML document into the compact object form: each
// element becomes an object keyed by tag, attributes live under
// "_attributes", text under "_text", and repeated siblings become arrays.
func parseXML(body []byte) any {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil
	}
	root := doc.Root()
	if root == nil {
		return nil
	}
	out := map[string]any{}
	if decl := declaration(doc); decl != nil {
		out["_declaration"] = decl
	}
	out[root.FullTag()] = xmlElement(root)
	return out
}

func declaration(doc *etree.Document) map[string]any {
	for _, tok := range doc.Child {
		pi, ok := tok.(*etree.ProcInst)
		if !ok || pi.Target != "xml" {
			continue
		}
		attrs := map[string]any{}
		inner := etree.NewDocument()
		if err := inner.ReadFromString("<d " + pi.Inst + "/>"); err == nil && inner.Root() != nil {
			for _, a := range inner.Root().Attr {
				attrs[a.Key] = a.Value
			}
		}
		return map[string]any{"_attributes": attrs}
	}
	return nil
}

func xmlElement(el *etree.Element) map[string]any {
	node := map[string]any{}
	if len(el.Attr) > 0 {
		attrs := make(map[string]any, len(el.Attr))
		for _, a := range el.Attr {
			attrs[a.FullKey()] = a.Value
		}
		node["_attributes"] = attrs
	}

	children := el.ChildElements()
	if text := strings.TrimSpace(el.Text()); text != "" {
		node["_text"] = text
	} else if len(children) == 0 {
		for _, tok := range el.Child {
			if cd, ok := tok.(*etree.CharData); ok && cd.IsCData() {
				node["_cdata"] = cd.Data
			}
		}
	}

	for _, child := range children {
		key := child.FullTag()
		value := xmlElement(child)
		switch existing := node[key].(type) {
		case nil:
			node[key] = value
		case []any:
			node[key] = append(existing, value)
		default:
			node[key] = []any{existing, value}
		}
	}
	return node
}

// parseMultipart returns form fields as strings and files as
// {filename, mimetype, size} objects.
func parseMultipart(contentType string, body []byte) any {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return nil
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	form, err := reader.ReadForm(maxMultipartMemory)
	if err != nil {
		return nil
	}
	defer func() { _ = form.RemoveAll() }()

	out := map[string]any{}
	for name, values := range form.Value {
		for _, v := range values {
			appendField(out, name, v)
		}
	}
	for name, files := range form.File {
		for _, fh := range files {
			appendField(out, name, map[string]any{
				"filename": fh.Filename,
				"mimetype": fh.Header.Get("Content-Type"),
				"size":     float64(fh.Size),
			})
		}
	}
	return out
}

func appendField(out map[string]any, name string, v any) {
	name = strings.TrimSuffix(name, "[]")
	switch existing := out[name].(type) {
	case nil:
		out[name] = v
	case []any:
		out[name] = append(existing, v)
	default:
		out[name] = []any{existing, v}
	}
}

// ParseQuery parses a query string into nested objects using bracket
// notation: "a[b]=1" gives {"a": {"b": "1"}}, "a[]=1&a[]=2" and repeated
// keys give arrays, "a[0]=x" gives an array.
func ParseQuery(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			k = key
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			v = value
		}
		insertQuery(out, splitQueryKey(k), v)
	}
	for k, v := range out {
		out[k] = normalizeIndexed(v)
	}
	return out
}

func splitQueryKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}
	parts := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		parts = append(parts, rest[1:end])
		rest = rest[end+1:]
	}
	return parts
}

func insertQuery(node map[string]any, parts []string, value string) {
	key := parts[0]
	if key == "__proto__" || key == "constructor" || key == "prototype" {
		return
	}
	if len(parts) == 1 {
		switch existing := node[key].(type) {
		case nil:
			node[key] = value
		case []any:
			node[key] = append(existing, value)
		case string:
			node[key] = []any{existing, value}
		}
		return
	}

	next := parts[1]
	if next == "" {
		arr, _ := node[key].([]any)
		if s, isString := node[key].(string); isString {
			arr = []any{s}
		}
		if len(parts) == 2 {
			node[key] = append(arr, value)
			return
		}
		child := map[string]any{}
		insertQuery(child, parts[2:], value)
		node[key] = append(arr, child)
		return
	}

	child, ok := node[key].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[key] = child
	}
	insertQuery(child, parts[1:], value)
}

// normalizeIndexed turns objects whose keys are all array indexes into
// arrays, ordered by index.
func normalizeIndexed(v any) any {
	switch n := v.(type) {
	case map[string]any:
		keys := make(map[int]string, len(n))
		for k, child := range n {
			n[k] = normalizeIndexed(child)
			if i, err := strconv.Atoi(k); err == nil && i >= 0 {
				keys[i] = k
			}
		}
		if len(n) == 0 || len(keys) != len(n) {
			return n
		}
		indexes := make([]int, 0, len(keys))
		for i := range keys {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		arr := make([]any, 0, len(indexes))
		for _, i := range indexes {
			arr = append(arr, n[keys[i]])
		}
		return arr
	case []any:
		for i := range n {
			n[i] = normalizeIndexed(n[i])
		}
		return n
	}
	return v
}

// ReadAll reads at most limit bytes from r.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r, limit))
}
