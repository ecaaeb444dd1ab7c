package resolver

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxCachedSchemas bounds schemaCache; the cache is dropped when full.
const maxCachedSchemas = 128

type schemaEntry struct {
	schema *jsonschema.Schema
	err    error
}

// schemaCache memoizes compiled schemas by their JSON text. Bucket values
// can change through setData, so the key is the content, not the path.
type schemaCache struct {
	mu      sync.RWMutex
	entries map[string]schemaEntry
}

func newSchemaCache() *schemaCache {
	return &schemaCache{entries: make(map[string]schemaEntry)}
}

func (c *schemaCache) get(schema any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(data)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.schema, e.err
	}

	s, err := compileSchema(key)
	c.mu.Lock()
	if len(c.entries) >= maxCachedSchemas {
		c.entries = make(map[string]schemaEntry)
	}
	c.entries[key] = schemaEntry{schema: s, err: err}
	c.mu.Unlock()
	return s, err
}

func compileSchema(text string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", strings.NewReader(text)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}
