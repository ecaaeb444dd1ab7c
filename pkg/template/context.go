package template

import (
	"os"
	"time"

	"github.com/mockenv/mockenv/pkg/faker"
	"github.com/mockenv/mockenv/pkg/request"
)

// VarStore is the run-scoped global variable store.
type VarStore interface {
	Get(name string) (any, bool)
	Set(name string, value any)
}

// BucketStore resolves data buckets. Lookup may materialize the bucket by
// rendering its definition with ctx. Update replaces the value through fn
// and reports whether the bucket exists.
type BucketStore interface {
	Lookup(ref string, ctx *Context) (any, bool)
	Update(ref string, ctx *Context, fn func(current any) any) bool
}

// ResponseState is the part of the response helpers may change.
type ResponseState struct {
	Status int
}

// ServerInfo describes the serving environment for baseUrl and friends.
type ServerInfo struct {
	Port   int
	TLS    bool
	Prefix string
}

// Context bundles everything a render may read.
type Context struct {
	// Request is nil for renders that are not tied to a request.
	Request  *request.Request
	Response *ResponseState
	Globals  VarStore
	Buckets  BucketStore
	Faker    *faker.Generator
	Server   ServerInfo

	EnvVarsPrefix string

	// This is the root context of the template.
	This any

	// Now and LookupEnv default to time.Now and os.LookupEnv.
	Now       func() time.Time
	LookupEnv func(string) (string, bool)
}

func (c *Context) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) lookupEnv(name string) (string, bool) {
	if c != nil && c.LookupEnv != nil {
		return c.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

// Detach returns a copy for renders that run after the response was sent.
// It has its own ResponseState, so helpers such as status cannot reach the
// original response.
func (c *Context) Detach() *Context {
	if c == nil {
		return &Context{Response: &ResponseState{}}
	}
	cp := *c
	cp.Response = &ResponseState{}
	if c.Response != nil {
		cp.Response.Status = c.Response.Status
	}
	return &cp
}

// WithRequest returns a shallow copy bound to req.
func (c *Context) WithRequest(req *request.Request) *Context {
	cp := *c
	cp.Request = req
	return &cp
}
