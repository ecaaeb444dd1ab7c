// Package callback fires the outbound HTTP calls attached to responses.
//
// Dispatch never blocks the request that triggered it: invocations are
// rendered and sent from a background goroutine, each after its own
// latency, and failures are only logged and counted.
package callback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/template"
)

// DefaultTimeout bounds a single callback request.
const DefaultTimeout = 30 * time.Second

// Results recorded in metrics.
const (
	ResultSuccess = "ok"
	ResultError   = "error"
)

// Options configures a Dispatcher.
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Dispatcher sends callbacks in the background.
type Dispatcher struct {
	renderer *content.Renderer
	client   *http.Client
	timeout  time.Duration
	metrics  *metrics.Collector
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Dispatcher rendering bodies with renderer.
func New(renderer *content.Renderer, opts Options) *Dispatcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		renderer: renderer,
		client:   client,
		timeout:  timeout,
		metrics:  opts.Metrics,
		log:      logging.Component(log, "callback"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// call is a rendered callback ready to be sent.
type call struct {
	name    string
	method  string
	url     string
	header  http.Header
	body    []byte
	latency time.Duration
}

// Dispatch schedules the callbacks attached to resp. tctx is the render
// context of the request that triggered them; callbacks render against a
// detached copy of it.
func (d *Dispatcher) Dispatch(env *environment.Environment, resp *environment.Response, tctx *template.Context) {
	if resp == nil || len(resp.Callbacks) == 0 {
		return
	}
	tctx = tctx.Detach()
	invocations := append([]environment.CallbackInvocation(nil), resp.Callbacks...)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, inv := range invocations {
			cb, ok := env.CallbackByUUID(inv.UUID)
			if !ok {
				continue
			}
			c, err := d.prepare(cb, inv, resp.DisableTemplating, tctx)
			if err != nil {
				d.log.Warn("callback preparation failed", "callback", cb.Name, "error", err)
				d.metrics.Callback(ResultError)
				continue
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.send(c)
			}()
		}
	}()
}

// Close cancels pending callbacks and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

// Wait blocks until every dispatched callback has completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) prepare(cb *environment.Callback, inv environment.CallbackInvocation, disableTemplating bool, tctx *template.Context) (*call, error) {
	engine := d.renderer.Engine()
	url, err := engine.Render(cb.URI, tctx)
	if err != nil {
		return nil, fmt.Errorf("uri: %w", err)
	}
	method := strings.ToUpper(cb.Method)
	if method == "" {
		method = http.MethodGet
	}
	c := &call{
		name:    cb.Name,
		method:  method,
		url:     url,
		header:  http.Header{},
		latency: time.Duration(inv.Latency) * time.Millisecond,
	}
	for _, h := range content.RenderHeaders(engine, cb.Headers, tctx, nil) {
		c.header.Set(h.Key, h.Value)
	}

	src := content.FromCallback(cb)
	src.DisableTemplating = disableTemplating
	switch {
	case src.IsFile():
		if err := d.fileBody(c, src, tctx); err != nil {
			return nil, fmt.Errorf("file: %w", err)
		}
	default:
		body, err := d.renderer.Text(src, tctx)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		if supportsBody(method) {
			c.body = []byte(body)
		}
	}
	return c, nil
}

func (d *Dispatcher) fileBody(c *call, src content.Source, tctx *template.Context) error {
	f, err := d.renderer.ReadFile(src, tctx)
	if err != nil {
		return err
	}
	if src.SendFileAsBody {
		c.body = f.Data
		if c.header.Get("Content-Type") == "" {
			c.header.Set("Content-Type", f.ContentType)
		}
		return nil
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(f.Data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	c.body = buf.Bytes()
	c.header.Set("Content-Type", mw.FormDataContentType())
	return nil
}

func (d *Dispatcher) send(c *call) {
	if c.latency > 0 {
		t := time.NewTimer(c.latency)
		select {
		case <-t.C:
		case <-d.ctx.Done():
			t.Stop()
			return
		}
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		d.fail(c, err)
		return
	}
	req.Header = c.header

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && d.ctx.Err() != nil {
			return
		}
		d.fail(c, err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	d.metrics.Callback(ResultSuccess)
	d.log.Debug("callback invoked", "callback", c.name, "method", c.method, "url", c.url, "status", resp.StatusCode)
}

func (d *Dispatcher) fail(c *call, err error) {
	d.metrics.Callback(ResultError)
	d.log.Warn("callback failed", "callback", c.name, "method", c.method, "url", c.url, "error", err)
}

// supportsBody reports whether a request body is sent for method.
func supportsBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}
