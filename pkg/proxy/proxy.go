// Package proxy forwards requests that no route answers to the
// environment's upstream host, and optionally records the proxied
// transactions as new routes.
package proxy

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/template"
)

// Options configures a Proxy.
type Options struct {
	// Client sends upstream requests. The default skips upstream TLS
	// verification so self-signed development backends work.
	Client   *http.Client
	Recorder *Recorder
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Proxy forwards requests upstream.
type Proxy struct {
	engine   *template.Engine
	client   *http.Client
	recorder *Recorder
	metrics  *metrics.Collector
	log      *slog.Logger
}

// New creates a Proxy rendering header templates with engine.
func New(engine *template.Engine, opts Options) *Proxy {
	if engine == nil {
		engine = template.New()
	}
	client := opts.Client
	if client == nil {
		client = defaultClient()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Proxy{
		engine:   engine,
		client:   client,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		log:      logging.Component(log, "proxy"),
	}
}

func defaultClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	//nolint:gosec // upstreams are development backends, often self-signed
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Recorder returns the transaction recorder, nil when recording is off.
func (p *Proxy) Recorder() *Recorder {
	return p.recorder
}

// Enabled reports whether env forwards unmatched requests.
func Enabled(env *environment.Environment) bool {
	if env == nil || !env.ProxyMode || env.ProxyHost == "" {
		return false
	}
	u, err := url.Parse(env.ProxyHost)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Timeout returns the upstream timeout configured for env.
func Timeout(env *environment.Environment) time.Duration {
	ms := env.ProxyTimeout
	if ms <= 0 {
		ms = environment.DefaultProxyTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// targetURL joins the upstream host with the escaped request path,
// dropping the endpoint prefix when the environment asks for it.
func targetURL(env *environment.Environment, escapedPath, rawQuery string) string {
	path := escapedPath
	if prefix := env.Prefix(); env.ProxyRemovePrefix && prefix != "" {
		if rest, ok := strings.CutPrefix(path, "/"+prefix); ok && (rest == "" || strings.HasPrefix(rest, "/")) {
			path = rest
		}
	}
	target := strings.TrimSuffix(env.ProxyHost, "/") + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}
