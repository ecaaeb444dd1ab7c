// Package environment defines the environment document served by mockenv
// and the loaders, validation and import paths that produce it.
//
// An Environment is read-only for the lifetime of a run. Everything mutable
// (global variables, data bucket values, cursors) lives in run state.
package environment

import "strings"

// DefaultEnvVarsPrefix is prepended to names passed to getEnvVar.
const DefaultEnvVarsPrefix = "MOCKENV_"

// DefaultProxyTimeoutMs bounds upstream calls when ProxyTimeout is unset.
const DefaultProxyTimeoutMs = 30000

// Environment is the root configuration document.
type Environment struct {
	UUID           string `json:"uuid" yaml:"uuid"`
	Name           string `json:"name" yaml:"name"`
	Port           int    `json:"port" yaml:"port"`
	Hostname       string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	EndpointPrefix string `json:"endpointPrefix,omitempty" yaml:"endpointPrefix,omitempty"`
	// Latency in milliseconds applied to every response.
	Latency int `json:"latency,omitempty" yaml:"latency,omitempty"`

	Routes       []*Route      `json:"routes" yaml:"routes"`
	Folders      []*Folder     `json:"folders,omitempty" yaml:"folders,omitempty"`
	RootChildren []FolderChild `json:"rootChildren,omitempty" yaml:"rootChildren,omitempty"`
	Data         []*DataBucket `json:"data,omitempty" yaml:"data,omitempty"`
	Callbacks    []*Callback   `json:"callbacks,omitempty" yaml:"callbacks,omitempty"`

	Headers []Header `json:"headers,omitempty" yaml:"headers,omitempty"`

	ProxyMode         bool     `json:"proxyMode,omitempty" yaml:"proxyMode,omitempty"`
	ProxyHost         string   `json:"proxyHost,omitempty" yaml:"proxyHost,omitempty"`
	ProxyRemovePrefix bool     `json:"proxyRemovePrefix,omitempty" yaml:"proxyRemovePrefix,omitempty"`
	ProxyReqHeaders   []Header `json:"proxyReqHeaders,omitempty" yaml:"proxyReqHeaders,omitempty"`
	ProxyResHeaders   []Header `json:"proxyResHeaders,omitempty" yaml:"proxyResHeaders,omitempty"`
	// ProxyTimeout in milliseconds, DefaultProxyTimeoutMs when zero.
	ProxyTimeout int `json:"proxyTimeout,omitempty" yaml:"proxyTimeout,omitempty"`

	TLSOptions    *TLSOptions `json:"tlsOptions,omitempty" yaml:"tlsOptions,omitempty"`
	CORS          bool        `json:"cors,omitempty" yaml:"cors,omitempty"`
	EnvVarsPrefix string      `json:"envVarsPrefix,omitempty" yaml:"envVarsPrefix,omitempty"`
	// RecordRoutes turns proxied transactions into routes saved on shutdown.
	RecordRoutes bool `json:"recordRoutes,omitempty" yaml:"recordRoutes,omitempty"`
}

// RouteType distinguishes plain HTTP routes from CRUD and WebSocket routes.
type RouteType string

const (
	RouteTypeHTTP RouteType = "http"
	RouteTypeCRUD RouteType = "crud"
	RouteTypeWS   RouteType = "ws"
)

// ResponseMode selects how a route picks among its responses.
type ResponseMode string

const (
	ModeStatic     ResponseMode = "STATIC"
	ModeRules      ResponseMode = "RULES"
	ModeRandom     ResponseMode = "RANDOM"
	ModeSequential ResponseMode = "SEQUENTIAL"
	// ModeFallback evaluates rules but never falls back to the default
	// response: no match passes the request on.
	ModeFallback ResponseMode = "FALLBACK"
	// ModeDisableRules is accepted as a synonym of ModeStatic.
	ModeDisableRules ResponseMode = "DISABLE_RULES"
)

// StreamingMode selects the delivery mode of a WebSocket route.
type StreamingMode string

const (
	StreamingNone      StreamingMode = ""
	StreamingUnicast   StreamingMode = "UNICAST"
	StreamingBroadcast StreamingMode = "BROADCAST"
)

// BodyType says where a response body comes from.
type BodyType string

const (
	BodyInline     BodyType = "INLINE"
	BodyFile       BodyType = "FILE"
	BodyDataBucket BodyType = "DATABUCKET"
)

// LogicalOperator combines the rules of a response.
type LogicalOperator string

const (
	OperatorAND LogicalOperator = "AND"
	OperatorOR  LogicalOperator = "OR"
)

// MethodAll matches every HTTP method.
const MethodAll = "all"

// Route is an endpoint with its candidate responses.
type Route struct {
	UUID          string      `json:"uuid" yaml:"uuid"`
	Type          RouteType   `json:"type,omitempty" yaml:"type,omitempty"`
	Documentation string      `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Method        string      `json:"method" yaml:"method"`
	Endpoint      string      `json:"endpoint" yaml:"endpoint"`
	Responses     []*Response `json:"responses" yaml:"responses"`
	// ResponseMode empty or ModeStatic serves the default response.
	ResponseMode ResponseMode `json:"responseMode,omitempty" yaml:"responseMode,omitempty"`
	Disabled     bool         `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	StreamingMode StreamingMode `json:"streamingMode,omitempty" yaml:"streamingMode,omitempty"`
	// StreamingInterval in milliseconds.
	StreamingInterval int `json:"streamingInterval,omitempty" yaml:"streamingInterval,omitempty"`

	// DatabucketID backs CRUD routes.
	DatabucketID string `json:"databucketID,omitempty" yaml:"databucketID,omitempty"`
}

// Response is one canned answer of a route.
type Response struct {
	UUID       string   `json:"uuid" yaml:"uuid"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
	StatusCode int      `json:"statusCode" yaml:"statusCode"`
	Headers    []Header `json:"headers,omitempty" yaml:"headers,omitempty"`

	Body           string   `json:"body,omitempty" yaml:"body,omitempty"`
	BodyType       BodyType `json:"bodyType,omitempty" yaml:"bodyType,omitempty"`
	FilePath       string   `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	DatabucketID   string   `json:"databucketID,omitempty" yaml:"databucketID,omitempty"`
	SendFileAsBody bool     `json:"sendFileAsBody,omitempty" yaml:"sendFileAsBody,omitempty"`
	// Latency in milliseconds, added to the environment latency.
	Latency int `json:"latency,omitempty" yaml:"latency,omitempty"`

	Rules         []*Rule         `json:"rules,omitempty" yaml:"rules,omitempty"`
	RulesOperator LogicalOperator `json:"rulesOperator,omitempty" yaml:"rulesOperator,omitempty"`

	Default           bool   `json:"default,omitempty" yaml:"default,omitempty"`
	DisableTemplating bool   `json:"disableTemplating,omitempty" yaml:"disableTemplating,omitempty"`
	FallbackTo404     bool   `json:"fallbackTo404,omitempty" yaml:"fallbackTo404,omitempty"`
	CrudKey           string `json:"crudKey,omitempty" yaml:"crudKey,omitempty"`

	Callbacks []CallbackInvocation `json:"callbacks,omitempty" yaml:"callbacks,omitempty"`
}

// RuleTarget names the request part a rule extracts from.
type RuleTarget string

const (
	TargetBody          RuleTarget = "body"
	TargetQuery         RuleTarget = "query"
	TargetHeader        RuleTarget = "header"
	TargetCookie        RuleTarget = "cookie"
	TargetParams        RuleTarget = "params"
	TargetPath          RuleTarget = "path"
	TargetMethod        RuleTarget = "method"
	TargetRequestNumber RuleTarget = "request_number"
	TargetGlobalVar     RuleTarget = "global_var"
	TargetDataBucket    RuleTarget = "data_bucket"
	TargetTemplating    RuleTarget = "templating"
)

// RuleOperator is the comparison a rule applies.
type RuleOperator string

const (
	OpEquals          RuleOperator = "equals"
	OpRegex           RuleOperator = "regex"
	OpRegexI          RuleOperator = "regex_i"
	OpNull            RuleOperator = "null"
	OpEmptyArray      RuleOperator = "empty_array"
	OpArrayIncludes   RuleOperator = "array_includes"
	OpValidJSONSchema RuleOperator = "valid_json_schema"
)

// Rule is a predicate over extracted request data.
type Rule struct {
	Target RuleTarget `json:"target" yaml:"target"`
	// Modifier is the selector into the target (or the variable, bucket
	// or template for the corresponding targets).
	Modifier string       `json:"modifier,omitempty" yaml:"modifier,omitempty"`
	Value    string       `json:"value,omitempty" yaml:"value,omitempty"`
	Invert   bool         `json:"invert,omitempty" yaml:"invert,omitempty"`
	Operator RuleOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
}

// Header is a templated key/value pair.
type Header struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// DataBucket is a named, templated value memoized per run.
type DataBucket struct {
	UUID          string `json:"uuid" yaml:"uuid"`
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Value         string `json:"value" yaml:"value"`
}

// Callback is an outbound request fired after a response is sent.
type Callback struct {
	UUID           string   `json:"uuid" yaml:"uuid"`
	ID             string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string   `json:"name,omitempty" yaml:"name,omitempty"`
	Documentation  string   `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	URI            string   `json:"uri" yaml:"uri"`
	Method         string   `json:"method,omitempty" yaml:"method,omitempty"`
	Headers        []Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body           string   `json:"body,omitempty" yaml:"body,omitempty"`
	BodyType       BodyType `json:"bodyType,omitempty" yaml:"bodyType,omitempty"`
	FilePath       string   `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	DatabucketID   string   `json:"databucketID,omitempty" yaml:"databucketID,omitempty"`
	SendFileAsBody bool     `json:"sendFileAsBody,omitempty" yaml:"sendFileAsBody,omitempty"`
}

// CallbackInvocation attaches a callback to a response.
type CallbackInvocation struct {
	UUID string `json:"uuid" yaml:"uuid"`
	// Latency in milliseconds before the callback fires.
	Latency int `json:"latency,omitempty" yaml:"latency,omitempty"`
}

// Folder groups routes for display.
type Folder struct {
	UUID     string        `json:"uuid" yaml:"uuid"`
	Name     string        `json:"name" yaml:"name"`
	Children []FolderChild `json:"children,omitempty" yaml:"children,omitempty"`
}

// FolderChild references a route or a folder.
type FolderChild struct {
	Type string `json:"type" yaml:"type"`
	UUID string `json:"uuid" yaml:"uuid"`
}

// TLSOptions configures HTTPS serving.
type TLSOptions struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertPath string `json:"certPath,omitempty" yaml:"certPath,omitempty"`
	KeyPath  string `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	CAPath   string `json:"caPath,omitempty" yaml:"caPath,omitempty"`
}

// RouteByUUID returns the route with the given uuid.
func (e *Environment) RouteByUUID(uuid string) (*Route, bool) {
	for _, r := range e.Routes {
		if r.UUID == uuid {
			return r, true
		}
	}
	return nil, false
}

// CallbackByUUID returns the callback with the given uuid.
func (e *Environment) CallbackByUUID(uuid string) (*Callback, bool) {
	for _, c := range e.Callbacks {
		if c.UUID == uuid {
			return c, true
		}
	}
	return nil, false
}

// VarsPrefix returns the configured environment variable prefix.
func (e *Environment) VarsPrefix() string {
	if e.EnvVarsPrefix == "" {
		return DefaultEnvVarsPrefix
	}
	return e.EnvVarsPrefix
}

// Prefix returns the endpoint prefix without surrounding slashes.
func (e *Environment) Prefix() string {
	return strings.Trim(e.EndpointPrefix, "/")
}

// DefaultResponse returns the response flagged default, or the first
// response when none is.
func (r *Route) DefaultResponse() (*Response, int) {
	for i, resp := range r.Responses {
		if resp.Default {
			return resp, i
		}
	}
	if len(r.Responses) > 0 {
		return r.Responses[0], 0
	}
	return nil, -1
}

// Mode returns the normalized response mode.
func (r *Route) Mode() ResponseMode {
	switch r.ResponseMode {
	case "", ModeDisableRules:
		return ModeStatic
	}
	return r.ResponseMode
}

// MatchesMethod reports whether the route serves method.
func (r *Route) MatchesMethod(method string) bool {
	return r.Method == "" || strings.EqualFold(r.Method, MethodAll) || strings.EqualFold(r.Method, method)
}
