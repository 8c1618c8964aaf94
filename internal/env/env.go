// Package env resolves the device environment: transport descriptors, the
// web API token and the device OS version. Every accessor reads its Source
// again, so changes to the environment take effect on the next call.
package env

import (
	"os"

	"github.com/larsen-farm/plugintools/pkg/lsos"
)

// Variable names read from the environment.
const (
	PluginURL        = "PLUGIN_URL"
	PluginToken      = "PLUGIN_TOKEN"
	RequestPipe      = "LARSEN_PLUGIN_API_V2_REQUEST_PIPE"
	ResponsePipe     = "LARSEN_PLUGIN_API_V2_RESPONSE_PIPE"
	APIToken         = "LARSEN_API_TOKEN"
	LegacyAPIToken   = "API_TOKEN"
	OSVersion        = "LARSEN_OS_VERSION"
	ImagesDir        = "IMAGES_DIR"
	BotStateDir      = "BOT_STATE_DIR"
	defaultOSVersion = "0"
)

// Source looks up a single variable.
type Source interface {
	Lookup(key string) (string, bool)
}

type osSource struct{}

func (osSource) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

// OS returns a Source backed by the process environment.
func OS() Source { return osSource{} }

// Map is a fixed Source, used by tests and by callers that assemble the
// environment themselves.
type Map map[string]string

func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type layered []Source

func (l layered) Lookup(key string) (string, bool) {
	for _, s := range l {
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Layered returns a Source that consults srcs in order and returns the
// first hit.
func Layered(srcs ...Source) Source { return layered(srcs) }

// PluginTransport is the base URL and bearer token of the device plugin API.
type PluginTransport struct {
	URL   string
	Token string
}

// PipeTransport names the request and response pipes of the v2 plugin API.
type PipeTransport struct {
	Request  string
	Response string
}

// Env answers environment questions against a Source.
type Env struct {
	src Source
}

// New wraps src. A nil src reads the process environment.
func New(src Source) *Env {
	if src == nil {
		src = OS()
	}
	return &Env{src: src}
}

// Get returns the value of key and whether it is set.
func (e *Env) Get(key string) (string, bool) {
	return e.src.Lookup(key)
}

// PluginTransport returns the HTTP plugin API descriptor when both the URL
// and token are set.
func (e *Env) PluginTransport() (PluginTransport, bool) {
	url, okURL := e.src.Lookup(PluginURL)
	token, okToken := e.src.Lookup(PluginToken)
	if !okURL || !okToken {
		return PluginTransport{}, false
	}
	return PluginTransport{URL: url, Token: token}, true
}

// PipeTransport returns the v2 pipe descriptor. It is only offered to
// devices running 8.0.0 or later.
func (e *Env) PipeTransport() (PipeTransport, bool) {
	if !e.LSOSAtLeast(8, 0, 0) {
		return PipeTransport{}, false
	}
	req, okReq := e.src.Lookup(RequestPipe)
	resp, okResp := e.src.Lookup(ResponsePipe)
	if !okReq || !okResp {
		return PipeTransport{}, false
	}
	return PipeTransport{Request: req, Response: resp}, true
}

// PluginAPIAvailable reports whether any device transport is configured.
func (e *Env) PluginAPIAvailable() bool {
	if _, ok := e.PluginTransport(); ok {
		return true
	}
	_, ok := e.PipeTransport()
	return ok
}

// APIToken returns the web API token, preferring LARSEN_API_TOKEN over the
// legacy API_TOKEN.
func (e *Env) APIToken() (string, bool) {
	if t, ok := e.src.Lookup(APIToken); ok && t != "" {
		return t, true
	}
	if t, ok := e.src.Lookup(LegacyAPIToken); ok && t != "" {
		return t, true
	}
	return "", false
}

// LSOSVersionString returns the raw device OS version, "0" when unset.
func (e *Env) LSOSVersionString() string {
	if v, ok := e.src.Lookup(OSVersion); ok && v != "" {
		return v
	}
	return defaultOSVersion
}

// LSOSVersion returns the parsed device OS version. Unparseable values are
// treated as version 0.
func (e *Env) LSOSVersion() lsos.Version {
	return lsos.ParseOrZero(e.LSOSVersionString())
}

// LSOSAtLeast reports whether the device OS satisfies the given components.
func (e *Env) LSOSAtLeast(required ...int) bool {
	return e.LSOSVersion().AtLeast(required...)
}

func (e *Env) ImagesDir() string {
	v, _ := e.src.Lookup(ImagesDir)
	return v
}

func (e *Env) BotStateDir() string {
	v, _ := e.src.Lookup(BotStateDir)
	return v
}
