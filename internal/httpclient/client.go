package httpclient

import (
	"net/http"
	"time"

	"agentscore/internal/logging"
)

// DefaultUserAgent identifies the worker to every collaborator.
const DefaultUserAgent = "AgentScore-SkillBond/1.0"

// New returns an http.Client configured for outbound requests. Proxy
// settings come from HTTP(S)_PROXY/NO_PROXY.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(logger),
	}
}

// Transport returns a clone of the default transport.
func Transport(logger logging.Logger) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		logging.OrNop(logger).Warn("default transport is %T, building a fresh one", http.DefaultTransport)
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	transport := base.Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return transport
}
