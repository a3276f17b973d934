package llm

import (
	"net"
	"net/http"
	"time"
)

// newProviderHTTPClient returns a client for one provider whose calls are
// bounded by callTimeout through the request context. The client timeout
// sits a little above it so the context always fires first.
func newProviderHTTPClient(callTimeout time.Duration) *http.Client {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &http.Client{
		Timeout: callTimeout + 10*time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: callTimeout,
			IdleConnTimeout:       90 * time.Second,
			// one host per provider
			MaxIdleConnsPerHost: 8,
			MaxConnsPerHost:     16,
			ForceAttemptHTTP2:   true,
		},
	}
}
