package security

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// MinTLSVersion is the oldest protocol the provider clients accept.
const MinTLSVersion = tls.VersionTLS12

// NewTransport returns an HTTP transport that refuses TLS below 1.2.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: MinTLSVersion},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// NewHTTPClient returns a client over NewTransport. A zero timeout leaves
// requests bounded only by their context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: NewTransport(), Timeout: timeout}
}
