package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewClient returns an *http.Client with a pooled transport tuned for a few
// long-lived upstream hosts. No overall timeout is set; only dialing and
// waiting for response headers are bounded.
func NewClient(connTimeout, respHeaderTimeout time.Duration) *http.Client {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	if respHeaderTimeout <= 0 {
		respHeaderTimeout = defaultRespTimeout
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: respHeaderTimeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       20,
			IdleConnTimeout:       120 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
