package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds one probe including every redirect hop.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (compatible; redirectvalidator/1.0)"

// Config holds settings for the HTTP client.
type Config struct {
	Timeout   time.Duration
	Proxy     func(*http.Request) (*url.URL, error)
	Headers   http.Header
	Cookie    string
	UserAgent string
	Insecure  bool
}

// headerRoundTripper wraps a base RoundTripper to inject headers and cookies.
type headerRoundTripper struct {
	base      http.RoundTripper
	headers   http.Header
	cookie    string
	userAgent string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" && h.userAgent != "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	for k, vs := range h.headers {
		r.Header.Del(k)
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if h.cookie != "" {
		r.Header.Set("Cookie", h.cookie)
	}
	return h.base.RoundTrip(r)
}

// New returns a configured HTTP client with manual redirect handling.
func New(cfg Config) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	proxy := cfg.Proxy
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}
	transport := &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure}, // #nosec G402 -- opt-in flag
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.Timeout,
	}

	return &http.Client{
		Transport: &headerRoundTripper{
			base:      transport,
			headers:   cfg.Headers,
			cookie:    cfg.Cookie,
			userAgent: cfg.UserAgent,
		},
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// redirects are followed hop by hop by the prober
			return http.ErrUseLastResponse
		},
	}
}
