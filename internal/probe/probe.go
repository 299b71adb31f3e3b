package probe

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/selimozcann/redirectvalidator/internal/httpclient"
	"github.com/selimozcann/redirectvalidator/internal/model"
)

// DefaultMaxRedirects matches the net/http client's default redirect policy.
const DefaultMaxRedirects = 10

var followStatus = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// Prober issues HEAD requests and follows redirects hop by hop.
type Prober struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxRedirects int
}

// New creates a Prober around c. The client must not follow redirects itself.
func New(c *http.Client) *Prober {
	return &Prober{Client: c, Timeout: httpclient.DefaultTimeout, MaxRedirects: DefaultMaxRedirects}
}

// Probe resolves target's redirect chain. It never returns an error: every
// transport problem becomes a failed ProbeResult with a Reason.
func (p *Prober) Probe(ctx context.Context, target string) (res model.ProbeResult) {
	start := time.Now()
	res = model.ProbeResult{Target: target}
	defer func() { res.Duration = time.Since(start) }()

	if !validTarget(target) {
		return failed(res, model.ReasonInvalidTarget, nil)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	maxRedirects := p.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	current := target
	for {
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, current, nil)
		if err != nil {
			return failed(res, model.ReasonInvalidTarget, err)
		}
		hopStart := time.Now()
		resp, err := p.Client.Do(req)
		if err != nil {
			return failed(res, Classify(ctx, err), err)
		}
		_ = resp.Body.Close()

		loc := resp.Header.Get("Location")
		if !followStatus[resp.StatusCode] || loc == "" {
			res.OK = true
			res.FinalURL = current
			return res
		}
		next, err := req.URL.Parse(loc)
		if err != nil {
			return failed(res, model.ReasonMalformed, err)
		}
		if next.Scheme != "http" && next.Scheme != "https" {
			return failed(res, model.ReasonUnsupported, nil)
		}

		res.Chain = append(res.Chain, model.Hop{
			Index:    len(res.Chain),
			URL:      current,
			Status:   resp.StatusCode,
			Location: next.String(),
			TimeMs:   time.Since(hopStart).Milliseconds(),
		})
		if len(res.Chain) >= maxRedirects {
			return failed(res, model.ReasonTooManyRedirects, nil)
		}
		current = next.String()
	}
}

func failed(res model.ProbeResult, reason model.Reason, err error) model.ProbeResult {
	res.OK = false
	res.Reason = reason
	res.Err = err
	return res
}

func validTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return u.Host != "" && u.Host != `\`
}
