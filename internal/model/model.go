package model

import "time"

// Hop represents a single redirect response in a chain.
type Hop struct {
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Location string `json:"location"`
	TimeMs   int64  `json:"time_ms"`
}

// Reason classifies why a probe produced no result.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonConnect          Reason = "connect"
	ReasonDNS              Reason = "dns"
	ReasonReset            Reason = "reset"
	ReasonTimeout          Reason = "timeout"
	ReasonTLS              Reason = "tls"
	ReasonTooManyRedirects Reason = "too_many_redirects"
	ReasonMalformed        Reason = "malformed"
	ReasonInvalidTarget    Reason = "invalid_target"
	ReasonUnsupported      Reason = "unsupported_scheme"
	ReasonCanceled         Reason = "canceled"
	ReasonPanic            Reason = "panic"
	ReasonUnknown          Reason = "unknown"
)

// ProbeResult is the outcome of one probe: either a resolved chain (OK) or a
// failure reason. Failures are expected and never returned as errors.
type ProbeResult struct {
	OK       bool
	Target   string
	FinalURL string
	Chain    []Hop
	Reason   Reason
	Err      error
	Duration time.Duration
}

// Redirected reports whether the server issued at least one redirect.
func (r ProbeResult) Redirected() bool { return r.OK && len(r.Chain) > 0 }

// Finding is a confirmed cross-origin redirect for one (template, payload) pair.
type Finding struct {
	Template          string    `json:"template"`
	Payload           string    `json:"payload"`
	Target            string    `json:"target"`
	Origin            string    `json:"origin"`
	Destination       string    `json:"destination"`
	DestinationDomain string    `json:"destination_domain,omitempty"`
	FinalURL          string    `json:"final_url"`
	Chain             []Hop     `json:"chain"`
	Tags              []string  `json:"tags,omitempty"`
	FoundAt           time.Time `json:"found_at"`
}

// Locations returns the chain as the ordered list of visited URLs, ending
// with the final URL.
func (f Finding) Locations() []string {
	out := make([]string, 0, len(f.Chain)+1)
	for _, h := range f.Chain {
		out = append(out, h.URL)
	}
	if f.FinalURL != "" && (len(out) == 0 || out[len(out)-1] != f.FinalURL) {
		out = append(out, f.FinalURL)
	}
	return out
}
