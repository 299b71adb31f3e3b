// Package detect decides whether a redirect chain leaves the origin that was
// requested and annotates the resulting findings.
package detect

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/selimozcann/redirectvalidator/internal/model"
	"github.com/selimozcann/redirectvalidator/internal/util"
)

// Policy selects which part of a chain is compared against the origin.
type Policy int

const (
	// PolicyFinal flags a chain whose final URL is on another authority.
	PolicyFinal Policy = iota
	// PolicyAnyHop also flags chains that leave the origin and come back.
	PolicyAnyHop
)

func (p Policy) String() string {
	if p == PolicyAnyHop {
		return "any-hop"
	}
	return "final"
}

// ParsePolicy accepts "final" or "any-hop".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "final":
		return PolicyFinal, nil
	case "any-hop", "anyhop", "any":
		return PolicyAnyHop, nil
	}
	return PolicyFinal, fmt.Errorf("unknown detection policy %q", s)
}

// Tags attached by Annotate.
const (
	TagInternal     = "internal-destination"
	TagDowngrade    = "https-downgrade"
	TagTokenInQuery = "token-in-destination"
)

var tokenKeys = map[string]bool{
	"token":        true,
	"access_token": true,
	"id_token":     true,
	"code":         true,
	"session":      true,
	"bearer":       true,
}

// Destination returns the first URL in the chain that left originalURL's
// authority under policy, or "" when the chain stays on the origin. An
// empty chain never has a destination.
func Destination(originalURL, finalURL string, chain []model.Hop, policy Policy) string {
	if len(chain) == 0 {
		return ""
	}
	origin := util.Authority(originalURL)
	if origin == "" {
		return ""
	}
	if policy == PolicyAnyHop {
		for _, hop := range chain {
			if a := util.Authority(hop.Location); a != "" && a != origin {
				return hop.Location
			}
		}
	}
	if a := util.Authority(finalURL); a != "" && a != origin {
		return finalURL
	}
	return ""
}

// IsFinding reports whether the chain constitutes an open redirect.
func IsFinding(originalURL, finalURL string, chain []model.Hop, policy Policy) bool {
	return Destination(originalURL, finalURL, chain, policy) != ""
}

// Evaluate turns a probe result into a finding. template is the
// pre-substitution URL whose authority defines the origin.
func Evaluate(template, payload string, res model.ProbeResult, policy Policy) (model.Finding, bool) {
	if !res.OK {
		return model.Finding{}, false
	}
	dest := Destination(template, res.FinalURL, res.Chain, policy)
	if dest == "" {
		return model.Finding{}, false
	}
	f := model.Finding{
		Template:    template,
		Payload:     payload,
		Target:      res.Target,
		Origin:      util.Authority(template),
		Destination: dest,
		FinalURL:    res.FinalURL,
		Chain:       append([]model.Hop(nil), res.Chain...),
		FoundAt:     time.Now().UTC(),
	}
	Annotate(&f)
	return f, true
}

// Annotate fills DestinationDomain and informational tags.
func Annotate(f *model.Finding) {
	u, err := url.Parse(f.Destination)
	if err != nil {
		return
	}
	f.DestinationDomain = util.RegistrableDomain(u)
	if util.IsInternalHost(u.Hostname()) {
		addTag(f, TagInternal)
	}
	for _, hop := range f.Chain {
		if HTTPSDowngrade(hop.URL, hop.Location) {
			addTag(f, TagDowngrade)
			break
		}
	}
	if TokenLeakage(u) {
		addTag(f, TagTokenInQuery)
	}
}

// HTTPSDowngrade reports if the scheme changed from https to http.
func HTTPSDowngrade(from, to string) bool {
	prev, err := url.Parse(from)
	if err != nil {
		return false
	}
	next, err := url.Parse(to)
	if err != nil {
		return false
	}
	return prev.Scheme == "https" && next.Scheme == "http"
}

// TokenLeakage detects sensitive tokens in query or fragment.
func TokenLeakage(u *url.URL) bool {
	for k := range u.Query() {
		if tokenKeys[strings.ToLower(k)] {
			return true
		}
	}
	if frag := u.Fragment; frag != "" {
		for _, part := range strings.Split(frag, "&") {
			k, _, _ := strings.Cut(part, "=")
			if tokenKeys[strings.ToLower(k)] {
				return true
			}
		}
	}
	return false
}

func addTag(f *model.Finding, tag string) {
	for _, t := range f.Tags {
		if t == tag {
			return
		}
	}
	f.Tags = append(f.Tags, tag)
}
