package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/selimozcann/redirectvalidator/internal/detect"
	"github.com/selimozcann/redirectvalidator/internal/fuzz"
	"github.com/selimozcann/redirectvalidator/internal/model"
)

// DefaultConcurrency bounds in-flight probes when Config.Concurrency is unset.
const DefaultConcurrency = 100

// Prober resolves the redirect chain of one fully substituted URL.
type Prober interface {
	Probe(ctx context.Context, target string) model.ProbeResult
}

// Config holds settings for the runner.
type Config struct {
	Concurrency int
	Keyword     string
	RateLimit   int // requests per second, 0 = unlimited
	Policy      detect.Policy
}

// Update reports one processed (template, payload) pair. Finding is set when
// the pair redirected off-origin; Reason is set when the probe failed.
type Update struct {
	Processed int64
	Total     int64
	Template  string
	Payload   string
	Target    string
	Finding   *model.Finding
	Reason    model.Reason
}

// Stats is a snapshot of scan counters.
type Stats struct {
	Total        int64
	Processed    int64
	Findings     int64
	Failed       int64
	PeakInFlight int64
	Reasons      map[model.Reason]int64
	StartTime    time.Time
	Elapsed      time.Duration
}

// Runner coordinates concurrent probes over templates × payloads.
type Runner struct {
	cfg     Config
	prober  Prober
	log     zerolog.Logger
	limiter *rate.Limiter

	total     atomic.Int64
	processed atomic.Int64
	findings  atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
	peak      atomic.Int64

	mu      sync.Mutex
	reasons map[model.Reason]int64
	start   time.Time
	end     time.Time
}

// New creates a new Runner.
func New(cfg Config, prober Prober, log zerolog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Keyword == "" {
		cfg.Keyword = fuzz.DefaultMarker
	}
	r := &Runner{cfg: cfg, prober: prober, log: log}
	if cfg.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return r
}

// Run probes every (template, payload) pair and streams one Update per
// processed pair. Templates are dispatched in input order and payloads in
// list order. At most Config.Concurrency probes are in flight at any time.
// The channel is closed once every dispatched probe has reported; callers
// must drain it. Cancelling ctx stops dispatching new probes.
func (r *Runner) Run(ctx context.Context, templates, payloads []string) <-chan Update {
	r.reset(int64(len(templates)) * int64(len(payloads)))
	updates := make(chan Update, r.cfg.Concurrency)

	r.log.Info().
		Int("templates", len(templates)).
		Int("payloads", len(payloads)).
		Int64("total", r.total.Load()).
		Int("concurrency", r.cfg.Concurrency).
		Str("policy", r.cfg.Policy.String()).
		Msg("scan started")

	go func() {
		defer close(updates)
		swg := sizedwaitgroup.New(r.cfg.Concurrency)
		r.dispatch(ctx, &swg, templates, payloads, updates)
		swg.Wait()
		r.finish(ctx)
	}()
	return updates
}

func (r *Runner) dispatch(ctx context.Context, swg *sizedwaitgroup.SizedWaitGroup, templates, payloads []string, updates chan<- Update) {
	for _, tmpl := range templates {
		for _, payload := range payloads {
			if ctx.Err() != nil {
				return
			}
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if err := swg.AddWithContext(ctx); err != nil {
				return
			}
			go func(tmpl, payload string) {
				defer swg.Done()
				updates <- r.process(ctx, tmpl, payload)
			}(tmpl, payload)
		}
	}
}

// process runs one probe. Panics are recovered so a single pair never takes
// down its siblings; every call counts exactly once.
func (r *Runner) process(ctx context.Context, tmpl, payload string) (u Update) {
	target := fuzz.Fill(tmpl, r.cfg.Keyword, payload)
	u = Update{Template: tmpl, Payload: payload, Target: target, Total: r.total.Load()}

	r.observeInFlight(r.inFlight.Add(1))
	defer func() {
		r.inFlight.Add(-1)
		if rec := recover(); rec != nil {
			r.log.Error().Str("target", target).Interface("panic", rec).Msg("probe panicked")
			u.Finding = nil
			u.Reason = model.ReasonPanic
		}
		if u.Reason != model.ReasonNone {
			r.failed.Add(1)
			r.countReason(u.Reason)
		}
		if u.Finding != nil {
			r.findings.Add(1)
		}
		u.Processed = r.processed.Add(1)
	}()

	res := r.prober.Probe(ctx, target)
	if !res.OK {
		u.Reason = res.Reason
		if u.Reason == model.ReasonNone {
			u.Reason = model.ReasonUnknown
		}
		ev := r.log.Debug().Str("target", target).Str("reason", string(u.Reason))
		if res.Err != nil {
			ev = ev.Err(res.Err)
		}
		ev.Msg("probe failed")
		return u
	}

	if f, ok := detect.Evaluate(tmpl, payload, res, r.cfg.Policy); ok {
		u.Finding = &f
		r.log.Debug().Str("target", target).Str("destination", f.Destination).Msg("open redirect")
	}
	return u
}

// Collect runs the scan to completion and returns all findings.
func (r *Runner) Collect(ctx context.Context, templates, payloads []string) ([]model.Finding, Stats) {
	var findings []model.Finding
	for u := range r.Run(ctx, templates, payloads) {
		if u.Finding != nil {
			findings = append(findings, *u.Finding)
		}
	}
	return findings, r.Stats()
}

// Stats returns a snapshot of the current counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	reasons := make(map[model.Reason]int64, len(r.reasons))
	for k, v := range r.reasons {
		reasons[k] = v
	}
	elapsed := time.Since(r.start)
	if !r.end.IsZero() {
		elapsed = r.end.Sub(r.start)
	}
	return Stats{
		Total:        r.total.Load(),
		Processed:    r.processed.Load(),
		Findings:     r.findings.Load(),
		Failed:       r.failed.Load(),
		PeakInFlight: r.peak.Load(),
		Reasons:      reasons,
		StartTime:    r.start,
		Elapsed:      elapsed,
	}
}

func (r *Runner) reset(total int64) {
	r.total.Store(total)
	r.processed.Store(0)
	r.findings.Store(0)
	r.failed.Store(0)
	r.inFlight.Store(0)
	r.peak.Store(0)
	r.mu.Lock()
	r.reasons = make(map[model.Reason]int64)
	r.start = time.Now()
	r.end = time.Time{}
	r.mu.Unlock()
}

func (r *Runner) finish(ctx context.Context) {
	r.mu.Lock()
	r.end = time.Now()
	r.mu.Unlock()
	s := r.Stats()
	r.log.Info().
		Int64("processed", s.Processed).
		Int64("total", s.Total).
		Int64("findings", s.Findings).
		Int64("failed", s.Failed).
		Bool("interrupted", ctx.Err() != nil).
		Dur("elapsed", s.Elapsed).
		Msg("scan finished")
}

func (r *Runner) countReason(reason model.Reason) {
	r.mu.Lock()
	r.reasons[reason]++
	r.mu.Unlock()
}

func (r *Runner) observeInFlight(n int64) {
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}
