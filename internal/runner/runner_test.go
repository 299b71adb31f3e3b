package runner

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimozcann/redirectvalidator/internal/detect"
	"github.com/selimozcann/redirectvalidator/internal/model"
)

type mockProber struct {
	fn func(ctx context.Context, target string) model.ProbeResult

	mu      sync.Mutex
	targets []string
	active  atomic.Int64
	peak    atomic.Int64
}

func (m *mockProber) Probe(ctx context.Context, target string) model.ProbeResult {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	m.mu.Lock()
	m.targets = append(m.targets, target)
	m.mu.Unlock()
	return m.fn(ctx, target)
}

func redirectTo(dest string) func(context.Context, string) model.ProbeResult {
	return func(_ context.Context, target string) model.ProbeResult {
		return model.ProbeResult{
			OK:       true,
			Target:   target,
			FinalURL: dest,
			Chain:    []model.Hop{{URL: target, Status: http.StatusFound, Location: dest}},
		}
	}
}

func noRedirect(_ context.Context, target string) model.ProbeResult {
	return model.ProbeResult{OK: true, Target: target, FinalURL: target}
}

func sleepy(d time.Duration) func(context.Context, string) model.ProbeResult {
	return func(ctx context.Context, target string) model.ProbeResult {
		select {
		case <-ctx.Done():
			return model.ProbeResult{Target: target, Reason: model.ReasonCanceled, Err: ctx.Err()}
		case <-time.After(d):
			return noRedirect(ctx, target)
		}
	}
}

func newRunner(cfg Config, p Prober) *Runner {
	return New(cfg, p, zerolog.Nop())
}

func TestScanFindsCrossOriginRedirect(t *testing.T) {
	t.Parallel()
	p := &mockProber{fn: func(_ context.Context, target string) model.ProbeResult {
		return model.ProbeResult{
			OK:       true,
			Target:   target,
			FinalURL: "http://evil.test",
			Chain: []model.Hop{
				{URL: "http://a.test/r?x=%2Fhttps%3A%2F%2Fevil.test", Status: http.StatusFound, Location: "http://evil.test"},
			},
		}
	}}
	r := newRunner(Config{}, p)

	findings, stats := r.Collect(context.Background(), []string{"http://a.test/r?x=FUZZ"}, []string{"/https://evil.test"})
	require.Len(t, findings, 1)
	assert.Equal(t, "evil.test", findings[0].DestinationDomain)
	assert.Equal(t, "http://evil.test", findings[0].Destination)
	assert.Equal(t, "http://a.test/r?x=/https://evil.test", findings[0].Target)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Findings)
	assert.Equal(t, []string{"http://a.test/r?x=/https://evil.test"}, p.targets)
}

func TestScanNoRedirect(t *testing.T) {
	t.Parallel()
	r := newRunner(Config{}, &mockProber{fn: noRedirect})

	findings, stats := r.Collect(context.Background(), []string{"http://a.test/r?x=FUZZ"}, []string{"/https://evil.test"})
	assert.Empty(t, findings)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestScanConnectionReset(t *testing.T) {
	t.Parallel()
	r := newRunner(Config{}, &mockProber{fn: func(_ context.Context, target string) model.ProbeResult {
		return model.ProbeResult{Target: target, Reason: model.ReasonReset, Err: syscall.ECONNRESET}
	}})

	var updates []Update
	for u := range r.Run(context.Background(), []string{"http://a.test/r?x=FUZZ"}, []string{"/https://evil.test"}) {
		updates = append(updates, u)
	}
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0].Finding)
	assert.Equal(t, model.ReasonReset, updates[0].Reason)
	assert.Equal(t, int64(1), updates[0].Processed)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Reasons[model.ReasonReset])
}

func TestScanProcessesFullCrossProduct(t *testing.T) {
	t.Parallel()
	templates := []string{"http://a.test/?u=FUZZ", "http://b.test/?u=FUZZ", "http://c.test/?u=FUZZ"}
	payloads := []string{"//evil.test", "/home", "//evil.test/x", "bad"}

	p := &mockProber{fn: func(ctx context.Context, target string) model.ProbeResult {
		switch {
		case strings.HasSuffix(target, "bad"):
			return model.ProbeResult{Target: target, Reason: model.ReasonTimeout}
		case strings.Contains(target, "evil"):
			return redirectTo("http://evil.test/")(ctx, target)
		}
		return noRedirect(ctx, target)
	}}
	r := newRunner(Config{Concurrency: 4}, p)

	var (
		count    int
		maxSeen  int64
		findings int
	)
	for u := range r.Run(context.Background(), templates, payloads) {
		count++
		assert.Equal(t, int64(12), u.Total)
		if u.Processed > maxSeen {
			maxSeen = u.Processed
		}
		if u.Finding != nil {
			findings++
		}
	}
	assert.Equal(t, 12, count)
	assert.Equal(t, int64(12), maxSeen)
	assert.Equal(t, 6, findings)

	stats := r.Stats()
	assert.Equal(t, int64(12), stats.Processed)
	assert.Equal(t, int64(6), stats.Findings)
	assert.Equal(t, int64(3), stats.Failed)
	assert.LessOrEqual(t, stats.Findings, stats.Total)
}

func TestScanRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()
	templates := make([]string, 5)
	for i := range templates {
		templates[i] = "http://a.test/?n=FUZZ"
	}
	payloads := []string{"1", "2", "3", "4", "5", "6"}

	p := &mockProber{fn: sleepy(20 * time.Millisecond)}
	r := newRunner(Config{Concurrency: 3}, p)

	_, stats := r.Collect(context.Background(), templates, payloads)
	assert.Equal(t, int64(30), stats.Processed)
	assert.LessOrEqual(t, p.peak.Load(), int64(3))
	assert.LessOrEqual(t, stats.PeakInFlight, int64(3))
	assert.GreaterOrEqual(t, stats.PeakInFlight, int64(1))
}

func TestScanSequentialOrder(t *testing.T) {
	t.Parallel()
	p := &mockProber{fn: noRedirect}
	r := newRunner(Config{Concurrency: 1, Keyword: "KW"}, p)

	_, stats := r.Collect(context.Background(), []string{"http://a.test/?x=KW&y=KW", "http://b.test/KW"}, []string{"p1", "p2"})
	assert.Equal(t, int64(4), stats.Processed)
	assert.Equal(t, []string{
		"http://a.test/?x=p1&y=p1",
		"http://a.test/?x=p2&y=p2",
		"http://b.test/p1",
		"http://b.test/p2",
	}, p.targets)
}

func TestScanIsolatesPanics(t *testing.T) {
	t.Parallel()
	p := &mockProber{fn: func(ctx context.Context, target string) model.ProbeResult {
		if strings.HasSuffix(target, "boom") {
			panic("transport exploded")
		}
		return redirectTo("http://evil.test/")(ctx, target)
	}}
	r := newRunner(Config{Concurrency: 2}, p)

	findings, stats := r.Collect(context.Background(), []string{"http://a.test/?r=FUZZ"}, []string{"one", "boom", "two"})
	assert.Len(t, findings, 2)
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(1), stats.Reasons[model.ReasonPanic])
}

func TestScanEmptyFailureReasonBecomesUnknown(t *testing.T) {
	t.Parallel()
	r := newRunner(Config{}, &mockProber{fn: func(_ context.Context, target string) model.ProbeResult {
		return model.ProbeResult{Target: target, Err: errors.New("odd")}
	}})
	_, stats := r.Collect(context.Background(), []string{"http://a.test/?r=FUZZ"}, []string{"x"})
	assert.Equal(t, int64(1), stats.Reasons[model.ReasonUnknown])
}

func TestScanAnyHopPolicy(t *testing.T) {
	t.Parallel()
	bounce := func(_ context.Context, target string) model.ProbeResult {
		return model.ProbeResult{
			OK:       true,
			Target:   target,
			FinalURL: "http://a.test/back",
			Chain: []model.Hop{
				{URL: target, Status: http.StatusFound, Location: "http://evil.test/b"},
				{URL: "http://evil.test/b", Status: http.StatusFound, Location: "http://a.test/back"},
			},
		}
	}
	templates := []string{"http://a.test/?r=FUZZ"}
	payloads := []string{"x"}

	final, _ := newRunner(Config{Policy: detect.PolicyFinal}, &mockProber{fn: bounce}).Collect(context.Background(), templates, payloads)
	assert.Empty(t, final)

	anyHop, _ := newRunner(Config{Policy: detect.PolicyAnyHop}, &mockProber{fn: bounce}).Collect(context.Background(), templates, payloads)
	require.Len(t, anyHop, 1)
	assert.Equal(t, "http://evil.test/b", anyHop[0].Destination)
}

func TestScanCancelStopsPromptly(t *testing.T) {
	t.Parallel()
	templates := make([]string, 50)
	for i := range templates {
		templates[i] = "http://a.test/?n=FUZZ"
	}
	payloads := []string{"1", "2", "3", "4"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := newRunner(Config{Concurrency: 2}, &mockProber{fn: sleepy(time.Second)})
	start := time.Now()
	_, stats := r.Collect(ctx, templates, payloads)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Less(t, stats.Processed, stats.Total)
	assert.Equal(t, stats.Processed, stats.Reasons[model.ReasonCanceled])
}

func TestScanAlreadyCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &mockProber{fn: noRedirect}
	done := make(chan Stats)
	go func() {
		_, stats := newRunner(Config{Concurrency: 1}, p).Collect(ctx, []string{"http://a.test/?n=FUZZ"}, []string{"1", "2"})
		done <- stats
	}()

	select {
	case stats := <-done:
		assert.Equal(t, int64(0), stats.Processed)
		assert.Equal(t, int64(2), stats.Total)
	case <-time.After(5 * time.Second):
		t.Fatal("Collect did not return after cancellation")
	}
}

func TestScanRateLimit(t *testing.T) {
	t.Parallel()
	r := newRunner(Config{Concurrency: 10, RateLimit: 50}, &mockProber{fn: noRedirect})

	start := time.Now()
	_, stats := r.Collect(context.Background(), []string{"http://a.test/?n=FUZZ"}, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"})
	assert.Equal(t, int64(10), stats.Processed)
	// burst of one, then 50/s for the remaining nine
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestScanEmptyInputs(t *testing.T) {
	t.Parallel()
	r := newRunner(Config{}, &mockProber{fn: noRedirect})
	findings, stats := r.Collect(context.Background(), nil, []string{"x"})
	assert.Empty(t, findings)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, int64(0), stats.Processed)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	r := New(Config{}, &mockProber{fn: noRedirect}, zerolog.Nop())
	assert.Equal(t, DefaultConcurrency, r.cfg.Concurrency)
	assert.Equal(t, "FUZZ", r.cfg.Keyword)
	assert.Nil(t, r.limiter)
}
