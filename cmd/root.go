package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/selimozcann/redirectvalidator/internal/banner"
	"github.com/selimozcann/redirectvalidator/internal/config"
	"github.com/selimozcann/redirectvalidator/internal/fuzz"
	"github.com/selimozcann/redirectvalidator/internal/httpclient"
	"github.com/selimozcann/redirectvalidator/internal/input"
	"github.com/selimozcann/redirectvalidator/internal/logging"
	"github.com/selimozcann/redirectvalidator/internal/model"
	"github.com/selimozcann/redirectvalidator/internal/output"
	"github.com/selimozcann/redirectvalidator/internal/probe"
	"github.com/selimozcann/redirectvalidator/internal/runner"
)

const interruptedMsg = "\nInterrupted by user. Exiting..."

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

type options struct {
	cfg        config.Config
	configPath string
	url        string
}

func newRootCmd(s streams) *cobra.Command {
	opts := &options{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   "redirectvalidator",
		Short: "Detect open redirects by fuzzing URL parameters",
		Long: `Reads URLs (one per line) from stdin, places the keyword into every query
parameter value unless the URL already carries it, substitutes each payload
and reports probes that end up on a different host than the one requested.`,
		Example: `  cat urls.txt | redirectvalidator -p payloads.txt
  redirectvalidator -u 'https://example.com/login?next=FUZZ' -c 20 -o findings.jsonl`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if opts.configPath != "" {
				fileCfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				cfg = overlay(fileCfg, opts.cfg, cmd.Flags().Changed)
			}
			return run(cmd.Context(), cfg, opts.url, s)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.url, "url", "u", "", "Single target URL (read from stdin when empty)")
	f.StringVarP(&opts.cfg.URLs, "urls", "l", "", "File with target URLs, one per line")
	f.StringVarP(&opts.cfg.Payloads, "payloads", "p", opts.cfg.Payloads, "File of payloads")
	f.StringVarP(&opts.cfg.Keyword, "keyword", "k", opts.cfg.Keyword, "Keyword in URLs to replace with payload")
	f.IntVarP(&opts.cfg.Concurrency, "concurrency", "c", opts.cfg.Concurrency, "Number of concurrent probes")
	f.DurationVar(&opts.cfg.Timeout, "timeout", opts.cfg.Timeout, "Per-probe timeout, redirects included")
	f.IntVar(&opts.cfg.RateLimit, "rate-limit", 0, "Global rate limit (requests per second, 0 = unlimited)")
	f.StringVar(&opts.cfg.Policy, "policy", opts.cfg.Policy, "Detection policy: final or any-hop")
	f.StringVar(&opts.cfg.Proxy, "proxy", "", "HTTP(S) proxy URL")
	f.StringArrayVarP(&opts.cfg.Headers, "header", "H", nil, "Extra HTTP header (repeatable)")
	f.StringVar(&opts.cfg.Cookie, "cookie", "", "Cookie header")
	f.StringVar(&opts.cfg.UserAgent, "user-agent", opts.cfg.UserAgent, "User-Agent header")
	f.BoolVar(&opts.cfg.Insecure, "insecure", false, "Skip TLS verification")
	f.StringVarP(&opts.cfg.Output, "output", "o", "", "JSONL output file")
	f.StringVar(&opts.cfg.HTML, "html", "", "HTML report output file")
	f.BoolVar(&opts.cfg.NoProgress, "no-progress", false, "Disable the progress bar")
	f.BoolVar(&opts.cfg.NoColor, "no-color", false, "Disable colored output")
	f.BoolVar(&opts.cfg.Silent, "silent", false, "Do not print the banner")
	f.BoolVarP(&opts.cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	f.StringVar(&opts.configPath, "config", "", "YAML config file; explicit flags take precedence")

	cmd.SetIn(s.in)
	cmd.SetOut(s.out)
	cmd.SetErr(s.err)
	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the scan; an
// interrupted scan still exits with status 0.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, single string, s streams) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.NoColor {
		color.NoColor = true
	}
	log := logging.New(s.err, cfg.Verbose, color.NoColor)

	payloads, err := input.LoadPayloads(cfg.Payloads)
	if err != nil {
		return err
	}
	templates, err := loadTemplatesContext(ctx, cfg, single, s.in)
	if ctx.Err() != nil && (err != nil || len(templates) == 0) {
		fmt.Fprintln(s.err, interruptedMsg)
		return nil
	}
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return errors.New("no target URLs given (use -u, -l or stdin)")
	}

	headers, err := toHeader(cfg.Headers)
	if err != nil {
		return err
	}
	var proxyFunc func(*http.Request) (*url.URL, error)
	if cfg.Proxy != "" {
		proxyURL, perr := url.Parse(cfg.Proxy)
		if perr != nil {
			return fmt.Errorf("invalid proxy URL: %w", perr)
		}
		proxyFunc = http.ProxyURL(proxyURL)
	}

	var jsonl *output.JSONLWriter
	if cfg.Output != "" {
		file, ferr := createFile(cfg.Output)
		if ferr != nil {
			return fmt.Errorf("create JSONL file: %w", ferr)
		}
		defer file.Close()
		jsonl = output.NewJSONLWriter(file)
		defer jsonl.Close()
	}

	client := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		Proxy:     proxyFunc,
		Headers:   headers,
		Cookie:    cfg.Cookie,
		UserAgent: cfg.UserAgent,
		Insecure:  cfg.Insecure,
	})
	prober := probe.New(client)
	prober.Timeout = cfg.Timeout

	r := runner.New(runner.Config{
		Concurrency: cfg.Concurrency,
		Keyword:     cfg.Keyword,
		RateLimit:   cfg.RateLimit,
		Policy:      cfg.DetectionPolicy(),
	}, prober, log)

	if !cfg.Silent {
		banner.Print(s.err)
	}

	total := int64(len(templates)) * int64(len(payloads))
	bar := newProgressBar(s.err, total, !cfg.NoProgress && isTerminal(s.err))
	console := output.NewConsole(s.out)

	// Single consumer: workers only send updates, this loop owns every sink.
	var findings []model.Finding
	for u := range r.Run(ctx, templates, payloads) {
		if u.Finding != nil {
			_ = bar.Clear()
			console.Finding(*u.Finding)
			findings = append(findings, *u.Finding)
			if jsonl != nil {
				if werr := jsonl.Write(*u.Finding); werr != nil {
					log.Error().Err(werr).Str("file", cfg.Output).Msg("write finding")
				}
			}
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	stats := r.Stats()
	summary := output.Summary{
		Total:       stats.Total,
		Processed:   stats.Processed,
		Findings:    stats.Findings,
		Failed:      stats.Failed,
		Reasons:     stats.Reasons,
		Elapsed:     stats.Elapsed,
		Interrupted: ctx.Err() != nil,
	}
	output.NewConsole(s.err).Summary(summary)

	if cfg.HTML != "" {
		page := output.PageData{
			Title:       "Open Redirect Report",
			GeneratedAt: time.Now().UTC(),
			Params:      buildParamsMap(cfg, len(templates), len(payloads)),
			Summary:     summary,
			Findings:    findings,
		}
		if err := writeHTMLFile(cfg.HTML, page); err != nil {
			return err
		}
		log.Debug().Str("file", cfg.HTML).Msg("HTML report written")
	}

	if ctx.Err() != nil {
		fmt.Fprintln(s.err, interruptedMsg)
	}
	return nil
}

// loadTemplatesContext returns as soon as ctx is done. A reader blocked on
// stdin is left behind; the process is about to exit.
func loadTemplatesContext(ctx context.Context, cfg config.Config, single string, stdin io.Reader) ([]string, error) {
	type loaded struct {
		templates []string
		err       error
	}
	done := make(chan loaded, 1)
	go func() {
		templates, err := loadTemplates(cfg, single, stdin)
		done <- loaded{templates: templates, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l := <-done:
		return l.templates, l.err
	}
}

func loadTemplates(cfg config.Config, single string, stdin io.Reader) ([]string, error) {
	switch {
	case single != "":
		return []string{fuzz.Inject(strings.TrimSpace(single), cfg.Keyword)}, nil
	case cfg.URLs != "":
		return input.LoadTemplates(cfg.URLs, cfg.Keyword)
	}
	return input.ReadTemplates(stdin, cfg.Keyword)
}

// overlay copies every flag the user set explicitly from flags onto base.
func overlay(base, flags config.Config, changed func(string) bool) config.Config {
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("urls", func() { base.URLs = flags.URLs })
	set("payloads", func() { base.Payloads = flags.Payloads })
	set("keyword", func() { base.Keyword = flags.Keyword })
	set("concurrency", func() { base.Concurrency = flags.Concurrency })
	set("timeout", func() { base.Timeout = flags.Timeout })
	set("rate-limit", func() { base.RateLimit = flags.RateLimit })
	set("policy", func() { base.Policy = flags.Policy })
	set("proxy", func() { base.Proxy = flags.Proxy })
	set("header", func() { base.Headers = append(base.Headers, flags.Headers...) })
	set("cookie", func() { base.Cookie = flags.Cookie })
	set("user-agent", func() { base.UserAgent = flags.UserAgent })
	set("insecure", func() { base.Insecure = flags.Insecure })
	set("output", func() { base.Output = flags.Output })
	set("html", func() { base.HTML = flags.HTML })
	set("no-progress", func() { base.NoProgress = flags.NoProgress })
	set("no-color", func() { base.NoColor = flags.NoColor })
	set("silent", func() { base.Silent = flags.Silent })
	set("verbose", func() { base.Verbose = flags.Verbose })
	return base
}

func newProgressBar(w io.Writer, total int64, visible bool) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionSetDescription("[cyan]Processing[reset]"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("url"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func toHeader(headers []string) (http.Header, error) {
	hdr := make(http.Header)
	for _, h := range headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header %q (expected Key: Value)", h)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid header %q (empty key)", h)
		}
		hdr.Add(key, value)
	}
	return hdr, nil
}

func buildParamsMap(cfg config.Config, templates, payloads int) map[string]string {
	params := map[string]string{
		"payloads_file": cfg.Payloads,
		"keyword":       cfg.Keyword,
		"concurrency":   strconv.Itoa(cfg.Concurrency),
		"timeout":       cfg.Timeout.String(),
		"rate_limit":    strconv.Itoa(cfg.RateLimit),
		"policy":        cfg.Policy,
		"insecure":      strconv.FormatBool(cfg.Insecure),
		"templates":     strconv.Itoa(templates),
		"payloads":      strconv.Itoa(payloads),
	}
	if cfg.Proxy != "" {
		params["proxy"] = cfg.Proxy
	}
	if cfg.Cookie != "" {
		params["cookie"] = cfg.Cookie
	}
	if len(cfg.Headers) > 0 {
		params["headers"] = strings.Join(cfg.Headers, "; ")
	}
	return params
}

func writeHTMLFile(path string, page output.PageData) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("create HTML file: %w", err)
	}
	defer f.Close()
	if err := output.RenderHTML(f, page); err != nil {
		return fmt.Errorf("write HTML: %w", err)
	}
	return nil
}

func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}
