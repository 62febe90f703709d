// Command gdqvods builds the GDQ run, runner, category and VOD tables from a
// captured run document, enriches the VOD links with YouTube metadata and
// writes every table to the configured sink.
//
// Usage:
//
//	gdqvods -config configs/gdqvods.yaml [-validate] [-dry-run] [-v]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gdqvods/internal/config"
	"gdqvods/internal/datasource/file"
	"gdqvods/internal/datasource/httpds"
	"gdqvods/internal/enrich"
	"gdqvods/internal/enrich/youtube"
	"gdqvods/internal/etlerr"
	"gdqvods/internal/metrics"
	"gdqvods/internal/metrics/datadog"
	"gdqvods/internal/metrics/prompush"
	"gdqvods/internal/pipeline"
	"gdqvods/internal/storage"

	// register every sink; output.kind picks one at runtime.
	_ "gdqvods/internal/storage/all"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

type options struct {
	cfgPath        string
	metricsBackend string
	pushGatewayURL string
	statsdAddr     string
	logFormat      string
	validate       bool
	dryRun         bool
	verbose        bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("gdqvods", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.cfgPath, "config", "", "pipeline config path (yaml, json or toml); empty uses defaults plus GDQVODS_* env")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	fs.StringVar(&o.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&o.statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_URL)")
	fs.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&o.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&o.dryRun, "dry-run", false, "build every table but skip lookups and writes")
	fs.BoolVar(&o.verbose, "v", false, "enable verbose logs")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func run(args []string, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := newLogger(stderr, o.logFormat, o.verbose)

	p, err := config.Load(o.cfgPath)
	if err != nil {
		logger.WithError(err).Error("load config")
		return 1
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Errorf("Configuration is invalid: %v", displayPath(o.cfgPath))
		return 1
	}
	if o.validate {
		logger.Infof("Configuration is valid: %v", displayPath(o.cfgPath))
		return 0
	}

	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"job": p.Job, "run_id": runID})

	flush := setupMetrics(log, p.Job, o)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, log, p, o.dryRun); err != nil {
		if etlerr.IsFatalData(err) {
			log.WithError(err).WithField("input", p.Input.Path).Error("run document rejected; upstream data contract changed")
			return 1
		}
		log.WithError(err).Error("run failed")
		return 1
	}
	return 0
}

func execute(ctx context.Context, log logrus.FieldLogger, p config.Pipeline, dryRun bool) (err error) {
	deps := pipeline.Deps{
		Source: file.NewLocal(p.Input.Path),
		Log:    log,
		DryRun: dryRun,
	}

	if p.Enrichment.Enabled && !dryRun {
		lk, lerr := newLookup(ctx, p.Enrichment)
		if lerr != nil {
			return fmt.Errorf("enrichment: %w", lerr)
		}
		deps.Lookup = lk
	}

	if !dryRun {
		w, werr := storage.New(ctx, storage.Config{
			Kind:      p.Output.Kind,
			Dir:       p.Output.Dir,
			Workbook:  p.Output.Workbook,
			DSN:       p.Output.DSN,
			BatchSize: p.Output.BatchSize,
			Log:       log,
		})
		if werr != nil {
			return fmt.Errorf("storage: %w", werr)
		}
		defer func() {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("storage: close: %w", cerr)
			}
		}()
		deps.Writer = w
	}

	log.WithFields(logrus.Fields{
		"input":   p.Input.Path,
		"output":  p.Output.Kind,
		"enrich":  p.Enrichment.Enabled,
		"dry_run": dryRun,
	}).Info("pipeline starting")

	sum, err := pipeline.Run(ctx, p, deps)
	if err != nil {
		return err
	}
	for _, t := range sum.Tables {
		log.WithFields(logrus.Fields{"table": t.Name, "rows": t.Rows, "columns": t.Columns, "written": t.Written}).Info("table done")
	}
	log.WithFields(logrus.Fields{
		"ids":     sum.IDs,
		"batches": sum.Batches,
		"items":   sum.Items,
		"matched": sum.Join.Matched,
		"missed":  sum.Join.Missed,
		"elapsed": sum.Elapsed.Truncate(time.Millisecond),
	}).Info("pipeline completed")
	return nil
}

// newLookup builds the videos client. OAuth tokens take precedence over the
// API key when both are configured.
func newLookup(ctx context.Context, e config.Enrichment) (enrich.Lookup, error) {
	var transport http.RoundTripper
	apiKey := e.APIKey
	if e.TokenFile != "" {
		t, err := youtube.Transport(ctx, e.TokenFile, e.ClientSecretsFile, nil)
		if err != nil {
			return nil, err
		}
		transport = t
		apiKey = ""
	}
	hc := httpds.NewClient(httpds.Config{
		Timeout:    e.Timeout,
		MaxRetries: e.MaxRetries,
		Transport:  transport,
	})
	return youtube.New(hc, youtube.Config{
		BaseURL:    e.BaseURL,
		Part:       e.Part,
		MaxResults: e.BatchSize,
		APIKey:     apiKey,
	}), nil
}

func newLogger(w io.Writer, format string, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// setupMetrics installs the selected backend and returns its flush func.
// Backend choice: flag, then env METRICS_BACKEND, then none.
func setupMetrics(log logrus.FieldLogger, job string, o options) func() {
	nop := func() {}
	name := firstNonEmpty(o.metricsBackend, os.Getenv("METRICS_BACKEND"), "none")

	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "pushgateway", "prom":
		url := firstNonEmpty(o.pushGatewayURL, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err = prompush.NewBackend(job, url)
		log = log.WithField("url", url)
	case "datadog":
		addr := firstNonEmpty(o.statsdAddr, os.Getenv("DD_DOGSTATSD_URL"), "127.0.0.1:8125")
		b, err = datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "gdqvods.", GlobalTags: []string{"job:" + job}})
		log = log.WithField("addr", addr)
	case "none":
		log.Debug("metrics: disabled")
		return nop
	default:
		log.Warnf("metrics: unknown backend %q; metrics disabled", name)
		return nop
	}
	if err != nil {
		log.WithError(err).Warnf("metrics: failed to init %s backend; using nop", name)
		return nop
	}
	log.Infof("metrics: backend=%s", name)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush error")
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}
