package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"statflat/internal/config"
	"statflat/internal/metrics"
	"statflat/internal/metrics/datadog"
	"statflat/internal/metrics/prompush"

	// register every storage backend; the config picks one.
	_ "statflat/internal/storage/all"
)

// flagOverrides are command-line values that win over the config file and
// the environment. Empty values leave the config alone.
type flagOverrides struct {
	url            string
	list           string
	out            string
	hierarchiesOut string
	hierarchy      string
	metricsBackend string
	pushgatewayURL string
	datadogAddr    string
	fetchWorkers   int
}

func (o flagOverrides) apply(p *config.Pipeline) {
	if o.url != "" {
		p.Source.URL = o.url
	}
	if o.list != "" {
		p.Source.List = o.list
	}
	if o.out != "" {
		p.Output.Path = o.out
	}
	if o.hierarchiesOut != "" {
		p.Output.HierarchiesPath = o.hierarchiesOut
	}
	if o.hierarchy != "" {
		p.Output.HierarchyFilter = o.hierarchy
	}
	if o.metricsBackend != "" {
		p.Metrics.Backend = o.metricsBackend
	}
	if o.pushgatewayURL != "" {
		p.Metrics.PushgatewayURL = o.pushgatewayURL
	}
	if o.datadogAddr != "" {
		p.Metrics.DatadogAddr = o.datadogAddr
	}
	if o.fetchWorkers > 0 {
		p.Runtime.FetchWorkers = o.fetchWorkers
	}
}

// main loads the pipeline config, sets up metrics and runs one query (or a
// list of queries) to the configured outputs.
func main() {
	var (
		cfgPath  string
		validate bool
		verbose  bool
		o        flagOverrides
	)
	flag.StringVar(&cfgPath, "config", "", "pipeline config path (.json or .yaml); empty uses defaults and STATFLAT_* env")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&verbose, "v", false, "verbose logs")
	flag.StringVar(&o.url, "url", "", "query URL or file (overrides source.url)")
	flag.StringVar(&o.list, "list", "", "file with one query URL per line (overrides source.list)")
	flag.StringVar(&o.out, "out", "", "output .xlsx or .csv (overrides output.path)")
	flag.StringVar(&o.hierarchiesOut, "hierarchies-out", "", "write flattened hierarchies to this .xlsx or .csv")
	flag.StringVar(&o.hierarchy, "hierarchy", "", "only export the flattened hierarchy of this dimension")
	flag.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway, datadog")
	flag.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	flag.StringVar(&o.datadogAddr, "datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")
	flag.IntVar(&o.fetchWorkers, "workers", 0, "concurrent hierarchy fetches (overrides runtime.fetch_workers)")
	flag.Parse()

	log.SetOutput(os.Stderr)
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	o.apply(&p)

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %s", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %s", cfgPath)
		os.Exit(0)
	}

	flush := setupMetrics(p)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	start := time.Now()
	err = run(ctx, p, log.Default())
	stop()
	flush()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// setupMetrics installs the configured backend and returns its flush
// function. A backend that fails to start leaves metrics disabled.
func setupMetrics(p config.Pipeline) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch p.Metrics.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(p.Job, p.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.DatadogAddr,
			Namespace:  p.Metrics.Namespace,
			GlobalTags: []string{"job:" + p.Job},
		})
	case "", "none":
		return func() {}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", p.Metrics.Backend)
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: init %s backend: %v; metrics disabled", p.Metrics.Backend, err)
		return func() {}
	}
	log.Printf("metrics: backend=%s job=%s", p.Metrics.Backend, p.Job)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush: %v", err)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
