package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"statflat/internal/config"
	"statflat/internal/datasource/statapi"
	"statflat/internal/denorm"
	"statflat/internal/probe"
)

// main fetches a query and its classification trees, reports the shape of
// every dimension and a starter pipeline config, and prints both as JSON.
//
// The config is intended to be hand-edited and then used with cmd/statflat.
func main() {
	var (
		flagURL = flag.String(
			"url",
			"",
			"query URL or file",
		)
		flagConfig = flag.String(
			"config",
			"",
			"optional pipeline config; its http, source.base_dir and join settings are used",
		)
		flagName = flag.String(
			"name",
			"query",
			"dataset name (used in job, storage.db.table and output file names)",
		)
		flagJob = flag.String(
			"job",
			"",
			"job name for the generated config; defaults to a normalized version of -name",
		)
		flagBackend = flag.String(
			"backend",
			"",
			"storage backend for the generated config: postgres|mssql|sqlite (empty for none)",
		)
		flagWorkers = flag.Int(
			"workers",
			4,
			"concurrent hierarchy fetches",
		)
		flagConfigOnly = flag.Bool(
			"config-only",
			false,
			"print only the generated pipeline config",
		)
		flagPretty = flag.Bool(
			"pretty",
			true,
			"pretty-print JSON output",
		)
		flagTimeout = flag.Duration(
			"timeout",
			2*time.Minute,
			"overall deadline",
		)
	)
	flag.Parse()

	if *flagURL == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}

	p, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := log.New(os.Stderr, "", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	rep, err := probe.Probe(ctx, statapi.FromConfig(p, lg), probe.Options{
		URL:     *flagURL,
		Name:    *flagName,
		Job:     *flagJob,
		Backend: *flagBackend,
		Policy:  denorm.KeyPolicy{Delimiter: p.Join.Delimiter, Sentinels: p.Join.Sentinels},
		Workers: *flagWorkers,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}
	for _, d := range rep.Dimensions {
		if d.Error != "" {
			lg.Printf("stage=probe dim=%s err=%q", d.Alias, d.Error)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	var out any = rep
	if *flagConfigOnly {
		out = rep.Config
	}
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
