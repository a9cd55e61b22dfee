// Command statfetch downloads every query listed in a file, plus each
// classification tree those queries reference, into a directory. The copies
// are named like the -dump files of statflat, so a run can be replayed
// offline with file URLs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"statflat/internal/config"
	"statflat/internal/datasource/file"
	"statflat/internal/datasource/httpds"
	"statflat/internal/datasource/statapi"
	"statflat/internal/pipeline"
)

// logRecord is one JSON log line per fetched document.
type logRecord struct {
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	DurationMs int64  `json:"duration_ms"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}

func main() {
	urlFile := flag.String("i", "", "file with one query URL per line")
	threads := flag.Int("n", 4, "number of concurrent workers")
	outDir := flag.String("o", "out", "directory to save documents in")
	cfgPath := flag.String("config", "", "optional pipeline config; its http and source settings are used")
	keepGoing := flag.Bool("k", false, "keep going after a failed query")
	flag.Parse()

	if *urlFile == "" {
		fmt.Fprintln(os.Stderr, "missing required -i <url_file>")
		flag.Usage()
		os.Exit(2)
	}

	p, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	urls, err := file.ReadList(*urlFile)
	if err != nil {
		log.Fatalf("read list: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create %s: %v", *outDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p.HTTP.DumpDir = *outDir
	f := statapi.FromConfig(p, log.New(os.Stderr, "", log.LstdFlags))

	enc := json.NewEncoder(os.Stdout)
	m := &mirror{fetcher: f, dir: *outDir, keepGoing: *keepGoing}
	if failed := m.run(ctx, urls, *threads, func(rec logRecord) { _ = enc.Encode(rec) }); failed {
		os.Exit(1)
	}
}

// mirror fetches queries and their trees through a dumping fetcher. Trees
// shared by several queries are fetched once.
type mirror struct {
	fetcher   pipeline.Fetcher
	dir       string
	keepGoing bool

	seen sync.Map
}

// run feeds urls to n workers and hands every log record to emit from a
// single goroutine. It reports whether any document failed.
func (m *mirror) run(ctx context.Context, urls []string, n int, emit func(logRecord)) bool {
	if n <= 0 {
		n = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	logCh := make(chan logRecord, 200)
	var fatal int32

	var logWg sync.WaitGroup
	logWg.Add(1)
	go func() {
		defer logWg.Done()
		for rec := range logCh {
			emit(rec)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case u, ok := <-jobs:
					if !ok {
						return
					}
					if !m.processURL(ctx, u, logCh) {
						atomic.StoreInt32(&fatal, 1)
						if !m.keepGoing {
							cancel()
							return
						}
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, u := range urls {
			select {
			case <-ctx.Done():
				return
			case jobs <- u:
			}
		}
	}()

	wg.Wait()
	close(logCh)
	logWg.Wait()
	return atomic.LoadInt32(&fatal) == 1
}

// processURL fetches one query and the trees it references. A failed tree
// is logged but only a failed query counts as failure.
func (m *mirror) processURL(ctx context.Context, rawURL string, logCh chan<- logRecord) bool {
	start := time.Now()
	q, err := m.fetcher.FetchQuery(ctx, rawURL)
	logCh <- m.record(rawURL, "query", start, err)
	if err != nil {
		return false
	}

	for _, h := range q.Hierarchies {
		if _, dup := m.seen.LoadOrStore(h.URL, struct{}{}); dup {
			continue
		}
		start := time.Now()
		_, err := m.fetcher.FetchHierarchy(ctx, h.URL)
		logCh <- m.record(h.URL, "hierarchy", start, err)
		if ctx.Err() != nil {
			return false
		}
	}
	return true
}

func (m *mirror) record(rawURL, kind string, start time.Time, err error) logRecord {
	rec := logRecord{URL: rawURL, Kind: kind, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.File = filepath.Join(m.dir, httpds.SafeFilenameFromURL(rawURL)+".json")
	return rec
}
