// Package config defines the pipeline configuration for statflat runs.
//
// A pipeline file (JSON or YAML) names the query to fetch, how to reach the
// service, the join key rules, where to write the result and, optionally, a
// database to persist it in. Every key can be overridden from the environment
// with the STATFLAT_ prefix, dots replaced by underscores:
//
//	STATFLAT_SOURCE_URL=https://...        source.url
//	STATFLAT_RUNTIME_FETCH_WORKERS=4       runtime.fetch_workers
//	STATFLAT_JOIN_SENTINELS=Total,TOTAL    join.sentinels
//
// Example (trimmed):
//
//	{
//	  "job":     "population_by_region",
//	  "source":  { "kind": "http", "url": "https://.../query/4521", "params": ["posord=f"] },
//	  "join":    { "sentinels": ["Total", "TOTAL"], "render_text": true },
//	  "output":  { "path": "out/population.xlsx", "hierarchies_path": "out/levels.xlsx" },
//	  "storage": { "kind": "sqlite", "db": { "dsn": "file:out/stat.db", "table": "population", "auto_create_table": true } }
//	}
package config

import (
	"fmt"
	"strings"
	"time"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels log lines, metrics and persisted rows.
	Job string `json:"job" mapstructure:"job"`

	Source  Source        `json:"source" mapstructure:"source"`
	HTTP    HTTPConfig    `json:"http" mapstructure:"http"`
	Join    JoinConfig    `json:"join" mapstructure:"join"`
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`
	Output  Output        `json:"output" mapstructure:"output"`
	Storage Storage       `json:"storage" mapstructure:"storage"`
	Metrics Metrics       `json:"metrics" mapstructure:"metrics"`
}

// Source identifies the query document(s) to process.
type Source struct {
	// Kind is "http" or "file".
	Kind string `json:"kind" mapstructure:"kind"`

	// URL of the query result: an http(s) URL, a file:// URL or a path.
	URL string `json:"url" mapstructure:"url"`

	// List is a file with one query URL per line, processed in order.
	List string `json:"list" mapstructure:"list"`

	// Params are KEY=VALUE pairs added to the query URL, e.g.
	// "D_TEMPORAL_0=2023" or "posord=f". A list keeps key case intact.
	Params []string `json:"params" mapstructure:"params"`

	// BaseDir resolves relative file paths found in documents.
	BaseDir string `json:"base_dir" mapstructure:"base_dir"`
}

// HTTPConfig configures the service client.
type HTTPConfig struct {
	Timeout            time.Duration     `json:"timeout" mapstructure:"timeout"`
	MaxRetries         int               `json:"max_retries" mapstructure:"max_retries"`
	InitialBackoff     time.Duration     `json:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration     `json:"max_backoff" mapstructure:"max_backoff"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	MaxBytes           int64             `json:"max_bytes" mapstructure:"max_bytes"`
	Headers            map[string]string `json:"headers" mapstructure:"headers"`

	// DumpDir keeps a copy of every fetched document for offline reruns.
	DumpDir string `json:"dump_dir" mapstructure:"dump_dir"`
}

// JoinConfig holds the join key policy and display rules.
type JoinConfig struct {
	Delimiter string   `json:"delimiter" mapstructure:"delimiter"`
	Sentinels []string `json:"sentinels" mapstructure:"sentinels"`

	// RenderText renders measures as text using DecimalSeparator.
	RenderText       bool   `json:"render_text" mapstructure:"render_text"`
	DecimalSeparator string `json:"decimal_separator" mapstructure:"decimal_separator"`

	// NormalizeColumnNames strips accents and whitespace from output names.
	NormalizeColumnNames bool `json:"normalize_column_names" mapstructure:"normalize_column_names"`
}

// RuntimeConfig controls concurrency.
type RuntimeConfig struct {
	// FetchWorkers bounds concurrent hierarchy fetches; 0 picks one worker
	// per dimension, up to 8.
	FetchWorkers int `json:"fetch_workers" mapstructure:"fetch_workers"`
}

// Output selects the spreadsheet files to write.
type Output struct {
	// Path of the denormalized table; the extension picks xlsx or csv. With
	// source.list, every query gets its own file in the same directory.
	Path   string `json:"path" mapstructure:"path"`
	Sheet  string `json:"sheet" mapstructure:"sheet"`
	Comma  string `json:"comma" mapstructure:"comma"`
	Format string `json:"format" mapstructure:"format"`

	// HierarchiesPath, when set, receives the flattened trees.
	HierarchiesPath string `json:"hierarchies_path" mapstructure:"hierarchies_path"`
	// HierarchyFilter limits that export to one dimension alias.
	HierarchyFilter string `json:"hierarchy_filter" mapstructure:"hierarchy_filter"`
}

// Storage selects an optional database sink.
type Storage struct {
	// Kind is "", "postgres", "mssql" or "sqlite". Empty disables it.
	Kind string   `json:"kind" mapstructure:"kind"`
	DB   DBConfig `json:"db" mapstructure:"db"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	DSN string `json:"dsn" mapstructure:"dsn"`

	// Table receives the denormalized rows.
	Table string `json:"table" mapstructure:"table"`

	// HierarchyTable, when set, receives the flattened trees.
	HierarchyTable string `json:"hierarchy_table" mapstructure:"hierarchy_table"`

	AutoCreateTable bool `json:"auto_create_table" mapstructure:"auto_create_table"`
	BatchSize       int  `json:"batch_size" mapstructure:"batch_size"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `json:"backend" mapstructure:"backend"`
	PushgatewayURL string `json:"pushgateway_url" mapstructure:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" mapstructure:"datadog_addr"`
	Namespace      string `json:"namespace" mapstructure:"namespace"`
}

// Defaults returns the pipeline used when a key is set neither in the file
// nor in the environment.
func Defaults() Pipeline {
	return Pipeline{
		Job:    "statflat",
		Source: Source{Kind: "http"},
		HTTP: HTTPConfig{
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Join: JoinConfig{
			Delimiter:        ",",
			Sentinels:        []string{"Total", "TOTAL"},
			DecimalSeparator: ",",
		},
		Output:  Output{Sheet: "data", Comma: ";"},
		Storage: Storage{DB: DBConfig{BatchSize: 5000}},
		Metrics: Metrics{Backend: "none", Namespace: "statflat."},
	}
}

// ParamMap parses Params. Entries without "=" are an error.
func (s Source) ParamMap() (map[string]string, error) {
	if len(s.Params) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(s.Params))
	for _, kv := range s.Params {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("config: source.params entry %q is not KEY=VALUE", kv)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
