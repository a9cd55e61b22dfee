package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STATFLAT"

// Load reads the pipeline file at path (JSON or YAML, by extension) on top
// of Defaults and applies STATFLAT_* environment overrides. An empty path
// loads defaults and environment only.
func Load(path string) (Pipeline, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only reaches keys viper already knows, so every key gets
	// a default.
	d := Defaults()
	for key, val := range map[string]any{
		"job":                          d.Job,
		"source.kind":                  d.Source.Kind,
		"source.url":                   d.Source.URL,
		"source.list":                  d.Source.List,
		"source.base_dir":              d.Source.BaseDir,
		"source.params":                d.Source.Params,
		"http.timeout":                 d.HTTP.Timeout,
		"http.max_retries":             d.HTTP.MaxRetries,
		"http.initial_backoff":         d.HTTP.InitialBackoff,
		"http.max_backoff":             d.HTTP.MaxBackoff,
		"http.insecure_skip_verify":    d.HTTP.InsecureSkipVerify,
		"http.max_bytes":               d.HTTP.MaxBytes,
		"http.dump_dir":                d.HTTP.DumpDir,
		"join.delimiter":               d.Join.Delimiter,
		"join.sentinels":               d.Join.Sentinels,
		"join.render_text":             d.Join.RenderText,
		"join.decimal_separator":       d.Join.DecimalSeparator,
		"join.normalize_column_names":  d.Join.NormalizeColumnNames,
		"runtime.fetch_workers":        d.Runtime.FetchWorkers,
		"output.path":                  d.Output.Path,
		"output.sheet":                 d.Output.Sheet,
		"output.comma":                 d.Output.Comma,
		"output.format":                d.Output.Format,
		"output.hierarchies_path":      d.Output.HierarchiesPath,
		"output.hierarchy_filter":      d.Output.HierarchyFilter,
		"storage.kind":                 d.Storage.Kind,
		"storage.db.dsn":               d.Storage.DB.DSN,
		"storage.db.table":             d.Storage.DB.Table,
		"storage.db.hierarchy_table":   d.Storage.DB.HierarchyTable,
		"storage.db.auto_create_table": d.Storage.DB.AutoCreateTable,
		"storage.db.batch_size":        d.Storage.DB.BatchSize,
		"metrics.backend":              d.Metrics.Backend,
		"metrics.pushgateway_url":      d.Metrics.PushgatewayURL,
		"metrics.datadog_addr":         d.Metrics.DatadogAddr,
		"metrics.namespace":            d.Metrics.Namespace,
	} {
		v.SetDefault(key, val)
	}
	return v
}
