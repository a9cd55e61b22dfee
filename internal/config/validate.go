package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "storage.db.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static checks over p and returns every finding.
// It does not mutate p.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{SeverityWarning, "job", "job is empty; metrics and persisted rows will carry an empty label"})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateHTTP(p.HTTP)...)
	issues = append(issues, validateJoin(p.Join)...)
	if p.Runtime.FetchWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.fetch_workers", "must be >= 0"})
	} else if p.Runtime.FetchWorkers > 32 {
		issues = append(issues, Issue{SeverityWarning, "runtime.fetch_workers", "more than 32 concurrent fetches is unlikely to help"})
	}
	issues = append(issues, validateOutput(p.Output)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	if p.Output.Path == "" && p.Storage.Kind == "" && p.Output.HierarchiesPath == "" {
		issues = append(issues, Issue{SeverityWarning, "output", "no output path and no storage configured; results are only logged"})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "http", "file":
	case "":
		issues = append(issues, Issue{SeverityError, "source.kind", `must be "http" or "file"`})
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unsupported kind %q", s.Kind)})
	}
	if s.URL == "" && s.List == "" {
		issues = append(issues, Issue{SeverityError, "source.url", "either source.url or source.list is required"})
	}
	if s.URL != "" && s.List != "" {
		issues = append(issues, Issue{SeverityWarning, "source.list", "source.url and source.list are both set; source.list wins"})
	}
	if s.Kind == "http" && s.URL != "" {
		l := strings.ToLower(s.URL)
		if !strings.HasPrefix(l, "http://") && !strings.HasPrefix(l, "https://") {
			issues = append(issues, Issue{SeverityError, "source.url", "http source needs an http(s) URL"})
		}
	}
	if _, err := s.ParamMap(); err != nil {
		issues = append(issues, Issue{SeverityError, "source.params", err.Error()})
	}
	return issues
}

func validateHTTP(h HTTPConfig) []Issue {
	var issues []Issue
	if h.Timeout < 0 {
		issues = append(issues, Issue{SeverityError, "http.timeout", "must be >= 0"})
	}
	if h.MaxRetries < 0 {
		issues = append(issues, Issue{SeverityError, "http.max_retries", "must be >= 0"})
	}
	if h.InitialBackoff > 0 && h.MaxBackoff > 0 && h.InitialBackoff > h.MaxBackoff {
		issues = append(issues, Issue{SeverityWarning, "http.initial_backoff", "greater than http.max_backoff; every wait is clamped"})
	}
	if h.InsecureSkipVerify {
		issues = append(issues, Issue{SeverityWarning, "http.insecure_skip_verify", "TLS certificates are not verified"})
	}
	return issues
}

func validateJoin(j JoinConfig) []Issue {
	var issues []Issue
	if j.Delimiter == "" {
		issues = append(issues, Issue{SeverityError, "join.delimiter", "must not be empty"})
	}
	for i, s := range j.Sentinels {
		if strings.TrimSpace(s) == "" {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("join.sentinels[%d]", i), "must not be blank"})
		}
		if j.Delimiter != "" && strings.Contains(s, j.Delimiter) {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("join.sentinels[%d]", i), "must not contain the join delimiter"})
		}
	}
	if j.RenderText && j.DecimalSeparator == "" {
		issues = append(issues, Issue{SeverityWarning, "join.decimal_separator", `empty; "," is used`})
	}
	return issues
}

func validateOutput(o Output) []Issue {
	var issues []Issue
	check := func(path, field string) {
		if path == "" {
			return
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx", ".csv":
		default:
			if o.Format == "" {
				issues = append(issues, Issue{SeverityError, field, "extension must be .xlsx or .csv (or set output.format)"})
			}
		}
	}
	check(o.Path, "output.path")
	check(o.HierarchiesPath, "output.hierarchies_path")
	switch o.Format {
	case "", "xlsx", "csv":
	default:
		issues = append(issues, Issue{SeverityError, "output.format", fmt.Sprintf("unsupported format %q", o.Format)})
	}
	if len([]rune(o.Comma)) > 1 {
		issues = append(issues, Issue{SeverityError, "output.comma", "must be a single character"})
	}
	if o.HierarchyFilter != "" && o.HierarchiesPath == "" {
		issues = append(issues, Issue{SeverityWarning, "output.hierarchy_filter", "set without output.hierarchies_path; ignored"})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	switch s.Kind {
	case "":
		return nil
	case "postgres", "mssql", "sqlite":
	default:
		return append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unsupported kind %q", s.Kind)})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "required when storage.kind is set"})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "required when storage.kind is set"})
	}
	if s.DB.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "storage.db.batch_size", "must be >= 0"})
	}
	if !s.DB.AutoCreateTable {
		issues = append(issues, Issue{SeverityWarning, "storage.db.auto_create_table",
			"false; output columns depend on the query, so the table must already match"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "required for the pushgateway backend"}}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return []Issue{{SeverityError, "metrics.datadog_addr", "required for the datadog backend"}}
		}
	default:
		return []Issue{{SeverityError, "metrics.backend", fmt.Sprintf("unsupported backend %q", m.Backend)}}
	}
	return nil
}
