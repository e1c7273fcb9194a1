package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"audience/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "storage.dsn" or "upload.required_columns[2]".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is a SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over c. It does not mutate c.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and logs",
		})
	}
	issues = append(issues, validateUpload(c.Upload)...)
	issues = append(issues, validateServer(c.Server)...)
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateLog(c.Log)...)
	return issues
}

func validateUpload(u Upload) []Issue {
	var issues []Issue

	if u.MaxRows <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "upload.max_rows",
			Message:  fmt.Sprintf("max_rows must be positive, got %d", u.MaxRows),
		})
	}
	if u.MaxBytes < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "upload.max_bytes",
			Message:  "max_bytes must not be negative",
		})
	}

	if len(u.RequiredColumns) > 0 {
		if u.Vocabulary != "" && u.Vocabulary != schema.VocabularyCustomer {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "upload.vocabulary",
				Message:  "required_columns is set; vocabulary is ignored",
			})
		}
		seen := make(map[string]int, len(u.RequiredColumns))
		for i, col := range u.RequiredColumns {
			path := fmt.Sprintf("upload.required_columns[%d]", i)
			k := schema.Key(col)
			if k == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  "column name must not be blank",
				})
				continue
			}
			if j, dup := seen[k]; dup {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path,
					Message:  fmt.Sprintf("duplicates required_columns[%d] when compared case-insensitively", j),
				})
				continue
			}
			seen[k] = i
		}
	} else if _, err := schema.ByName(u.Vocabulary); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "upload.vocabulary",
			Message:  fmt.Sprintf("unknown vocabulary %q; use %q or %q, or set required_columns", u.Vocabulary, schema.VocabularyCustomer, schema.VocabularyLegacy),
		})
	}

	if d := []rune(u.Delimiter); len(d) > 1 || (len(d) == 1 && strings.ContainsRune("\"\r\n", d[0])) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "upload.delimiter",
			Message:  fmt.Sprintf("delimiter %q must be a single character other than quote or newline", u.Delimiter),
		})
	}
	return issues
}

func validateServer(s Server) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "server.addr",
			Message:  "addr must not be empty",
		})
	}
	if s.MaxConcurrent < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "server.max_concurrent",
			Message:  fmt.Sprintf("max_concurrent must be at least 1, got %d", s.MaxConcurrent),
		})
	}
	for i, o := range s.AllowedOrigins {
		if o == "*" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("server.allowed_origins[%d]", i),
				Message:  "wildcard origin allows any site to upload files",
			})
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return nil // persistence disabled
	}

	known := map[string]struct{}{
		"sqlite":   {},
		"mysql":    {},
		"postgres": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; expected sqlite, mysql or postgres", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "dsn must not be empty when storage is enabled",
		})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.table",
			Message:  "table must not be empty",
		})
	}
	if s.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.batch_size",
			Message:  fmt.Sprintf("batch_size must be positive, got %d", s.BatchSize),
		})
	}
	if !s.AutoCreateTable {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.auto_create_table",
			Message:  "tables are not created automatically; make sure they exist",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}
	return issues
}

func validateLog(l Log) []Issue {
	if l.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return []Issue{{
			Severity: SeverityError,
			Path:     "log.level",
			Message:  err.Error(),
		}}
	}
	return nil
}
