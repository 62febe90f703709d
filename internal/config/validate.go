package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the config, e.g. "relations[2].explode".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// KnownOutputKinds lists the sinks built into the binary.
var KnownOutputKinds = []string{"csv", "xlsx", "sqlite", "postgres", "mssql"}

// ValidatePipeline lints p without mutating it.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}
	if strings.TrimSpace(p.Input.Path) == "" {
		add(SeverityError, "input.path", "input path must not be empty")
	}
	if strings.TrimSpace(p.Input.RecordsPath) == "" {
		add(SeverityError, "input.records_path", "records path must not be empty")
	}

	if p.Runs.Table == "" {
		add(SeverityError, "runs.table", "runs table name must not be empty")
	}
	if p.Runs.DurationField == "" {
		add(SeverityError, "runs.duration_field", "duration field must not be empty")
	}

	tables := map[string]string{p.Runs.Table: "runs.table"}
	enriched := 0
	for i, r := range p.Relations {
		base := fmt.Sprintf("relations[%d]", i)
		if strings.TrimSpace(r.Field) == "" {
			add(SeverityError, base+".field", "relation field must not be empty")
		}
		if prev, dup := tables[r.Table]; dup && r.Table != "" {
			add(SeverityError, base+".table", "table %q already produced by %s", r.Table, prev)
		}
		tables[r.Table] = base + ".table"
		if r.ExplodeAs != "" && r.Explode == "" {
			add(SeverityWarning, base+".explode_as", "explode_as is ignored without explode")
		}
		if r.Enrich {
			enriched++
			if !r.Dedup {
				add(SeverityWarning, base+".dedup", "enriched relation is usually deduplicated before lookup")
			}
			if r.Explode == "" {
				add(SeverityWarning, base+".explode", "enriched relation has no exploded id column")
			}
		}
		if r.Field != "" && !contains(p.Runs.DropFields, r.Field) {
			add(SeverityWarning, "runs.drop_fields", "relation field %q is not dropped from the runs table", r.Field)
		}
	}
	if enriched > 1 {
		add(SeverityError, "relations", "at most one relation may set enrich, got %d", enriched)
	}

	issues = append(issues, validateEnrichment(p.Enrichment, enriched)...)
	issues = append(issues, validateOutput(p.Output)...)
	return issues
}

func validateEnrichment(e Enrichment, enriched int) []Issue {
	var issues []Issue
	if !e.Enabled {
		return nil
	}
	if enriched == 0 {
		issues = append(issues, Issue{SeverityWarning, "enrichment.enabled", "enrichment enabled but no relation sets enrich"})
	}
	if e.BatchSize < 1 || e.BatchSize > MaxBatchSize {
		issues = append(issues, Issue{SeverityError, "enrichment.batch_size",
			fmt.Sprintf("batch size must be within 1..%d, got %d", MaxBatchSize, e.BatchSize)})
	}
	if strings.TrimSpace(e.BaseURL) == "" {
		issues = append(issues, Issue{SeverityError, "enrichment.base_url", "base url must not be empty"})
	}
	if e.APIKey == "" && e.TokenFile == "" {
		issues = append(issues, Issue{SeverityError, "enrichment",
			"either api_key or token_file is required (env GDQVODS_ENRICHMENT_API_KEY / GDQVODS_ENRICHMENT_TOKEN_FILE)"})
	}
	if e.TokenFile != "" && e.ClientSecretsFile == "" {
		issues = append(issues, Issue{SeverityWarning, "enrichment.client_secrets_file",
			"token_file without client_secrets_file: expired tokens cannot be refreshed"})
	}
	if e.MaxRetries < 0 {
		issues = append(issues, Issue{SeverityError, "enrichment.max_retries", "max_retries must be >= 0"})
	}
	return issues
}

func validateOutput(o Output) []Issue {
	var issues []Issue
	if !contains(KnownOutputKinds, o.Kind) {
		issues = append(issues, Issue{SeverityError, "output.kind",
			fmt.Sprintf("unknown output kind %q; want one of %s", o.Kind, strings.Join(KnownOutputKinds, ", "))})
		return issues
	}
	switch o.Kind {
	case "csv", "xlsx":
		if strings.TrimSpace(o.Dir) == "" {
			issues = append(issues, Issue{SeverityError, "output.dir", "output dir must not be empty"})
		}
	default:
		if strings.TrimSpace(o.DSN) == "" {
			issues = append(issues, Issue{SeverityError, "output.dsn",
				fmt.Sprintf("%s output requires a dsn (env GDQVODS_OUTPUT_DSN)", o.Kind)})
		}
		if o.BatchSize <= 0 {
			issues = append(issues, Issue{SeverityError, "output.batch_size", "batch size must be > 0"})
		}
	}
	return issues
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
