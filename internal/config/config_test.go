package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validPipeline() Pipeline {
	p := Default()
	p.Enrichment.APIKey = "k"
	return p
}

func TestDefault_MirrorsUpstreamContract(t *testing.T) {
	t.Parallel()

	p := Default()
	if p.Runs.Table != "GDQvods_runs" || p.Input.RecordsPath != "data.runs" {
		t.Fatalf("runs defaults = %+v, input = %+v", p.Runs, p.Input)
	}
	wantDrop := []string{"runners", "siteCategories", "vods"}
	if !reflect.DeepEqual(p.Runs.DropFields, wantDrop) {
		t.Fatalf("DropFields = %v; want %v", p.Runs.DropFields, wantDrop)
	}
	var tables []string
	for _, r := range p.Relations {
		tables = append(tables, r.Table)
	}
	wantTables := []string{"GDQvods_run_runners", "GDQvods_run_siteCategories", "GDQvods_run_vods"}
	if !reflect.DeepEqual(tables, wantTables) {
		t.Fatalf("tables = %v; want %v", tables, wantTables)
	}
	rel, ok := p.EnrichedRelation()
	if !ok || rel.Field != "vods" || rel.ExplodeAs != "videoId" {
		t.Fatalf("EnrichedRelation = %+v, %v", rel, ok)
	}
	if p.Enrichment.BatchSize != MaxBatchSize || !p.Enrichment.DedupIDs || !p.Enrichment.Enabled {
		t.Fatalf("enrichment defaults = %+v", p.Enrichment)
	}
}

func TestValidatePipeline_ValidDefault(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestValidatePipeline_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Pipeline)
		path   string
		msg    string
	}{
		{"empty job", func(p *Pipeline) { p.Job = " " }, "job", "job must not be empty"},
		{"batch too large", func(p *Pipeline) { p.Enrichment.BatchSize = 51 }, "enrichment.batch_size", "1..50"},
		{"batch zero", func(p *Pipeline) { p.Enrichment.BatchSize = 0 }, "enrichment.batch_size", "got 0"},
		{"no credentials", func(p *Pipeline) { p.Enrichment.APIKey = "" }, "enrichment", "api_key or token_file"},
		{"unknown sink", func(p *Pipeline) { p.Output.Kind = "parquet" }, "output.kind", `unknown output kind "parquet"`},
		{"sql without dsn", func(p *Pipeline) { p.Output.Kind = "postgres" }, "output.dsn", "requires a dsn"},
		{"duplicate table", func(p *Pipeline) { p.Relations[1].Table = p.Relations[0].Table }, "relations[1].table", "already produced"},
		{"two enriched", func(p *Pipeline) { p.Relations[0].Enrich = true }, "relations", "at most one"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tc.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, SeverityError, tc.path, tc.msg) {
				t.Fatalf("want error at %s containing %q; got %+v", tc.path, tc.msg, issues)
			}
			if !HasErrors(issues) {
				t.Fatal("HasErrors = false")
			}
		})
	}
}

func TestValidatePipeline_DisabledEnrichmentNeedsNoCredentials(t *testing.T) {
	t.Parallel()

	p := Default()
	p.Enrichment.Enabled = false
	if issues := ValidatePipeline(p); HasErrors(issues) {
		t.Fatalf("unexpected errors: %+v", issues)
	}
}

func TestValidatePipeline_Warnings(t *testing.T) {
	t.Parallel()

	p := validPipeline()
	p.Enrichment.APIKey = ""
	p.Enrichment.TokenFile = "token.json"
	p.Runs.DropFields = []string{"runners", "vods"}

	issues := ValidatePipeline(p)
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "enrichment.client_secrets_file", "cannot be refreshed") {
		t.Fatalf("missing refresh warning: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "runs.drop_fields", `"siteCategories"`) {
		t.Fatalf("missing drop warning: %+v", issues)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	const doc = `
job: nightly
input:
  path: testdata/runs.json
enrichment:
  batch_size: 25
  timeout: 5s
relations:
  - table: runners
    field: runners
output:
  kind: sqlite
  dsn: file:gdq.db
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GDQVODS_ENRICHMENT_API_KEY", "from-env")
	t.Setenv("GDQVODS_OUTPUT_KIND", "postgres")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "nightly" || p.Input.Path != "testdata/runs.json" {
		t.Fatalf("file values not applied: %+v", p)
	}
	if p.Enrichment.BatchSize != 25 || p.Enrichment.Timeout != 5*time.Second {
		t.Fatalf("enrichment = %+v", p.Enrichment)
	}
	if p.Enrichment.APIKey != "from-env" || p.Output.Kind != "postgres" {
		t.Fatalf("env overrides not applied: key=%q kind=%q", p.Enrichment.APIKey, p.Output.Kind)
	}
	if !p.Enrichment.Enabled || !p.Enrichment.DedupIDs {
		t.Fatalf("boolean defaults lost: %+v", p.Enrichment)
	}
	if len(p.Relations) != 1 || p.Relations[0].ForeignKey != "run_id" {
		t.Fatalf("relations = %+v", p.Relations)
	}
	if p.Output.DSN != "file:gdq.db" {
		t.Fatalf("dsn = %q", p.Output.DSN)
	}
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(p.Relations, DefaultRelations()) {
		t.Fatalf("relations = %+v", p.Relations)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
