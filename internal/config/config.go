// Package config defines the pipeline configuration model and its loader.
//
// A Pipeline is decoded from YAML, JSON or TOML (by file extension) through
// viper, then completed with defaults that mirror the upstream data contract.
// Secrets may come from the environment (prefix GDQVODS_) or a local .env
// file:
//
//	GDQVODS_ENRICHMENT_API_KEY=...
//	GDQVODS_ENRICHMENT_TOKEN_FILE=token.json
//	GDQVODS_OUTPUT_DSN=postgres://...
//
// Example (trimmed, YAML):
//
//	job: gdqvods
//	input:
//	  path: data/external/run_data.json
//	enrichment:
//	  batch_size: 50
//	  token_file: token.json
//	  client_secrets_file: youtube_data_oauth_credentials.json
//	output:
//	  kind: csv
//	  dir: data/interim
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MaxBatchSize is the enrichment service's per-request id limit.
const MaxBatchSize = 50

// EnvPrefix prefixes environment overrides, e.g. GDQVODS_OUTPUT_KIND.
const EnvPrefix = "GDQVODS"

// Pipeline is the complete configuration passed into pipeline.Run.
type Pipeline struct {
	// Job labels logs and metrics.
	Job string `mapstructure:"job" json:"job"`

	Input      Input      `mapstructure:"input" json:"input"`
	Runs       Runs       `mapstructure:"runs" json:"runs"`
	Relations  []Relation `mapstructure:"relations" json:"relations"`
	Enrichment Enrichment `mapstructure:"enrichment" json:"enrichment"`
	Output     Output     `mapstructure:"output" json:"output"`
}

// Input locates the raw run document.
type Input struct {
	// Path is the local JSON document captured from the VOD site.
	Path string `mapstructure:"path" json:"path"`
	// RecordsPath is the gjson path of the run array (default "data.runs").
	RecordsPath string `mapstructure:"records_path" json:"records_path"`
}

// Runs configures the primary run table.
type Runs struct {
	Table          string   `mapstructure:"table" json:"table"`
	IDField        string   `mapstructure:"id_field" json:"id_field"`
	DropFields     []string `mapstructure:"drop_fields" json:"drop_fields"`
	DropSuffixes   []string `mapstructure:"drop_suffixes" json:"drop_suffixes"`
	DurationField  string   `mapstructure:"duration_field" json:"duration_field"`
	DurationColumn string   `mapstructure:"duration_column" json:"duration_column"`
}

// Relation declares one link table.
type Relation struct {
	Table        string   `mapstructure:"table" json:"table"`
	Field        string   `mapstructure:"field" json:"field"`
	ForeignKey   string   `mapstructure:"foreign_key" json:"foreign_key"`
	DropFields   []string `mapstructure:"drop_fields" json:"drop_fields"`
	DropSuffixes []string `mapstructure:"drop_suffixes" json:"drop_suffixes"`
	// Explode names a list-valued child field for a second-level explode.
	Explode   string `mapstructure:"explode" json:"explode"`
	ExplodeAs string `mapstructure:"explode_as" json:"explode_as"`
	// Dedup collapses exact duplicate rows.
	Dedup bool `mapstructure:"dedup" json:"dedup"`
	// Enrich marks the relation joined with enrichment metadata. At most one
	// relation may set it.
	Enrich bool `mapstructure:"enrich" json:"enrich"`
}

// Enrichment configures the video metadata lookup.
type Enrichment struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// Part is the response verbosity selector.
	Part string `mapstructure:"part" json:"part"`
	// SourceField and Source select the enrichable link rows.
	SourceField string `mapstructure:"source_field" json:"source_field"`
	Source      string `mapstructure:"source" json:"source"`
	// LinkKey is the link-table column holding the external id.
	LinkKey   string `mapstructure:"link_key" json:"link_key"`
	BatchSize int    `mapstructure:"batch_size" json:"batch_size"`
	// DedupIDs requests each distinct id once.
	DedupIDs bool `mapstructure:"dedup_ids" json:"dedup_ids"`

	APIKey            string `mapstructure:"api_key" json:"api_key"`
	TokenFile         string `mapstructure:"token_file" json:"token_file"`
	ClientSecretsFile string `mapstructure:"client_secrets_file" json:"client_secrets_file"`

	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
}

// Output selects the table sink.
type Output struct {
	// Kind is one of csv, xlsx, sqlite, postgres, mssql.
	Kind string `mapstructure:"kind" json:"kind"`
	// Dir is the directory for csv output; for xlsx, the workbook path is
	// Dir/Workbook.
	Dir      string `mapstructure:"dir" json:"dir"`
	Workbook string `mapstructure:"workbook" json:"workbook"`
	// DSN is the database connection string for SQL sinks.
	DSN string `mapstructure:"dsn" json:"dsn"`
	// BatchSize bounds rows per insert batch for SQL sinks.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
}

// DefaultRelations mirrors the upstream document: runners, site categories
// and VODs (two-level, deduplicated, enriched).
func DefaultRelations() []Relation {
	return []Relation{
		{Table: "GDQvods_run_runners", Field: "runners", ForeignKey: "run_id", DropSuffixes: []string{"__typename"}},
		{Table: "GDQvods_run_siteCategories", Field: "siteCategories", ForeignKey: "run_id", DropSuffixes: []string{"__typename"}},
		{
			Table:        "GDQvods_run_vods",
			Field:        "vods",
			ForeignKey:   "run_id",
			DropSuffixes: []string{"__typename"},
			Explode:      "videoIds",
			ExplodeAs:    "videoId",
			Dedup:        true,
			Enrich:       true,
		},
	}
}

// Default returns a fully populated Pipeline.
func Default() Pipeline {
	p := Pipeline{
		Enrichment: Enrichment{Enabled: true, DedupIDs: true},
	}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills zero-valued fields. Boolean switches are left alone.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "gdqvods"
	}
	if p.Input.Path == "" {
		p.Input.Path = "data/external/run_data.json"
	}
	if p.Input.RecordsPath == "" {
		p.Input.RecordsPath = "data.runs"
	}

	r := &p.Runs
	if r.Table == "" {
		r.Table = "GDQvods_runs"
	}
	if r.IDField == "" {
		r.IDField = "id"
	}
	if r.DropFields == nil {
		r.DropFields = []string{"runners", "siteCategories", "vods"}
	}
	if r.DropSuffixes == nil {
		r.DropSuffixes = []string{"__typename"}
	}
	if r.DurationField == "" {
		r.DurationField = "duration"
	}
	if r.DurationColumn == "" {
		r.DurationColumn = "duration_seconds"
	}

	if len(p.Relations) == 0 {
		p.Relations = DefaultRelations()
	}
	for i := range p.Relations {
		rel := &p.Relations[i]
		if rel.ForeignKey == "" {
			rel.ForeignKey = "run_id"
		}
		if rel.Table == "" {
			rel.Table = rel.Field
		}
		if rel.Explode != "" && rel.ExplodeAs == "" {
			rel.ExplodeAs = rel.Explode
		}
	}

	e := &p.Enrichment
	if e.BaseURL == "" {
		e.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if e.Part == "" {
		e.Part = "snippet,contentDetails,statistics"
	}
	if e.SourceField == "" {
		e.SourceField = "source"
	}
	if e.Source == "" {
		e.Source = "YOUTUBE"
	}
	if e.LinkKey == "" {
		e.LinkKey = "videoId"
	}
	if e.BatchSize == 0 {
		e.BatchSize = MaxBatchSize
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}

	o := &p.Output
	if o.Kind == "" {
		o.Kind = "csv"
	}
	if o.Dir == "" {
		o.Dir = "data/interim"
	}
	if o.Workbook == "" {
		o.Workbook = "GDQvods.xlsx"
	}
	if o.BatchSize == 0 {
		o.BatchSize = 500
	}
}

// EnrichedRelation returns the relation marked for enrichment, if any.
func (p Pipeline) EnrichedRelation() (Relation, bool) {
	for _, r := range p.Relations {
		if r.Enrich {
			return r, true
		}
	}
	return Relation{}, false
}

// secretKeys are bound to the environment even when absent from the file.
var secretKeys = []string{
	"job",
	"input.path",
	"enrichment.enabled",
	"enrichment.api_key",
	"enrichment.token_file",
	"enrichment.client_secrets_file",
	"enrichment.batch_size",
	"output.kind",
	"output.dir",
	"output.dsn",
}

// Load reads the configuration at path. An empty path yields defaults plus
// environment overrides. A .env file in the working directory is loaded
// first when present.
func Load(path string) (Pipeline, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range secretKeys {
		if err := v.BindEnv(k); err != nil {
			return Pipeline{}, fmt.Errorf("config: bind env %s: %w", k, err)
		}
	}
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.dedup_ids", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return Pipeline{}, fmt.Errorf("config: %s not found", path)
			}
			return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode: %w", err)
	}
	p.ApplyDefaults()
	return p, nil
}
