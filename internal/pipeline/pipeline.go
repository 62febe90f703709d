// Package pipeline runs the end-to-end job: read the run document, build the
// run and link tables, enrich the VOD links with video metadata and hand
// every table to a storage sink.
//
// Stages run sequentially in one goroutine. The run table and every
// non-enriched link table are written before any enrichment request is made,
// so a failed lookup never loses them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gdqvods/internal/config"
	"gdqvods/internal/datasource"
	"gdqvods/internal/enrich"
	"gdqvods/internal/link"
	"gdqvods/internal/metrics"
	"gdqvods/internal/normalize"
	jsonparser "gdqvods/internal/parser/json"
	"gdqvods/internal/storage"
	"gdqvods/internal/table"
	"gdqvods/internal/transformer"
	"gdqvods/internal/transformer/builtin"
	"gdqvods/pkg/records"
)

// Deps are the collaborators of a run.
type Deps struct {
	Source datasource.Source
	// Writer may be nil in dry-run mode.
	Writer storage.TableWriter
	// Lookup resolves video ids; required when enrichment is enabled and
	// DryRun is false.
	Lookup enrich.Lookup
	Log    logrus.FieldLogger
	// DryRun builds every table but skips writes and lookups.
	DryRun bool
}

// TableSummary reports one produced table.
type TableSummary struct {
	Name    string
	Rows    int
	Columns int
	Written bool
}

// Summary reports a finished run.
type Summary struct {
	Tables []TableSummary
	// IDs is the number of ids sent to the lookup service.
	IDs     int
	Batches int
	Items   int
	Join    enrich.JoinStats
	Elapsed time.Duration
}

type runner struct {
	cfg  config.Pipeline
	deps Deps
	log  logrus.FieldLogger
	sum  Summary
}

// Run executes cfg. Every fatal error is returned wrapped with the failing
// stage, e.g. "pipeline: runs: format error: ...".
func Run(ctx context.Context, cfg config.Pipeline, deps Deps) (Summary, error) {
	start := time.Now()
	if deps.Source == nil {
		return Summary{}, errors.New("pipeline: no input source")
	}
	if deps.Writer == nil && !deps.DryRun {
		return Summary{}, errors.New("pipeline: no table writer")
	}
	enriched := 0
	for _, rel := range cfg.Relations {
		if rel.Enrich {
			enriched++
		}
	}
	if enriched > 1 {
		return Summary{}, fmt.Errorf("pipeline: %d relations set enrich; at most one may", enriched)
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &runner{cfg: cfg, deps: deps, log: log.WithField("job", cfg.Job)}
	err := r.run(ctx)
	r.sum.Elapsed = time.Since(start)
	return r.sum, err
}

func (r *runner) run(ctx context.Context) error {
	var recs []records.Record
	if err := r.step(ctx, "read", func(ctx context.Context) error {
		var err error
		recs, err = r.read(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := r.step(ctx, "runs", func(ctx context.Context) error {
		t, err := normalize.Runs(recs, normalize.RunOptions{
			Table:          r.cfg.Runs.Table,
			IDField:        r.cfg.Runs.IDField,
			DropFields:     r.cfg.Runs.DropFields,
			DropSuffixes:   r.cfg.Runs.DropSuffixes,
			DurationField:  r.cfg.Runs.DurationField,
			DurationColumn: r.cfg.Runs.DurationColumn,
		})
		if err != nil {
			return err
		}
		return r.write(ctx, t)
	}); err != nil {
		return err
	}

	enrichRel, enrichOn := r.cfg.EnrichedRelation()
	enrichOn = enrichOn && r.cfg.Enrichment.Enabled
	var enrichTable *table.Table
	for _, rel := range r.cfg.Relations {
		rel := rel
		if err := r.step(ctx, "link:"+rel.Table, func(ctx context.Context) error {
			t, err := r.buildLink(recs, rel)
			if err != nil {
				return err
			}
			if enrichOn && rel.Enrich {
				enrichTable = t
				return nil
			}
			return r.write(ctx, t)
		}); err != nil {
			return err
		}
	}

	if enrichTable == nil {
		return nil
	}
	return r.step(ctx, "enrich:"+enrichRel.Table, func(ctx context.Context) error {
		return r.enrich(ctx, enrichTable)
	})
}

// step times fn, records the step metric and wraps any error with name.
func (r *runner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStep(r.cfg.Job, name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("pipeline: %s: %w", name, err)
	}
	return nil
}

func (r *runner) read(ctx context.Context) ([]records.Record, error) {
	rc, err := r.deps.Source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	recs, err := jsonparser.Records(rc, r.cfg.Input.RecordsPath, "input")
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"stage": "read", "runs": len(recs)}).Info("run document loaded")
	return recs, nil
}

func (r *runner) buildLink(recs []records.Record, rel config.Relation) (*table.Table, error) {
	t, err := link.Build(recs, link.Relation{
		Name:         rel.Table,
		Field:        rel.Field,
		ParentKey:    r.cfg.Runs.IDField,
		ForeignKey:   rel.ForeignKey,
		DropFields:   rel.DropFields,
		DropSuffixes: rel.DropSuffixes,
		Explode:      rel.Explode,
		ExplodeAs:    rel.ExplodeAs,
	})
	if err != nil {
		return nil, err
	}
	var chain transformer.Chain
	if rel.Dedup {
		chain = append(chain, builtin.Distinct{})
	}
	if len(chain) == 0 {
		return t, nil
	}
	before := t.Len()
	out := t.Derive()
	for _, row := range chain.Apply(t.Rows) {
		out.Append(row)
	}
	if dropped := before - out.Len(); dropped > 0 {
		r.log.WithFields(logrus.Fields{"stage": "link", "table": rel.Table, "dropped": dropped}).
			Debug("duplicate link rows removed")
	}
	return out, nil
}

func (r *runner) enrich(ctx context.Context, links *table.Table) error {
	e := r.cfg.Enrichment
	ids := EnrichableIDs(links, e.SourceField, e.Source, e.LinkKey)
	if e.DedupIDs {
		ids = builtin.UniqueStrings(ids)
	}
	size := e.BatchSize
	if size == 0 {
		size = enrich.MaxBatchSize
	}
	r.sum.IDs = len(ids)
	r.sum.Batches = (len(ids) + size - 1) / size
	joiner := enrich.Joiner{LinkKey: e.LinkKey, SourceField: e.SourceField, Source: e.Source}
	log := r.log.WithFields(logrus.Fields{"stage": "enrich", "table": links.Name})

	if r.deps.DryRun {
		log.WithFields(logrus.Fields{"ids": r.sum.IDs, "batches": r.sum.Batches}).Info("dry run: lookups skipped")
		joined, stats, err := joiner.Join(links, nil)
		if err != nil {
			return err
		}
		r.sum.Join = stats
		return r.write(ctx, joined)
	}
	if r.deps.Lookup == nil {
		return errors.New("enrichment enabled but no lookup service configured")
	}

	items, err := enrich.BatchFetcher{
		Service:   r.deps.Lookup,
		BatchSize: size,
		Job:       r.cfg.Job,
		Log:       log,
	}.Fetch(ctx, ids)
	if err != nil {
		return err
	}
	r.sum.Items = len(items)
	metrics.RecordLookups(r.cfg.Job, "returned", int64(len(items)))

	joined, stats, err := joiner.Join(links, items)
	if err != nil {
		return err
	}
	r.sum.Join = stats
	metrics.RecordLookups(r.cfg.Job, "matched", int64(stats.Matched))
	metrics.RecordLookups(r.cfg.Job, "missed", int64(stats.Missed))
	if stats.TagFallbacks > 0 {
		log.WithField("items", stats.TagFallbacks).Warn("unexpected tag shape; tags left empty")
	}
	if stats.DurationFallbacks > 0 {
		log.WithField("items", stats.DurationFallbacks).Warn("unparsable video duration; duration left empty")
	}
	log.WithFields(logrus.Fields{
		"ids":     len(ids),
		"items":   len(items),
		"matched": stats.Matched,
		"missed":  stats.Missed,
	}).Info("enrichment joined")
	return r.write(ctx, joined)
}

// EnrichableIDs returns the link key of every row whose sourceField equals
// source, in row order. Rows without a usable key are skipped.
func EnrichableIDs(t *table.Table, sourceField, source, linkKey string) []string {
	var ids []string
	for _, row := range t.Rows {
		if s, ok := row[sourceField].(string); !ok || s != source {
			continue
		}
		if id, ok := table.Key(row[linkKey]); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *runner) write(ctx context.Context, t *table.Table) error {
	ts := TableSummary{Name: t.Name, Rows: t.Len(), Columns: len(t.Columns)}
	log := r.log.WithFields(logrus.Fields{"table": t.Name, "rows": t.Len(), "columns": len(t.Columns)})
	if r.deps.DryRun {
		r.sum.Tables = append(r.sum.Tables, ts)
		log.Info("dry run: table not written")
		return nil
	}
	if err := r.deps.Writer.WriteTable(ctx, t); err != nil {
		return fmt.Errorf("write %s: %w", t.Name, err)
	}
	ts.Written = true
	r.sum.Tables = append(r.sum.Tables, ts)
	metrics.RecordRows(r.cfg.Job, t.Name, r.cfg.Output.Kind, int64(t.Len()))
	log.Info("table written")
	return nil
}
