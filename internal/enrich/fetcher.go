// Package enrich fetches external video metadata in bounded batches and
// left-joins it onto a link table.
package enrich

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gdqvods/internal/etlerr"
	"gdqvods/internal/metrics"
	"gdqvods/pkg/records"
)

// MaxBatchSize is the largest number of ids the service accepts per request.
const MaxBatchSize = 50

// Lookup resolves a bounded list of ids to raw metadata items. Ids the
// service does not know are simply absent from the result.
type Lookup interface {
	Lookup(ctx context.Context, ids []string) ([]records.Record, error)
}

// BatchFetcher issues sequential Lookup calls over consecutive chunks of at
// most BatchSize ids and concatenates the results in request order.
type BatchFetcher struct {
	Service Lookup
	// BatchSize defaults to MaxBatchSize and must be within 1..MaxBatchSize.
	BatchSize int
	// Job labels metrics.
	Job string
	Log logrus.FieldLogger
}

// Fetch returns every item returned for ids. The first failing chunk aborts
// the fetch with a *etlerr.FetchError; no partial result is returned.
func (f BatchFetcher) Fetch(ctx context.Context, ids []string) ([]records.Record, error) {
	if f.Service == nil {
		return nil, fmt.Errorf("enrich: no lookup service configured")
	}
	size := f.BatchSize
	if size == 0 {
		size = MaxBatchSize
	}
	if size < 1 || size > MaxBatchSize {
		return nil, fmt.Errorf("enrich: batch size %d outside 1..%d", size, MaxBatchSize)
	}
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	n := len(ids)
	var out []records.Record
	for chunk, off := 0, 0; off < n; chunk, off = chunk+1, off+size {
		end := off + size
		if end > n {
			end = n
		}
		batch := ids[off:end]

		log.WithFields(logrus.Fields{"chunk": chunk, "size": len(batch)}).
			Infof("Getting vod info through %d of %d", off, n)

		if err := ctx.Err(); err != nil {
			return nil, &etlerr.FetchError{Chunk: chunk, Offset: off, Size: len(batch), Err: err}
		}
		items, err := f.Service.Lookup(ctx, batch)
		if err != nil {
			return nil, &etlerr.FetchError{Chunk: chunk, Offset: off, Size: len(batch), Err: err}
		}
		metrics.RecordBatches(f.Job, "lookup", 1)
		metrics.RecordLookups(f.Job, "requested", int64(len(batch)))
		out = append(out, items...)
	}
	return out, nil
}
