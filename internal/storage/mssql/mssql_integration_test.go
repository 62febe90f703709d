//go:build integration

package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"gdqvods/internal/table"
	"gdqvods/pkg/records"
)

func TestWriteTable_Integration(t *testing.T) {
	dsn := os.Getenv("GDQVODS_TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("GDQVODS_TEST_MSSQL_DSN not set; skipping MSSQL integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := Open(ctx, dsn, 2, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	tb := table.New("gdqvods_it_vods", "run_id")
	tb.Append(records.Record{"run_id": "r1", "videoId": "v1", "vod_view_count": int64(10)})
	tb.Append(records.Record{"run_id": "r1", "videoId": "v2", "vod_view_count": nil})
	tb.Append(records.Record{"run_id": "r2", "videoId": "v3", "vod_view_count": int64(7)})
	if err := w.WriteTable(ctx, tb); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	defer func() { _ = w.Exec(ctx, "DROP TABLE IF EXISTS [gdqvods_it_vods]") }()

	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM [gdqvods_it_vods]").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d; want 3", n)
	}
}
