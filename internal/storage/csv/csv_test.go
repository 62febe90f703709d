package csv

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gdqvods/internal/storage"
	"gdqvods/internal/table"
	"gdqvods/pkg/records"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWriteTable_HeaderAndCells(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "interim")
	w, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tb := table.New("GDQvods_run_runners", "run_id")
	tb.Append(records.Record{"run_id": "A", "name": "Runner, Jr.", "twitch": nil, "followers": json.Number("12")})
	tb.Append(records.Record{"run_id": "B", "name": "plain"})
	if err := w.WriteTable(context.Background(), tb); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	got := readAll(t, filepath.Join(dir, "GDQvods_run_runners.csv"))
	want := [][]string{
		{"run_id", "followers", "name", "twitch"},
		{"A", "12", "Runner, Jr.", ""},
		{"B", "", "plain", ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("csv = %v\nwant %v", got, want)
	}
}

func TestWriteTable_Overwrites(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	first := table.New("t", "id")
	first.Append(records.Record{"id": "1"})
	first.Append(records.Record{"id": "2"})
	second := table.New("t", "id")
	second.Append(records.Record{"id": "3"})

	if err := w.WriteTable(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := w.WriteTable(ctx, second); err != nil {
		t.Fatalf("second: %v", err)
	}
	if got := readAll(t, w.Path("t")); !reflect.DeepEqual(got, [][]string{{"id"}, {"3"}}) {
		t.Fatalf("csv = %v", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(w.Path("t")))
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
}

func TestRegisteredFactory(t *testing.T) {
	t.Parallel()

	w, err := storage.New(context.Background(), storage.Config{Kind: "csv", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer w.Close()
	if _, ok := w.(*Writer); !ok {
		t.Fatalf("writer type = %T", w)
	}
}

func TestWriteTable_RejectsPathNames(t *testing.T) {
	t.Parallel()

	w, _ := New(t.TempDir(), nil)
	if err := w.WriteTable(context.Background(), table.New("../escape")); err == nil {
		t.Fatal("want error for path-like table name")
	}
}
