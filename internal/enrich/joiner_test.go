package enrich

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gdqvods/internal/etlerr"
	"gdqvods/internal/table"
	"gdqvods/pkg/records"
)

func vodLinks(rows ...records.Record) *table.Table {
	t := table.New("GDQvods_run_vods", "run_id")
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func ytItem(id string) records.Record {
	return records.Record{
		"kind": "youtube#video",
		"id":   id,
		"snippet": map[string]any{
			"title":        "Title " + id,
			"description":  "desc",
			"channelTitle": "GamesDoneQuick",
			"tags":         []any{"a", "b", "c"},
		},
		"contentDetails": map[string]any{"duration": "PT1H2M3S"},
		"statistics": map[string]any{
			"viewCount":     "1000",
			"likeCount":     "10",
			"favoriteCount": "0",
			"commentCount":  json.Number("5"),
		},
	}
}

func TestJoin_LeftJoinCompleteness(t *testing.T) {
	t.Parallel()

	links := vodLinks(
		records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v1"},
		records.Record{"run_id": "A", "source": "OTHER", "videoId": "o1"},
		records.Record{"run_id": "B", "source": "YOUTUBE", "videoId": "v1"},
		records.Record{"run_id": "C", "source": "YOUTUBE", "videoId": "gone"},
		records.Record{"run_id": "D", "source": "OTHER", "videoId": nil},
	)

	for _, items := range [][]records.Record{nil, {ytItem("v1")}, {ytItem("v1"), ytItem("v1"), ytItem("zz")}} {
		out, stats, err := Joiner{}.Join(links, items)
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
		if out.Len() != links.Len() {
			t.Fatalf("len(join) = %d; want %d (items=%d)", out.Len(), links.Len(), len(items))
		}
		if stats.Matched+stats.Missed != links.Len() {
			t.Fatalf("stats = %+v", stats)
		}
		for i, r := range out.Rows {
			if r["run_id"] != links.Rows[i]["run_id"] || r["videoId"] != links.Rows[i]["videoId"] {
				t.Fatalf("row %d out of order: %v", i, r)
			}
		}
	}
}

func TestJoin_ProjectionAndNullsOnMiss(t *testing.T) {
	t.Parallel()

	links := vodLinks(
		records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v1"},
		records.Record{"run_id": "A", "source": "OTHER", "videoId": "o1"},
	)
	out, stats, err := Joiner{}.Join(links, []records.Record{ytItem("v1")})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	hit := out.Rows[0]
	want := map[string]any{
		"vod_title":            "Title v1",
		"vod_description":      "desc",
		"vod_channel_title":    "GamesDoneQuick",
		"vod_tags":             "a,b,c",
		"vod_duration_seconds": int64(3723),
		"vod_view_count":       int64(1000),
		"vod_like_count":       int64(10),
		"vod_favorite_count":   int64(0),
		"vod_comment_count":    int64(5),
	}
	for k, v := range want {
		if !reflect.DeepEqual(hit[k], v) {
			t.Fatalf("%s = %#v; want %#v", k, hit[k], v)
		}
	}

	miss := out.Rows[1]
	for k := range want {
		v, ok := miss[k]
		if !ok || v != nil {
			t.Fatalf("miss row %s = %#v (present=%v); want explicit nil", k, v, ok)
		}
	}
	if stats.Matched != 1 || stats.Missed != 1 || stats.Items != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	wantCols := []string{"run_id", "source", "videoId",
		"vod_title", "vod_description", "vod_channel_title", "vod_tags", "vod_duration_seconds",
		"vod_view_count", "vod_like_count", "vod_favorite_count", "vod_comment_count"}
	if !reflect.DeepEqual(out.Columns, wantCols) {
		t.Fatalf("columns = %v\nwant %v", out.Columns, wantCols)
	}
}

func TestJoin_FallbacksAndDedup(t *testing.T) {
	t.Parallel()

	odd := ytItem("v2")
	odd["snippet"].(map[string]any)["tags"] = "not-a-list"
	odd["contentDetails"] = map[string]any{"duration": "1:02:03"}
	odd["statistics"] = map[string]any{"viewCount": "lots"}

	links := vodLinks(
		records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v2"},
		records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v2"},
	)
	out, stats, err := Joiner{}.Join(links, []records.Record{odd})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if stats.TagFallbacks != 1 || stats.DurationFallbacks != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if out.Len() != 1 {
		t.Fatalf("duplicate rows not collapsed: %d", out.Len())
	}
	r := out.Rows[0]
	if r["vod_tags"] != nil || r["vod_duration_seconds"] != nil || r["vod_view_count"] != nil {
		t.Fatalf("fallback values = %#v", r)
	}
	if r["vod_title"] != "Title v2" {
		t.Fatalf("title = %v", r["vod_title"])
	}
}

func TestJoin_SourceMustMatch(t *testing.T) {
	t.Parallel()

	links := vodLinks(
		records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "123"},
		records.Record{"run_id": "A", "source": "TWITCH", "videoId": "123"},
	)
	out, stats, err := Joiner{}.Join(links, []records.Record{ytItem("123")})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if out.Len() != 2 {
		t.Fatalf("len(join) = %d; want 2", out.Len())
	}
	if got := out.Rows[0]["vod_title"]; got != "Title 123" {
		t.Fatalf("YOUTUBE row title = %v; want Title 123", got)
	}
	if got := out.Rows[1]["vod_title"]; got != nil {
		t.Fatalf("TWITCH row title = %v; want nil", got)
	}
	if stats.Matched != 1 || stats.Missed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	custom := vodLinks(
		records.Record{"run_id": "A", "platform": "yt", "videoId": "123"},
		records.Record{"run_id": "A", "platform": "tw", "videoId": "123"},
	)
	out, _, err = Joiner{SourceField: "platform", Source: "yt"}.Join(custom, []records.Record{ytItem("123")})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if out.Rows[0]["vod_title"] != "Title 123" || out.Rows[1]["vod_title"] != nil {
		t.Fatalf("custom source rows = %v", out.Rows)
	}
}

func TestJoin_ItemKeyCollisionIsShapeError(t *testing.T) {
	t.Parallel()

	bad := ytItem("v1")
	bad["snippet.title"] = "shadow"

	links := vodLinks(records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v1"})
	_, _, err := Joiner{}.Join(links, []records.Record{ytItem("v0"), bad})
	var se *etlerr.ShapeError
	if !errors.As(err, &se) || se.Path != "items[1]" {
		t.Fatalf("err = %v; want ShapeError at items[1]", err)
	}
}

func TestJoin_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	links := vodLinks(records.Record{"run_id": "A", "source": "YOUTUBE", "videoId": "v1"})
	before := links.Rows[0].Clone()
	if _, _, err := (Joiner{}).Join(links, []records.Record{ytItem("v1")}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !reflect.DeepEqual(links.Rows[0], before) {
		t.Fatalf("input row mutated: %v", links.Rows[0])
	}
}

func TestJoinTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     any
		want   any
		wantOK bool
	}{
		{"list", []any{"a", "b", "c"}, "a,b,c", true},
		{"empty list", []any{}, "", true},
		{"typed list", []string{"x", "y"}, "x,y", true},
		{"missing", nil, nil, true},
		{"scalar", "a,b", nil, false},
		{"number", json.Number("3"), nil, false},
		{"mixed list", []any{"a", json.Number("1")}, nil, false},
	}
	for _, tt := range tests {
		got, ok := JoinTags(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("%s: JoinTags(%#v) = %#v, %v; want %#v, %v", tt.name, tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
