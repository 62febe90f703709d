package enrich

import (
	"fmt"
	"strings"

	"github.com/sosodev/duration"

	"gdqvods/internal/etlerr"
	"gdqvods/internal/flatten"
	"gdqvods/internal/table"
	"gdqvods/internal/transformer/builtin"
	"gdqvods/pkg/records"
)

// Kind selects how a projected value is converted.
type Kind int

const (
	// Text copies the value unchanged.
	Text Kind = iota
	// Tags joins a list of strings with commas.
	Tags
	// ISODuration converts an ISO-8601 duration ("PT1H2M3S") to seconds.
	ISODuration
	// Count converts a decimal string or number to int64.
	Count
)

// Field maps a flattened item path onto an output column.
type Field struct {
	From string
	To   string
	Kind Kind
}

// DefaultProjection is the video metadata column subset.
func DefaultProjection() []Field {
	return []Field{
		{From: "snippet.title", To: "vod_title"},
		{From: "snippet.description", To: "vod_description"},
		{From: "snippet.channelTitle", To: "vod_channel_title"},
		{From: "snippet.tags", To: "vod_tags", Kind: Tags},
		{From: "contentDetails.duration", To: "vod_duration_seconds", Kind: ISODuration},
		{From: "statistics.viewCount", To: "vod_view_count", Kind: Count},
		{From: "statistics.likeCount", To: "vod_like_count", Kind: Count},
		{From: "statistics.favoriteCount", To: "vod_favorite_count", Kind: Count},
		{From: "statistics.commentCount", To: "vod_comment_count", Kind: Count},
	}
}

// Joiner left-joins link rows to fetched items.
type Joiner struct {
	// LinkKey is the link-table column holding the id (default "videoId").
	LinkKey string
	// ItemKey is the item field holding the id (default "id").
	ItemKey string
	// SourceField and Source restrict matching to rows from the looked-up
	// platform (defaults "source" and "YOUTUBE").
	SourceField string
	Source      string
	// Projection defaults to DefaultProjection.
	Projection []Field
}

// JoinStats counts recoverable conditions met during a join.
type JoinStats struct {
	Items   int // distinct items indexed
	Matched int // link rows that found an item
	Missed  int // link rows left without enrichment
	// TagFallbacks counts items whose tag value had an unexpected shape.
	TagFallbacks int
	// DurationFallbacks counts items whose duration could not be parsed.
	DurationFallbacks int
}

func (j Joiner) withDefaults() Joiner {
	if j.LinkKey == "" {
		j.LinkKey = "videoId"
	}
	if j.ItemKey == "" {
		j.ItemKey = "id"
	}
	if j.SourceField == "" {
		j.SourceField = "source"
	}
	if j.Source == "" {
		j.Source = "YOUTUBE"
	}
	if j.Projection == nil {
		j.Projection = DefaultProjection()
	}
	return j
}

// Join returns a new table holding every row of links, in order, extended
// with the projected columns. Rows from another source, or without a matching
// item, carry nil in every projected column. Exact duplicate output rows are
// collapsed. An item whose keys flatten onto the same path is a
// *etlerr.ShapeError.
func (j Joiner) Join(links *table.Table, items []records.Record) (*table.Table, JoinStats, error) {
	j = j.withDefaults()
	var stats JoinStats

	index, err := j.index(items, &stats)
	if err != nil {
		return nil, stats, err
	}

	out := links.Derive()
	cols := make([]string, len(j.Projection))
	for i, f := range j.Projection {
		cols[i] = f.To
	}
	out.AddColumns(cols...)

	rows := make([]records.Record, 0, links.Len())
	for _, l := range links.Rows {
		row := l.Clone()
		var proj records.Record
		if src, ok := l[j.SourceField].(string); ok && src == j.Source {
			if id, ok := table.Key(l[j.LinkKey]); ok {
				proj = index[id]
			}
		}
		if proj != nil {
			stats.Matched++
		} else {
			stats.Missed++
		}
		for _, c := range cols {
			row[c] = proj[c]
		}
		rows = append(rows, row)
	}
	for _, r := range (builtin.Distinct{}).Apply(rows) {
		out.Append(r)
	}
	return out, stats, nil
}

// index projects each item once. The first item seen for an id wins.
func (j Joiner) index(items []records.Record, stats *JoinStats) (map[string]records.Record, error) {
	idx := make(map[string]records.Record, len(items))
	var counts []string
	for _, f := range j.Projection {
		if f.Kind == Count {
			counts = append(counts, f.To)
		}
	}
	coerce := builtin.Coerce{Fields: counts, NullOnError: true}

	for i, it := range items {
		flat, err := flatten.Flatten(it)
		if err != nil {
			return nil, &etlerr.ShapeError{
				Stage:  "enrich",
				Path:   fmt.Sprintf("items[%d]", i),
				Reason: err.Error(),
			}
		}
		id, ok := table.Key(flat[j.ItemKey])
		if !ok {
			continue
		}
		if _, dup := idx[id]; dup {
			continue
		}
		proj := make(records.Record, len(j.Projection))
		for _, f := range j.Projection {
			v := flat[f.From]
			switch f.Kind {
			case Tags:
				s, ok := JoinTags(v)
				if !ok {
					stats.TagFallbacks++
				}
				proj[f.To] = s
			case ISODuration:
				secs, ok := isoSeconds(v)
				if !ok {
					stats.DurationFallbacks++
				}
				proj[f.To] = secs
			default:
				proj[f.To] = v
			}
		}
		coerce.Apply([]records.Record{proj})
		idx[id] = proj
	}
	stats.Items = len(idx)
	return idx, nil
}

// JoinTags serializes a tag list as comma-joined text. A missing or null
// value yields nil. Any other shape, or a list holding non-strings, yields nil
// and false.
func JoinTags(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), true
	case []string:
		return strings.Join(t, ","), true
	default:
		return nil, false
	}
}

// isoSeconds converts an ISO-8601 duration string to whole seconds. nil and
// missing values are nil without a fallback.
func isoSeconds(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	d, err := duration.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return int64(d.ToTimeDuration().Seconds()), true
}
