// Package youtube looks up video metadata through the YouTube Data API v3
// videos endpoint.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gdqvods/internal/datasource/httpds"
	jsonparser "gdqvods/internal/parser/json"
	"gdqvods/pkg/records"
)

// DefaultPart requests title, tags, duration and counters in one call.
const DefaultPart = "snippet,contentDetails,statistics"

// Config configures the videos lookup.
type Config struct {
	// BaseURL is the API root, e.g. https://www.googleapis.com/youtube/v3.
	BaseURL string
	Part    string
	// MaxResults is sent with every request (default 50).
	MaxResults int
	// APIKey is sent as the key parameter when set. OAuth-authorized clients
	// leave it empty and authorize through the httpds transport.
	APIKey string
}

// Client implements enrich.Lookup.
type Client struct {
	http *httpds.Client
	cfg  Config
}

// New returns a Client issuing requests through hc.
func New(hc *httpds.Client, cfg Config) *Client {
	if cfg.Part == "" {
		cfg.Part = DefaultPart
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{http: hc, cfg: cfg}
}

// Lookup fetches the items for ids with a single request. A response without
// an items array is a *etlerr.ShapeError.
func (c *Client) Lookup(ctx context.Context, ids []string) ([]records.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{
		"part":       {c.cfg.Part},
		"id":         {strings.Join(ids, ",")},
		"maxResults": {strconv.Itoa(c.cfg.MaxResults)},
	}
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	body, err := c.http.GetBytes(ctx, c.cfg.BaseURL+"/videos", q, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("youtube: videos.list: %w", err)
	}
	return jsonparser.RecordsBytes(body, "items", "youtube:videos")
}
