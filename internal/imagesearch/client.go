// Package imagesearch queries the Pixabay photo API for background images.
package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/linuxmatters/jivecanvas/internal/config"
)

// ErrSearch wraps every search failure.
var ErrSearch = errors.New("image search failed")

// Hit is one search result.
type Hit struct {
	ID            int    `json:"id"`
	PreviewURL    string `json:"previewURL"`
	LargeImageURL string `json:"largeImageURL"`
	Tags          string `json:"tags"`
}

// Result is a page of hits.
type Result struct {
	Total     int   `json:"total"`
	TotalHits int   `json:"totalHits"`
	Hits      []Hit `json:"hits"`
}

// Client talks to the Pixabay API.
type Client struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

// NewClient creates a client. An empty endpoint uses config.PixabayEndpoint.
func NewClient(endpoint, key string) *Client {
	if endpoint == "" {
		endpoint = config.PixabayEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		key:        key,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Search returns one page of photos matching query. Pages start at 1; an
// empty query searches for config.DefaultSearchQuery.
func (c *Client) Search(ctx context.Context, query string, page int) ([]Hit, error) {
	res, err := c.SearchPage(ctx, query, page)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// SearchPage is Search with the result totals.
func (c *Client) SearchPage(ctx context.Context, query string, page int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = config.DefaultSearchQuery
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("key", c.key)
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(config.SearchPerPage))
	params.Set("image_type", "photo")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrSearch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearch, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearch, err)
	}
	return &result, nil
}
