package discourse

import (
	"context"
	"net/url"
)

// SearchResult bundles the posts and topics matching a query.
type SearchResult struct {
	Posts  []Post         `json:"posts"`
	Topics []TopicSummary `json:"topics"`
}

// Search runs a full-text query against the forum.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	result, err := FetchAs[SearchResult](ctx, c, "/search.json?q="+url.QueryEscape(query), FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
