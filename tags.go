package discourse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Tag is a forum tag with its usage count.
type Tag struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// TagGroup groups tags under shared permissions.
type TagGroup struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	TagNames    []string `json:"tag_names"`
	OnePerTopic bool     `json:"one_per_topic"`
}

type tagListResponse struct {
	Tags []Tag `json:"tags"`
}

type tagGroupResponse struct {
	TagGroup TagGroup `json:"tag_group"`
}

// ListTags returns all tags.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	resp, err := FetchAs[tagListResponse](ctx, c, "/tags.json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return resp.Tags, nil
}

// ListTagTopics returns the topics carrying a tag.
func (c *Client) ListTagTopics(ctx context.Context, tag string) ([]TopicSummary, error) {
	resp, err := FetchAs[topicListResponse](ctx, c, "/tag/"+url.PathEscape(tag)+".json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return resp.TopicList.Topics, nil
}

// CreateTagGroup creates a named tag group.
func (c *Client) CreateTagGroup(ctx context.Context, name string, tagNames []string) (*TagGroup, error) {
	resp, err := FetchAs[tagGroupResponse](ctx, c, "/tag_groups.json", FetchOptions{
		Method: http.MethodPost,
		Body: map[string]any{
			"name":      name,
			"tag_names": tagNames,
		},
	})
	if err != nil {
		return nil, err
	}
	return &resp.TagGroup, nil
}

// UpdateTagGroup replaces a tag group's member tags.
func (c *Client) UpdateTagGroup(ctx context.Context, id int, tagNames []string) (*TagGroup, error) {
	resp, err := FetchAs[tagGroupResponse](ctx, c, fmt.Sprintf("/tag_groups/%d.json", id), FetchOptions{
		Method: http.MethodPut,
		Body: map[string]any{
			"tag_names": tagNames,
		},
	})
	if err != nil {
		return nil, err
	}
	return &resp.TagGroup, nil
}
