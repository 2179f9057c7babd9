package discourse

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Topic is a forum topic with its post stream.
type Topic struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	PostsCount int       `json:"posts_count"`
	CategoryID int       `json:"category_id"`
	Closed     bool      `json:"closed"`
	Archived   bool      `json:"archived"`
	Visible    bool      `json:"visible"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	PostStream struct {
		Posts []Post `json:"posts"`
	} `json:"post_stream"`
}

// TopicSummary is the abbreviated topic shape used in listings.
type TopicSummary struct {
	ID         int       `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	PostsCount int       `json:"posts_count"`
	CategoryID int       `json:"category_id"`
	Closed     bool      `json:"closed"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTopic holds the fields accepted when creating a topic.
type NewTopic struct {
	Title    string   `json:"title"`
	Raw      string   `json:"raw"`
	Category int      `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// TopicStatus names a mutable topic flag (closed, archived, visible, pinned).
type TopicStatus string

const (
	TopicClosed   TopicStatus = "closed"
	TopicArchived TopicStatus = "archived"
	TopicVisible  TopicStatus = "visible"
	TopicPinned   TopicStatus = "pinned"
)

type topicListResponse struct {
	TopicList struct {
		Topics []TopicSummary `json:"topics"`
	} `json:"topic_list"`
}

// GetTopic returns one topic, including its post stream.
func (c *Client) GetTopic(ctx context.Context, id int) (*Topic, error) {
	topic, err := FetchAs[Topic](ctx, c, fmt.Sprintf("/t/%d.json", id), FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// ListLatestTopics returns the latest topics across the forum.
func (c *Client) ListLatestTopics(ctx context.Context) ([]TopicSummary, error) {
	resp, err := FetchAs[topicListResponse](ctx, c, "/latest.json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return resp.TopicList.Topics, nil
}

// CreateTopic creates a topic on behalf of asUser (empty for the admin user)
// and returns its first post.
func (c *Client) CreateTopic(ctx context.Context, topic NewTopic, asUser string) (*Post, error) {
	post, err := FetchAs[Post](ctx, c, "/posts.json", FetchOptions{
		Method: http.MethodPost,
		Body:   topic,
		AsUser: asUser,
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdateTopicStatus toggles a topic flag such as closed or archived.
func (c *Client) UpdateTopicStatus(ctx context.Context, id int, status TopicStatus, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	_, err := c.Fetch(ctx, fmt.Sprintf("/t/%d/status.json", id), FetchOptions{
		Method: http.MethodPut,
		Body: map[string]string{
			"status":  string(status),
			"enabled": value,
		},
	})
	return err
}

// DeleteTopic removes a topic.
func (c *Client) DeleteTopic(ctx context.Context, id int) error {
	_, err := c.Fetch(ctx, fmt.Sprintf("/t/%d.json", id), FetchOptions{Method: http.MethodDelete})
	return err
}
