package discourse

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Post is a single forum post.
type Post struct {
	ID         int       `json:"id"`
	TopicID    int       `json:"topic_id"`
	PostNumber int       `json:"post_number"`
	Username   string    `json:"username"`
	Raw        string    `json:"raw"`
	Cooked     string    `json:"cooked"`
	ReplyCount int       `json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewPost holds the fields accepted when replying to a topic.
type NewPost struct {
	TopicID int    `json:"topic_id"`
	Raw     string `json:"raw"`
	// ReplyTo references a post number within the topic, 0 for top-level.
	ReplyTo int `json:"reply_to_post_number,omitempty"`
}

type postResponse struct {
	Post Post `json:"post"`
}

// GetPost returns one post by id.
func (c *Client) GetPost(ctx context.Context, id int) (*Post, error) {
	post, err := FetchAs[Post](ctx, c, fmt.Sprintf("/posts/%d.json", id), FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost replies to a topic on behalf of asUser (empty for the admin user).
func (c *Client) CreatePost(ctx context.Context, post NewPost, asUser string) (*Post, error) {
	created, err := FetchAs[Post](ctx, c, "/posts.json", FetchOptions{
		Method: http.MethodPost,
		Body:   post,
		AsUser: asUser,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// EditPost replaces a post's raw content.
func (c *Client) EditPost(ctx context.Context, id int, raw string) (*Post, error) {
	resp, err := FetchAs[postResponse](ctx, c, fmt.Sprintf("/posts/%d.json", id), FetchOptions{
		Method: http.MethodPut,
		Body: map[string]map[string]string{
			"post": {"raw": raw},
		},
	})
	if err != nil {
		return nil, err
	}
	return &resp.Post, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id int) error {
	_, err := c.Fetch(ctx, fmt.Sprintf("/posts/%d.json", id), FetchOptions{Method: http.MethodDelete})
	return err
}
