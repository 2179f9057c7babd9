package discourse

import (
	"context"
	"fmt"
	"net/http"
)

// Category is a forum category.
type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Color       string `json:"color"`
	TextColor   string `json:"text_color"`
	Description string `json:"description"`
	TopicCount  int    `json:"topic_count"`
	PostCount   int    `json:"post_count"`
	Position    int    `json:"position"`
	ParentID    int    `json:"parent_category_id"`
	ReadRestr   bool   `json:"read_restricted"`
}

// NewCategory holds the fields accepted when creating a category.
type NewCategory struct {
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	TextColor string `json:"text_color,omitempty"`
	ParentID  int    `json:"parent_category_id,omitempty"`
}

type categoryListResponse struct {
	CategoryList struct {
		Categories []Category `json:"categories"`
	} `json:"category_list"`
}

type categoryResponse struct {
	Category Category `json:"category"`
}

// ListCategories returns all categories visible to the acting user.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	resp, err := FetchAs[categoryListResponse](ctx, c, "/categories.json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return resp.CategoryList.Categories, nil
}

// GetCategory returns one category by id.
func (c *Client) GetCategory(ctx context.Context, id int) (*Category, error) {
	resp, err := FetchAs[categoryResponse](ctx, c, fmt.Sprintf("/c/%d/show.json", id), FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &resp.Category, nil
}

// CreateCategory creates a category and returns the stored record.
func (c *Client) CreateCategory(ctx context.Context, category NewCategory) (*Category, error) {
	resp, err := FetchAs[categoryResponse](ctx, c, "/categories.json", FetchOptions{
		Method: http.MethodPost,
		Body:   category,
	})
	if err != nil {
		return nil, err
	}
	return &resp.Category, nil
}
