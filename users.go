package discourse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ForumUser is a forum account.
type ForumUser struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	TrustLevel int    `json:"trust_level"`
	Admin      bool   `json:"admin"`
	Moderator  bool   `json:"moderator"`
	Suspended  bool   `json:"suspended"`
}

// NewUser holds the fields accepted when creating a forum account.
type NewUser struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Active   bool   `json:"active"`
	Approved bool   `json:"approved"`
}

type userResponse struct {
	User ForumUser `json:"user"`
}

type createUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

// GetUser returns one forum account by username.
func (c *Client) GetUser(ctx context.Context, username string) (*ForumUser, error) {
	resp, err := FetchAs[userResponse](ctx, c, "/users/"+url.PathEscape(username)+".json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// GetUserByExternalID resolves a forum account from a linked external id
// (e.g. a NEAR account id registered through single sign-on).
func (c *Client) GetUserByExternalID(ctx context.Context, externalID string) (*ForumUser, error) {
	resp, err := FetchAs[userResponse](ctx, c, "/u/by-external/"+url.PathEscape(externalID)+".json", FetchOptions{Cacheable: true})
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// CreateUser registers a forum account and returns its id.
func (c *Client) CreateUser(ctx context.Context, user NewUser) (int, error) {
	resp, err := FetchAs[createUserResponse](ctx, c, "/users.json", FetchOptions{
		Method: http.MethodPost,
		Body:   user,
	})
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &ClientError{
			Type:    ErrorTypeClient,
			Message: fmt.Sprintf("user creation rejected: %s", resp.Message),
			Path:    "/users.json",
		}
	}
	return resp.UserID, nil
}
