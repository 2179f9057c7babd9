package discourse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeForum serves canned Discourse-shaped responses and records requests.
type fakeForum struct {
	t        *testing.T
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func (f *fakeForum) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			_ = gojson.NewDecoder(r.Body).Decode(&rec.Body)
		}
		f.requests = append(f.requests, rec)

		switch {
		case r.URL.Path == "/categories.json" && r.Method == http.MethodGet:
			w.Write([]byte(`{"category_list":{"categories":[{"id":1,"name":"Governance","slug":"governance","topic_count":12}]}}`))
		case r.URL.Path == "/categories.json" && r.Method == http.MethodPost:
			w.Write([]byte(`{"category":{"id":9,"name":"Proposals","slug":"proposals","color":"0088CC"}}`))
		case r.URL.Path == "/c/1/show.json":
			w.Write([]byte(`{"category":{"id":1,"name":"Governance","slug":"governance"}}`))
		case r.URL.Path == "/t/42.json" && r.Method == http.MethodGet:
			w.Write([]byte(`{"id":42,"title":"Budget proposal","slug":"budget-proposal","posts_count":3,"post_stream":{"posts":[{"id":100,"topic_id":42,"username":"alice"}]}}`))
		case r.URL.Path == "/t/42.json" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/latest.json":
			w.Write([]byte(`{"topic_list":{"topics":[{"id":42,"title":"Budget proposal"},{"id":43,"title":"Treasury report"}]}}`))
		case r.URL.Path == "/posts.json" && r.Method == http.MethodPost:
			w.Write([]byte(`{"id":101,"topic_id":42,"post_number":2,"username":"alice"}`))
		case r.URL.Path == "/posts/101.json" && r.Method == http.MethodGet:
			w.Write([]byte(`{"id":101,"topic_id":42,"raw":"original"}`))
		case r.URL.Path == "/posts/101.json" && r.Method == http.MethodPut:
			w.Write([]byte(`{"post":{"id":101,"topic_id":42,"raw":"edited"}}`))
		case r.URL.Path == "/posts/101.json" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/t/42/status.json":
			w.Write([]byte(`{"success":"OK"}`))
		case r.URL.Path == "/users/alice.json":
			w.Write([]byte(`{"user":{"id":7,"username":"alice","trust_level":2,"admin":false}}`))
		case r.URL.Path == "/u/by-external/alice.near.json":
			w.Write([]byte(`{"user":{"id":7,"username":"alice"}}`))
		case r.URL.Path == "/users.json" && r.Method == http.MethodPost:
			w.Write([]byte(`{"success":true,"message":"created","user_id":8}`))
		case r.URL.Path == "/search.json":
			w.Write([]byte(`{"posts":[{"id":100,"topic_id":42}],"topics":[{"id":42,"title":"Budget proposal"}]}`))
		case r.URL.Path == "/tags.json":
			w.Write([]byte(`{"tags":[{"id":"treasury","text":"treasury","count":5}]}`))
		case r.URL.Path == "/tag/treasury.json":
			w.Write([]byte(`{"topic_list":{"topics":[{"id":42,"title":"Budget proposal"}]}}`))
		case r.URL.Path == "/tag_groups.json" && r.Method == http.MethodPost:
			w.Write([]byte(`{"tag_group":{"id":3,"name":"finance","tag_names":["treasury","budget"]}}`))
		case r.URL.Path == "/tag_groups/3.json" && r.Method == http.MethodPut:
			w.Write([]byte(`{"tag_group":{"id":3,"name":"finance","tag_names":["treasury"]}}`))
		case r.URL.Path == "/uploads.json" && r.Method == http.MethodPost:
			require.Contains(f.t, r.Header.Get("Content-Type"), "multipart/form-data")
			w.Write([]byte(`{"id":55,"original_filename":"report.pdf","url":"/uploads/report.pdf","filesize":1024}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func newForumClient(t *testing.T) (*Client, *fakeForum) {
	t.Helper()
	forum := &fakeForum{t: t}
	server := httptest.NewServer(forum.handler())
	t.Cleanup(server.Close)

	client, _ := newTestClient(server.URL, WithAPIKey("key", "system"))
	t.Cleanup(client.Close)
	return client, forum
}

func TestCategories(t *testing.T) {
	client, _ := newForumClient(t)
	ctx := context.Background()

	categories, err := client.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Governance", categories[0].Name)
	assert.Equal(t, 12, categories[0].TopicCount)

	category, err := client.GetCategory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "governance", category.Slug)

	created, err := client.CreateCategory(ctx, NewCategory{Name: "Proposals", Color: "0088CC"})
	require.NoError(t, err)
	assert.Equal(t, 9, created.ID)
}

func TestTopics(t *testing.T) {
	client, forum := newForumClient(t)
	ctx := context.Background()

	topic, err := client.GetTopic(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Budget proposal", topic.Title)
	require.Len(t, topic.PostStream.Posts, 1)
	assert.Equal(t, "alice", topic.PostStream.Posts[0].Username)

	latest, err := client.ListLatestTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, latest, 2)

	post, err := client.CreateTopic(ctx, NewTopic{Title: "New proposal", Raw: "body", Category: 1}, "alice")
	require.NoError(t, err)
	assert.Equal(t, 101, post.ID)

	require.NoError(t, client.UpdateTopicStatus(ctx, 42, TopicClosed, true))
	last := forum.requests[len(forum.requests)-1]
	assert.Equal(t, http.MethodPut, last.Method)
	assert.Equal(t, "closed", last.Body["status"])
	assert.Equal(t, "true", last.Body["enabled"])

	require.NoError(t, client.DeleteTopic(ctx, 42))
}

func TestPosts(t *testing.T) {
	client, forum := newForumClient(t)
	ctx := context.Background()

	post, err := client.GetPost(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "original", post.Raw)

	created, err := client.CreatePost(ctx, NewPost{TopicID: 42, Raw: "a reply", ReplyTo: 1}, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, created.PostNumber)

	edited, err := client.EditPost(ctx, 101, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Raw)
	last := forum.requests[len(forum.requests)-1]
	assert.Equal(t, map[string]any{"raw": "edited"}, last.Body["post"])

	require.NoError(t, client.DeletePost(ctx, 101))
}

func TestUsers(t *testing.T) {
	client, _ := newForumClient(t)
	ctx := context.Background()

	user, err := client.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, 2, user.TrustLevel)

	external, err := client.GetUserByExternalID(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, "alice", external.Username)

	id, err := client.CreateUser(ctx, NewUser{Username: "bob", Email: "bob@example.org", Password: "secret-enough", Active: true})
	require.NoError(t, err)
	assert.Equal(t, 8, id)
}

func TestCreateUserRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"username taken"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	defer client.Close()

	_, err := client.CreateUser(context.Background(), NewUser{Username: "bob"})
	require.Error(t, err)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeClient, clientErr.Type)
	assert.Contains(t, clientErr.Message, "username taken")
}

func TestSearch(t *testing.T) {
	client, forum := newForumClient(t)

	result, err := client.Search(context.Background(), "budget report")
	require.NoError(t, err)
	assert.Len(t, result.Posts, 1)
	assert.Len(t, result.Topics, 1)

	last := forum.requests[len(forum.requests)-1]
	assert.Equal(t, "q=budget+report", last.Query)
}

func TestTags(t *testing.T) {
	client, _ := newForumClient(t)
	ctx := context.Background()

	tags, err := client.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 5, tags[0].Count)

	topics, err := client.ListTagTopics(ctx, "treasury")
	require.NoError(t, err)
	assert.Len(t, topics, 1)

	group, err := client.CreateTagGroup(ctx, "finance", []string{"treasury", "budget"})
	require.NoError(t, err)
	assert.Equal(t, 3, group.ID)

	updated, err := client.UpdateTagGroup(ctx, 3, []string{"treasury"})
	require.NoError(t, err)
	assert.Equal(t, []string{"treasury"}, updated.TagNames)
}

func TestUploadFile(t *testing.T) {
	client, _ := newForumClient(t)

	upload, err := client.UploadFile(context.Background(), "report.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, 55, upload.ID)
	assert.Equal(t, "report.pdf", upload.OriginalFilename)
}
