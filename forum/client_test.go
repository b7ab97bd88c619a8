package forum

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/types"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c := NewClient(context.Background(), logger.NewNop(), &types.UpstreamConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Retries: 0,
	})
	t.Cleanup(c.Close)
	return c
}

func TestClient_SearchPostsNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/search", r.URL.Path)
		assert.Equal(t, "galaxy brain", r.URL.Query().Get("q"))
		assert.Equal(t, "Posts", r.URL.Query().Get("type_"))
		assert.Equal(t, "New", r.URL.Query().Get("sort"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts":[{
			"post":{"id":42,"name":"Galaxy brain take","url":"https://example.com","body":"line one\nline two","published":"2026-08-01T10:00:00Z"},
			"creator":{"name":"alice"},
			"community":{"name":"showerthoughts"},
			"counts":{"score":17,"comments":3}
		}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	posts, err := c.SearchPosts("galaxy brain", types.SearchOptions{Sort: "new"})
	require.NoError(t, err)
	require.Len(t, posts, 1)

	post := posts[0]
	assert.Equal(t, "42", post.ID)
	assert.Equal(t, "Galaxy brain take", post.Title)
	assert.Equal(t, "showerthoughts", post.Community)
	assert.Equal(t, "alice", post.Author)
	assert.Equal(t, 17, post.Score)
	assert.Equal(t, 3, post.Comments)
	assert.Equal(t, "line one", post.Excerpt)
}

func TestClient_GetCommentsDerivesParentAndDepth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/comment/list", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("post_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"comments":[
			{"comment":{"id":101,"content":"root","path":"0.101","published":"2026-08-01T10:00:00Z"},"creator":{"name":"alice"},"counts":{"score":5}},
			{"comment":{"id":205,"content":"reply","path":"0.101.205","published":"2026-08-01T11:00:00Z"},"creator":{"name":"bob"},"counts":{"score":2}}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	comments, err := c.GetComments("42", 100)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	assert.Equal(t, "101", comments[0].ID)
	assert.Equal(t, "", comments[0].ParentID)
	assert.Equal(t, 0, comments[0].Depth)

	assert.Equal(t, "205", comments[1].ID)
	assert.Equal(t, "101", comments[1].ParentID)
	assert.Equal(t, 1, comments[1].Depth)
}

func TestClient_UpstreamErrorSurfacesTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.SearchPosts("anything", types.SearchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), logger.NewNop(), &types.UpstreamConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
		Retries: 3,
	})
	t.Cleanup(c.Close)

	_, err := c.GetPost("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUpstreamBadStatus)
	assert.Equal(t, 1, calls)
}

func TestParseCommentPath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantParent string
		wantDepth  int
	}{
		{"empty path", "", "", 0},
		{"root comment", "0.101", "", 0},
		{"first level reply", "0.101.205", "101", 1},
		{"deep reply", "0.101.205.307.409", "307", 3},
		{"path without synthetic root", "101.205", "101", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, depth := parseCommentPath(tt.path)
			assert.Equal(t, tt.wantParent, parent)
			assert.Equal(t, tt.wantDepth, depth)
		})
	}
}

func TestUpstreamSort(t *testing.T) {
	assert.Equal(t, "Active", upstreamSort(""))
	assert.Equal(t, "Active", upstreamSort("hot"))
	assert.Equal(t, "New", upstreamSort("new"))
	assert.Equal(t, "New", upstreamSort("NEW"))
	assert.Equal(t, "TopDay", upstreamSort("top"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", excerpt("   "))
	assert.Equal(t, "short", excerpt("short"))
	assert.Equal(t, "first line", excerpt("first line\nsecond line"))

	long := strings.Repeat("a", 300)
	got := excerpt(long)
	assert.Len(t, []rune(got), excerptLimit+1)
}
