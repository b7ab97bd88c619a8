package forum

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

const defaultCommentDepth = 8

// Client talks to a Lemmy-compatible upstream and normalizes its shapes
// into the facade's post, comment, and community types. Requests retry with
// linear backoff and run through the circuit breaker; callers treat any
// returned error as "degrade to empty", never as fatal.
type Client struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	client  *fasthttp.Client
	config  *types.UpstreamConfig
	breaker *CircuitBreaker
	state   atomic.Value
}

func NewClient(ctx context.Context, logger types.Logger, config *types.UpstreamConfig) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		ctx:    clientCtx,
		cancel: cancel,
		logger: logger,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		config:  config,
		breaker: NewCircuitBreaker(config.CircuitBreaker, logger),
	}

	c.state.Store(StateRunning)
	return c
}

func (c *Client) SearchPosts(query string, opts types.SearchOptions) ([]types.Post, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type_", "Posts")
	params.Set("sort", upstreamSort(opts.Sort))
	if opts.Community != "" {
		params.Set("community_name", opts.Community)
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var payload struct {
		Posts []postView `json:"posts"`
	}
	if err := c.getJSON("/api/v3/search", params, &payload); err != nil {
		return nil, err
	}

	return normalizePosts(payload.Posts), nil
}

func (c *Client) GetPost(id string) (*types.Post, error) {
	params := url.Values{}
	params.Set("id", id)

	var payload struct {
		PostView postView `json:"post_view"`
	}
	if err := c.getJSON("/api/v3/post", params, &payload); err != nil {
		return nil, err
	}

	post := payload.PostView.normalize()
	return &post, nil
}

func (c *Client) GetComments(postID string, limit int) ([]types.Comment, error) {
	depth := c.config.CommentDepth
	if depth <= 0 {
		depth = defaultCommentDepth
	}

	params := url.Values{}
	params.Set("post_id", postID)
	params.Set("max_depth", strconv.Itoa(depth))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var payload struct {
		Comments []commentView `json:"comments"`
	}
	if err := c.getJSON("/api/v3/comment/list", params, &payload); err != nil {
		return nil, err
	}

	comments := make([]types.Comment, 0, len(payload.Comments))
	for _, view := range payload.Comments {
		comments = append(comments, view.normalize())
	}
	return comments, nil
}

func (c *Client) ListCommunities() ([]types.Community, error) {
	params := url.Values{}
	params.Set("sort", "TopAll")
	params.Set("limit", "50")

	var payload struct {
		Communities []communityView `json:"communities"`
	}
	if err := c.getJSON("/api/v3/community/list", params, &payload); err != nil {
		return nil, err
	}

	communities := make([]types.Community, 0, len(payload.Communities))
	for _, view := range payload.Communities {
		communities = append(communities, view.normalize())
	}
	return communities, nil
}

func (c *Client) GetTrending(limit int) ([]types.Post, error) {
	params := url.Values{}
	params.Set("sort", "Active")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var payload struct {
		Posts []postView `json:"posts"`
	}
	if err := c.getJSON("/api/v3/post/list", params, &payload); err != nil {
		return nil, err
	}

	return normalizePosts(payload.Posts), nil
}

func (c *Client) BreakerState() string {
	return c.breaker.StateString()
}

func (c *Client) Close() {
	if !c.state.CompareAndSwap(StateRunning, StateStopping) {
		return
	}

	c.cancel()
	c.state.Store(StateStopped)
	c.logger.Debug("Upstream client closed")
}

func (c *Client) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *Client) getJSON(path string, params url.Values, target interface{}) error {
	body, err := c.execute(path, params)
	if err != nil {
		return err
	}

	if err := utils.Unmarshal(body, target); err != nil {
		return types.WrapError(err, types.ErrUpstreamBadPayload.Error())
	}

	return nil
}

func (c *Client) execute(path string, params url.Values) ([]byte, error) {
	if !c.IsRunning() {
		return nil, types.ErrUpstreamUnavailable
	}

	uri := c.config.BaseURL + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	var lastErr error

	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if !c.breaker.CanExecute() {
			return nil, types.ErrCircuitBreakerOpen
		}

		err := c.client.DoTimeout(req, resp, c.client.ReadTimeout)
		statusCode := resp.StatusCode()

		if isSuccessfulResponse(statusCode, err) {
			c.breaker.RecordSuccess()

			body := make([]byte, len(resp.Body()))
			copy(body, resp.Body())
			return body, nil
		}

		if isBreakerFailure(statusCode, err) {
			c.breaker.RecordFailure()
		}

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrUpstreamBadStatus, "HTTP %d", statusCode)
			if !isRetryableStatus(statusCode) {
				return nil, lastErr
			}
		}

		if attempt < c.config.Retries {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond

			select {
			case <-time.After(backoff):
				c.logger.Debug("Retrying upstream request",
					zap.String("path", path),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-c.ctx.Done():
				return nil, types.ErrUpstreamUnavailable
			}
		}
	}

	return nil, types.Errorf(types.ErrUpstreamUnavailable,
		"all %d attempts failed: %v", c.config.Retries+1, lastErr)
}

// upstreamSort maps the facade's sort names onto the upstream's enum.
func upstreamSort(sort string) string {
	switch strings.ToLower(sort) {
	case "new":
		return "New"
	case "top":
		return "TopDay"
	default:
		return "Active"
	}
}

type postView struct {
	Post struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		URL          string `json:"url"`
		Body         string `json:"body"`
		ThumbnailURL string `json:"thumbnail_url"`
		Published    string `json:"published"`
	} `json:"post"`
	Creator struct {
		Name string `json:"name"`
	} `json:"creator"`
	Community struct {
		Name string `json:"name"`
	} `json:"community"`
	Counts struct {
		Score    int `json:"score"`
		Comments int `json:"comments"`
	} `json:"counts"`
}

func (v postView) normalize() types.Post {
	return types.Post{
		ID:        strconv.FormatInt(v.Post.ID, 10),
		Title:     v.Post.Name,
		URL:       v.Post.URL,
		Body:      v.Post.Body,
		Score:     v.Counts.Score,
		Community: v.Community.Name,
		Author:    v.Creator.Name,
		Published: v.Post.Published,
		Thumbnail: v.Post.ThumbnailURL,
		Excerpt:   excerpt(v.Post.Body),
		Comments:  v.Counts.Comments,
	}
}

func normalizePosts(views []postView) []types.Post {
	posts := make([]types.Post, 0, len(views))
	for _, view := range views {
		posts = append(posts, view.normalize())
	}
	return posts
}

type commentView struct {
	Comment struct {
		ID        int64  `json:"id"`
		Content   string `json:"content"`
		Path      string `json:"path"`
		Published string `json:"published"`
	} `json:"comment"`
	Creator struct {
		Name string `json:"name"`
	} `json:"creator"`
	Counts struct {
		Score int `json:"score"`
	} `json:"counts"`
}

func (v commentView) normalize() types.Comment {
	parentID, depth := parseCommentPath(v.Comment.Path)

	return types.Comment{
		ID:        strconv.FormatInt(v.Comment.ID, 10),
		ParentID:  parentID,
		Path:      v.Comment.Path,
		Depth:     depth,
		Content:   v.Comment.Content,
		Score:     v.Counts.Score,
		Author:    v.Creator.Name,
		Published: v.Comment.Published,
	}
}

// parseCommentPath derives parent and depth from a path like "0.101.205",
// where "0" is the synthetic root, interior segments are ancestor ids, and
// the last segment is the comment's own id.
func parseCommentPath(path string) (parentID string, depth int) {
	if path == "" {
		return "", 0
	}

	segments := strings.Split(path, ".")
	if len(segments) > 0 && segments[0] == "0" {
		segments = segments[1:]
	}

	if len(segments) <= 1 {
		return "", 0
	}

	return segments[len(segments)-2], len(segments) - 1
}

type communityView struct {
	Community struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"community"`
	Counts struct {
		Subscribers int `json:"subscribers"`
	} `json:"counts"`
}

func (v communityView) normalize() types.Community {
	return types.Community{
		ID:          strconv.FormatInt(v.Community.ID, 10),
		Name:        v.Community.Name,
		Title:       v.Community.Title,
		Description: v.Community.Description,
		Icon:        v.Community.Icon,
		Subscribers: v.Counts.Subscribers,
	}
}

const excerptLimit = 200

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[:idx]
	}

	runes := []rune(body)
	if len(runes) > excerptLimit {
		return fmt.Sprintf("%s…", string(runes[:excerptLimit]))
	}
	return body
}
