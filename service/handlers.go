package service

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/cache"
	"github.com/threadlens/threadlens/server"
	"github.com/threadlens/threadlens/threads"
	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

// Per-resource cache TTLs. Posts and communities churn slowly; search and
// trending results go stale fast.
const (
	searchTTL      = 60 * time.Second
	postTTL        = 2 * time.Minute
	commentsTTL    = 60 * time.Second
	communitiesTTL = 10 * time.Minute
	trendingTTL    = 5 * time.Minute
)

const defaultLimit = 25

func (s *Service) registerRoutes() error {
	router := s.server.Router()

	type routeDef struct {
		method  string
		pattern string
		handler fasthttp.RequestHandler
	}

	routes := []routeDef{
		{fasthttp.MethodGet, "/api/search", s.handleSearch},
		{fasthttp.MethodGet, "/api/posts/{id}", s.handlePost},
		{fasthttp.MethodGet, "/api/posts/{id}/comments", s.handleComments},
		{fasthttp.MethodGet, "/api/communities", s.handleCommunities},
		{fasthttp.MethodGet, "/api/trending", s.handleTrending},
		{fasthttp.MethodPost, "/api/posts/{id}/vote", s.handleVote},
		{fasthttp.MethodPut, "/api/posts/{id}/save", s.handleSave},
		{fasthttp.MethodDelete, "/api/posts/{id}/save", s.handleUnsave},
		{fasthttp.MethodGet, "/api/me/saved", s.handleSavedPosts},
		{fasthttp.MethodGet, "/api/me/votes", s.handleMyVotes},
		{fasthttp.MethodGet, "/healthz", s.handleHealth},
	}

	if s.dispatcher != nil {
		routes = append(routes,
			routeDef{fasthttp.MethodPost, "/api/webhooks", s.handleWebhookRegister},
			routeDef{fasthttp.MethodGet, "/api/webhooks", s.handleWebhookList},
			routeDef{fasthttp.MethodDelete, "/api/webhooks/{id}", s.handleWebhookDelete},
		)
	}

	for _, r := range routes {
		if err := router.Handle(r.method, r.pattern, r.handler); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		metricsPath := "/metrics"
		if cfg := s.configManager.GetConfig(); cfg.Metrics != nil && cfg.Metrics.Path != "" {
			metricsPath = cfg.Metrics.Path
		}
		if err := router.GET(metricsPath, s.metrics.Handler()); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) handleSearch(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()

	// Zero-copy views are safe here: the strings never outlive the handler.
	query := utils.BytesToString(args.Peek("q"))

	opts := types.SearchOptions{
		Community: utils.BytesToString(args.Peek("community")),
		Sort:      utils.BytesToString(args.Peek("sort")),
		Page:      args.GetUintOrZero("page"),
		Limit:     queryLimit(ctx),
	}

	key := cache.DeriveSearchKey(query, opts)

	var posts []types.Post
	if s.cache.GetJSON(key, &posts) {
		server.WriteJSON(ctx, fasthttp.StatusOK, posts)
		return
	}

	posts, err := s.forum.SearchPosts(query, opts)
	if err != nil {
		s.logger.Error("Search failed, degrading to empty results",
			zap.String("query", query), zap.Error(err))
		server.WriteJSON(ctx, fasthttp.StatusOK, []types.Post{})
		return
	}
	if posts == nil {
		posts = []types.Post{}
	}

	s.cache.Set(key, posts, searchTTL)
	server.WriteJSON(ctx, fasthttp.StatusOK, posts)
}

func (s *Service) handlePost(ctx *fasthttp.RequestCtx) {
	postID, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	key := "post:" + postID

	var post types.Post
	if s.cache.GetJSON(key, &post) {
		server.WriteJSON(ctx, fasthttp.StatusOK, post)
		return
	}

	fetched, err := s.forum.GetPost(postID)
	if err != nil {
		s.respondUpstreamError(ctx, "post", postID, err)
		return
	}

	s.cache.Set(key, fetched, postTTL)
	server.WriteJSON(ctx, fasthttp.StatusOK, fetched)
}

func (s *Service) handleComments(ctx *fasthttp.RequestCtx) {
	postID, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	limit := queryLimit(ctx)

	// The limit is part of the key: a shallow fetch must not serve a
	// later, larger request.
	key := "comments:" + postID + ":" + strconv.Itoa(limit)

	var tree []*types.CommentNode
	if s.cache.GetJSON(key, &tree) {
		server.WriteJSON(ctx, fasthttp.StatusOK, tree)
		return
	}

	comments, err := s.forum.GetComments(postID, limit)
	if err != nil {
		s.respondUpstreamError(ctx, "comments", postID, err)
		return
	}

	tree = threads.Build(comments)
	s.cache.Set(key, tree, commentsTTL)
	server.WriteJSON(ctx, fasthttp.StatusOK, tree)
}

func (s *Service) handleCommunities(ctx *fasthttp.RequestCtx) {
	const key = "communities:list"

	var communities []types.Community
	if s.cache.GetJSON(key, &communities) {
		server.WriteJSON(ctx, fasthttp.StatusOK, communities)
		return
	}

	communities, err := s.forum.ListCommunities()
	if err != nil {
		s.logger.Error("Community listing failed, degrading to empty results", zap.Error(err))
		server.WriteJSON(ctx, fasthttp.StatusOK, []types.Community{})
		return
	}
	if communities == nil {
		communities = []types.Community{}
	}

	s.cache.Set(key, communities, communitiesTTL)
	server.WriteJSON(ctx, fasthttp.StatusOK, communities)
}

func (s *Service) handleTrending(ctx *fasthttp.RequestCtx) {
	limit := queryLimit(ctx)
	key := "trending:" + strconv.Itoa(limit)

	var posts []types.Post
	if s.cache.GetJSON(key, &posts) {
		server.WriteJSON(ctx, fasthttp.StatusOK, posts)
		return
	}

	posts, err := s.forum.GetTrending(limit)
	if err != nil {
		s.logger.Error("Trending fetch failed, degrading to empty results", zap.Error(err))
		server.WriteJSON(ctx, fasthttp.StatusOK, []types.Post{})
		return
	}
	if posts == nil {
		posts = []types.Post{}
	}

	s.cache.Set(key, posts, trendingTTL)
	server.WriteJSON(ctx, fasthttp.StatusOK, posts)
}

type voteRequest struct {
	Direction types.VoteDirection `json:"direction"`
}

func (s *Service) handleVote(ctx *fasthttp.RequestCtx) {
	identity, ok := server.RequireIdentity(ctx)
	if !ok {
		return
	}

	postID, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	var req voteRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		server.WriteError(ctx, fasthttp.StatusBadRequest, "invalid request body")
		return
	}

	previous := s.ledger.GetVote(identity.ID, postID)

	if err := s.ledger.SetVote(identity.ID, postID, req.Direction); err != nil {
		if types.IsError(err, types.ErrVoteInvalid) {
			server.WriteError(ctx, fasthttp.StatusBadRequest, "direction must be up, down or empty")
			return
		}
		s.logger.Error("Vote update failed",
			zap.String("post_id", postID), zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "vote update failed")
		return
	}

	s.publish(types.EventPostVote, types.VoteEvent{
		UserID:   identity.ID,
		PostID:   postID,
		Vote:     req.Direction,
		Previous: previous,
	})

	server.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"post_id": postID,
		"vote":    req.Direction,
	})
}

func (s *Service) handleSave(ctx *fasthttp.RequestCtx) {
	identity, ok := server.RequireIdentity(ctx)
	if !ok {
		return
	}

	postID, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	post, err := s.lookupPost(postID)
	if err != nil {
		s.respondUpstreamError(ctx, "post", postID, err)
		return
	}

	saved := types.SavedPost{
		ID:        post.ID,
		Title:     post.Title,
		URL:       post.URL,
		Score:     post.Score,
		Community: post.Community,
		Author:    post.Author,
		Published: post.Published,
		Thumbnail: post.Thumbnail,
		Excerpt:   post.Excerpt,
		SavedAt:   nowRFC3339(),
	}

	if err := s.ledger.AddBookmark(identity.ID, saved); err != nil {
		s.logger.Error("Bookmark add failed",
			zap.String("post_id", postID), zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "bookmark update failed")
		return
	}

	s.publish(types.EventPostSaved, types.BookmarkEvent{
		UserID: identity.ID,
		PostID: postID,
		Saved:  true,
	})

	server.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"post_id": postID,
		"saved":   true,
	})
}

func (s *Service) handleUnsave(ctx *fasthttp.RequestCtx) {
	identity, ok := server.RequireIdentity(ctx)
	if !ok {
		return
	}

	postID, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	removed, err := s.ledger.RemoveBookmark(identity.ID, postID)
	if err != nil {
		s.logger.Error("Bookmark remove failed",
			zap.String("post_id", postID), zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "bookmark update failed")
		return
	}

	if removed {
		s.publish(types.EventPostUnsaved, types.BookmarkEvent{
			UserID: identity.ID,
			PostID: postID,
			Saved:  false,
		})
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"post_id": postID,
		"saved":   false,
	})
}

func (s *Service) handleSavedPosts(ctx *fasthttp.RequestCtx) {
	identity, ok := server.RequireIdentity(ctx)
	if !ok {
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, s.ledger.GetBookmarks(identity.ID))
}

func (s *Service) handleMyVotes(ctx *fasthttp.RequestCtx) {
	identity, ok := server.RequireIdentity(ctx)
	if !ok {
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, s.ledger.GetVotes(identity.ID))
}

func (s *Service) handleHealth(ctx *fasthttp.RequestCtx) {
	cfg := s.configManager.GetConfig()

	server.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"status":   "ok",
		"name":     cfg.Name,
		"version":  cfg.Version,
		"upstream": s.forum.BreakerState(),
	})
}

type webhookRequest struct {
	Event string `json:"event"`
	URL   string `json:"url"`
}

func (s *Service) handleWebhookRegister(ctx *fasthttp.RequestCtx) {
	if _, ok := server.RequireIdentity(ctx); !ok {
		return
	}

	var req webhookRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil {
		server.WriteError(ctx, fasthttp.StatusBadRequest, "invalid request body")
		return
	}

	webhook, err := s.dispatcher.Webhooks().Register(req.Event, req.URL)
	if err != nil {
		if types.IsError(err, types.ErrWebhookURLInvalid) {
			server.WriteError(ctx, fasthttp.StatusBadRequest, "webhook url invalid")
			return
		}
		s.logger.Error("Webhook registration failed", zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "webhook registration failed")
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusCreated, webhook)
}

func (s *Service) handleWebhookList(ctx *fasthttp.RequestCtx) {
	if _, ok := server.RequireIdentity(ctx); !ok {
		return
	}

	webhooks, err := s.dispatcher.Webhooks().List()
	if err != nil {
		s.logger.Error("Webhook listing failed", zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "webhook listing failed")
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, webhooks)
}

func (s *Service) handleWebhookDelete(ctx *fasthttp.RequestCtx) {
	if _, ok := server.RequireIdentity(ctx); !ok {
		return
	}

	id, ok := pathParam(ctx, "id")
	if !ok {
		return
	}

	if err := s.dispatcher.Webhooks().Delete(id); err != nil {
		if types.IsError(err, types.ErrWebhookNotFound) {
			server.WriteError(ctx, fasthttp.StatusNotFound, "webhook not found")
			return
		}
		s.logger.Error("Webhook deletion failed", zap.Error(err))
		server.WriteError(ctx, fasthttp.StatusInternalServerError, "webhook deletion failed")
		return
	}

	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

// lookupPost serves the save path: cached copy if fresh, upstream otherwise.
func (s *Service) lookupPost(postID string) (*types.Post, error) {
	key := "post:" + postID

	var post types.Post
	if s.cache.GetJSON(key, &post) {
		return &post, nil
	}

	fetched, err := s.forum.GetPost(postID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, fetched, postTTL)
	return fetched, nil
}

func (s *Service) respondUpstreamError(ctx *fasthttp.RequestCtx, resource, id string, err error) {
	if types.IsError(err, types.ErrUpstreamBadStatus) {
		server.WriteError(ctx, fasthttp.StatusNotFound, resource+" not found")
		return
	}

	s.logger.Error("Upstream fetch failed",
		zap.String("resource", resource), zap.String("id", id), zap.Error(err))
	server.WriteError(ctx, fasthttp.StatusBadGateway, "upstream unavailable")
}

func pathParam(ctx *fasthttp.RequestCtx, name string) (string, bool) {
	value, _ := ctx.UserValue(name).(string)
	if value == "" {
		server.WriteError(ctx, fasthttp.StatusBadRequest, "missing "+name)
		return "", false
	}
	return value, true
}

func queryLimit(ctx *fasthttp.RequestCtx) int {
	limit := ctx.QueryArgs().GetUintOrZero("limit")
	if limit <= 0 || limit > 100 {
		return defaultLimit
	}
	return limit
}
