package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unilib/apiserver/internal/realtime"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/types"
)

type ChannelHandler struct {
	channels *services.ChannelService
	posts    *services.PostService
}

// ChannelRouter registers channels, follows and channel posts.
func ChannelRouter(r chi.Router, channels *services.ChannelService, posts *services.PostService, auth *Authenticator) {
	handler := &ChannelHandler{channels: channels, posts: posts}

	r.Use(auth.RequireAuth)
	r.Get("/", handler.ListChannels)
	r.Post("/", handler.CreateChannel)
	r.Get("/{channelID}", handler.GetChannel)
	r.Put("/{channelID}", handler.UpdateChannel)
	r.Delete("/{channelID}", handler.DeleteChannel)
	r.Post("/{channelID}/follow", handler.Follow)
	r.Delete("/{channelID}/follow", handler.Unfollow)
	r.Get("/{channelID}/posts", handler.ListPosts)
	r.Post("/{channelID}/posts", handler.CreatePost)
}

type ChannelRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type PostRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context(), actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if channels == nil {
		channels = []types.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	channel, err := h.channels.Get(r.Context(), id, actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	channel, err := h.channels.Create(r.Context(), actor(r), req.Name, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

func (h *ChannelHandler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	var req ChannelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	channel, err := h.channels.Update(r.Context(), actor(r), id, req.Name, req.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (h *ChannelHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	if err := h.channels.Delete(r.Context(), actor(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) Follow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	if err := h.channels.Follow(r.Context(), id, actor(r).ID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "channel followed"})
}

func (h *ChannelHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	if err := h.channels.Unfollow(r.Context(), id, actor(r).ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	page, limit, ok := feedPagination(w, r)
	if !ok {
		return
	}
	feed, err := h.posts.ListByChannel(r.Context(), id, actor(r).ID, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *ChannelHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "channelID", "channel")
	if !ok {
		return
	}
	var req PostRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	post, err := h.posts.Create(r.Context(), actor(r), id, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

type PostHandler struct {
	posts    *services.PostService
	comments *services.CommentService
}

// PostRouter registers single-post routes, reactions and comments.
func PostRouter(r chi.Router, posts *services.PostService, comments *services.CommentService, auth *Authenticator) {
	handler := &PostHandler{posts: posts, comments: comments}

	r.Use(auth.RequireAuth)
	r.Get("/{postID}", handler.GetPost)
	r.Delete("/{postID}", handler.DeletePost)
	r.Get("/{postID}/reactions", handler.ListReactions)
	r.Post("/{postID}/reactions", handler.ToggleReaction)
	r.Get("/{postID}/comments", handler.ListComments)
	r.Post("/{postID}/comments", handler.CreateComment)
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

type CommentRequest struct {
	Content  string `json:"content" validate:"required,max=5000"`
	ParentID *int   `json:"parentId" validate:"omitempty,gt=0"`
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	post, err := h.posts.Get(r.Context(), id, actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	if err := h.posts.Delete(r.Context(), actor(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PostHandler) ListReactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	reactions, err := h.posts.Reactions(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if reactions == nil {
		reactions = []types.ReactionCount{}
	}
	writeJSON(w, http.StatusOK, reactions)
}

func (h *PostHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	var req ReactionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.posts.ToggleReaction(r.Context(), actor(r), id, req.Emoji)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *PostHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	comments, err := h.comments.List(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if comments == nil {
		comments = []types.PostComment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *PostHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID", "post")
	if !ok {
		return
	}
	var req CommentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	comment, err := h.comments.Create(r.Context(), actor(r), id, req.ParentID, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

type CommentHandler struct {
	comments *services.CommentService
}

func CommentRouter(r chi.Router, comments *services.CommentService, auth *Authenticator) {
	handler := &CommentHandler{comments: comments}

	r.Use(auth.RequireAuth)
	r.Delete("/{commentID}", handler.DeleteComment)
}

func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "commentID", "comment")
	if !ok {
		return
	}
	if err := h.comments.Delete(r.Context(), actor(r), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type FeedHandler struct {
	posts *services.PostService
}

func FeedRouter(r chi.Router, posts *services.PostService, auth *Authenticator) {
	handler := &FeedHandler{posts: posts}

	r.Use(auth.RequireAuth)
	r.Get("/", handler.GetFeed)
}

func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := feedPagination(w, r)
	if !ok {
		return
	}
	feed, err := h.posts.Feed(r.Context(), actor(r).ID, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// feedPagination leaves absent values at zero so the post service applies
// its own feed defaults.
func feedPagination(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, err := queryInt(r, "page")
	if err == nil {
		limit, err = queryInt(r, "limit")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return page, limit, true
}

type RealtimeHandler struct {
	auth *Authenticator
	hub  *realtime.Hub
}

// RealtimeRouter upgrades /ws connections. Browsers cannot set headers on a
// websocket handshake, so the token is also accepted as a query parameter.
func RealtimeRouter(r chi.Router, hub *realtime.Hub, auth *Authenticator) {
	handler := &RealtimeHandler{auth: auth, hub: hub}
	r.Get("/", handler.Connect)
}

func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var err error
		if token, err = bearerToken(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}
	user, ok := h.auth.authenticate(w, r, token)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, user.ID)
}
