package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/unilib/apiserver/internal/realtime"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Get(ctx context.Context, id int) (types.Post, error)
	ListByChannels(ctx context.Context, channelIDs []int, offset, limit int) ([]types.Post, int, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
}

// ReactionRepository defines persistence operations for post reactions.
type ReactionRepository interface {
	Get(ctx context.Context, postID, userID int) (types.PostReaction, error)
	Create(ctx context.Context, reaction types.PostReaction) (types.PostReaction, error)
	UpdateEmoji(ctx context.Context, id int, emoji string) error
	Delete(ctx context.Context, id int) error
	DeleteByPost(ctx context.Context, postID int) error
	Summary(ctx context.Context, postID int) ([]types.ReactionCount, error)
	SummaryForPosts(ctx context.Context, postIDs []int, viewerID int) (map[int][]types.ReactionCount, map[int]string, error)
}

type postComments interface {
	DeleteByPost(ctx context.Context, postID int) error
}

const maxEmojiLength = 8

// ReactionState is the reaction summary of a post after a toggle.
type ReactionState struct {
	PostID     int                   `json:"postId"`
	Reactions  []types.ReactionCount `json:"reactions"`
	MyReaction string                `json:"myReaction,omitempty"`
}

// PostService publishes posts, builds the feed and toggles reactions.
type PostService struct {
	tx        TxRunner
	posts     PostRepository
	channels  ChannelRepository
	reactions ReactionRepository
	comments  postComments
	hub       Broadcaster
}

func NewPostService(tx TxRunner, posts PostRepository, channels ChannelRepository, reactions ReactionRepository, comments postComments, hub Broadcaster) *PostService {
	return &PostService{tx: tx, posts: posts, channels: channels, reactions: reactions, comments: comments, hub: hub}
}

// Feed pages posts from the channels userID follows, newest first.
func (s *PostService) Feed(ctx context.Context, userID, page, limit int) (types.FeedPage, error) {
	limit = clampLimit(limit, 10, 50)
	page = max(page, 1)

	channelIDs, err := s.channels.FollowedChannelIDs(ctx, userID)
	if err != nil {
		return types.FeedPage{}, err
	}
	if len(channelIDs) == 0 {
		return types.FeedPage{Data: []types.PostView{}, Meta: types.NewPageMeta(0, page, limit)}, nil
	}
	return s.page(ctx, channelIDs, userID, page, limit)
}

func (s *PostService) ListByChannel(ctx context.Context, channelID, viewerID, page, limit int) (types.FeedPage, error) {
	limit = clampLimit(limit, 10, 50)
	page = max(page, 1)
	if _, err := s.channels.Get(ctx, channelID, viewerID); err != nil {
		return types.FeedPage{}, missing(err, "channel")
	}
	return s.page(ctx, []int{channelID}, viewerID, page, limit)
}

func (s *PostService) Get(ctx context.Context, id, viewerID int) (types.PostView, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return types.PostView{}, missing(err, "post")
	}
	views, err := s.views(ctx, []types.Post{post}, viewerID)
	if err != nil {
		return types.PostView{}, err
	}
	return views[0], nil
}

// Create publishes a post in a channel the actor owns.
func (s *PostService) Create(ctx context.Context, actor Actor, channelID int, content string) (types.PostView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.PostView{}, BadRequest("content is required")
	}
	channel, err := s.channels.Get(ctx, channelID, actor.ID)
	if err != nil {
		return types.PostView{}, missing(err, "channel")
	}
	if channel.OwnerID != actor.ID {
		return types.PostView{}, Forbidden("only the channel owner can post in this channel")
	}

	created, err := s.posts.Create(ctx, types.Post{ChannelID: channelID, AuthorID: actor.ID, Content: content})
	if err != nil {
		return types.PostView{}, err
	}
	view, err := s.Get(ctx, created.ID, actor.ID)
	if err != nil {
		return types.PostView{}, err
	}
	s.hub.ToRoom(realtime.ChannelRoom(channelID), "new_post", view)
	return view, nil
}

// Delete removes a post with its comments and reactions. Allowed for the
// author and the channel owner.
func (s *PostService) Delete(ctx context.Context, actor Actor, id int) error {
	var post types.Post
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		post, err = s.posts.Get(ctx, id)
		if err != nil {
			return missing(err, "post")
		}
		if post.AuthorID != actor.ID {
			channel, err := s.channels.Get(ctx, post.ChannelID, actor.ID)
			if err != nil {
				return missing(err, "channel")
			}
			if channel.OwnerID != actor.ID {
				return Forbidden("only the author or the channel owner can delete this post")
			}
		}
		if err := s.comments.DeleteByPost(ctx, id); err != nil {
			return err
		}
		if err := s.reactions.DeleteByPost(ctx, id); err != nil {
			return err
		}
		return s.posts.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	payload := map[string]int{"postId": post.ID, "channelId": post.ChannelID}
	s.hub.ToRoom(realtime.ChannelRoom(post.ChannelID), "post_deleted", payload)
	s.hub.ToRoom(realtime.PostRoom(post.ID), "post_deleted", payload)
	return nil
}

// ToggleReaction creates, replaces or removes the actor's reaction so that
// each user holds at most one reaction per post.
func (s *PostService) ToggleReaction(ctx context.Context, actor Actor, postID int, emoji string) (ReactionState, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return ReactionState{}, BadRequest("emoji must be between 1 and %d characters", maxEmojiLength)
	}

	state := ReactionState{PostID: postID}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.posts.Get(ctx, postID); err != nil {
			return missing(err, "post")
		}

		existing, err := s.reactions.Get(ctx, postID, actor.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if _, err := s.reactions.Create(ctx, types.PostReaction{PostID: postID, UserID: actor.ID, Emoji: emoji}); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return Conflict("reaction changed concurrently, try again")
				}
				return err
			}
			state.MyReaction = emoji
		case err != nil:
			return err
		case existing.Emoji == emoji:
			if err := s.reactions.Delete(ctx, existing.ID); err != nil {
				return err
			}
		default:
			if err := s.reactions.UpdateEmoji(ctx, existing.ID, emoji); err != nil {
				return err
			}
			state.MyReaction = emoji
		}

		state.Reactions, err = s.reactions.Summary(ctx, postID)
		return err
	})
	if err != nil {
		return ReactionState{}, err
	}

	s.hub.ToRoom(realtime.PostRoom(postID), "reactions_updated", map[string]any{
		"postId":    postID,
		"reactions": state.Reactions,
	})
	return state, nil
}

func (s *PostService) Reactions(ctx context.Context, postID int) ([]types.ReactionCount, error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, missing(err, "post")
	}
	return s.reactions.Summary(ctx, postID)
}

func (s *PostService) page(ctx context.Context, channelIDs []int, viewerID, page, limit int) (types.FeedPage, error) {
	posts, total, err := s.posts.ListByChannels(ctx, channelIDs, pageOffset(page, limit), limit)
	if err != nil {
		return types.FeedPage{}, err
	}
	views, err := s.views(ctx, posts, viewerID)
	if err != nil {
		return types.FeedPage{}, err
	}
	return types.FeedPage{Data: views, Meta: types.NewPageMeta(total, page, limit)}, nil
}

func (s *PostService) views(ctx context.Context, posts []types.Post, viewerID int) ([]types.PostView, error) {
	ids := make([]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	summaries, mine, err := s.reactions.SummaryForPosts(ctx, ids, viewerID)
	if err != nil {
		return nil, err
	}

	views := make([]types.PostView, len(posts))
	for i, p := range posts {
		reactions := summaries[p.ID]
		if reactions == nil {
			reactions = []types.ReactionCount{}
		}
		views[i] = types.PostView{Post: p, Reactions: reactions, MyReaction: mine[p.ID]}
	}
	return views, nil
}
