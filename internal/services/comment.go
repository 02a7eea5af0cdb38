package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/realtime"
	"github.com/unilib/apiserver/types"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Get(ctx context.Context, id int) (types.PostComment, error)
	ListByPost(ctx context.Context, postID int) ([]types.PostComment, error)
	Create(ctx context.Context, comment types.PostComment) (types.PostComment, error)
	ReplyIDs(ctx context.Context, parentID int) ([]int, error)
	Delete(ctx context.Context, id int) error
	DeleteByPost(ctx context.Context, postID int) error
}

// CommentService handles comments and one level of replies.
type CommentService struct {
	tx            TxRunner
	comments      CommentRepository
	posts         PostRepository
	channels      ChannelRepository
	notifications *NotificationService
	hub           Broadcaster
	logger        zerolog.Logger
}

func NewCommentService(tx TxRunner, comments CommentRepository, posts PostRepository, channels ChannelRepository, notifications *NotificationService, hub Broadcaster) *CommentService {
	return &CommentService{
		tx:            tx,
		comments:      comments,
		posts:         posts,
		channels:      channels,
		notifications: notifications,
		hub:           hub,
		logger:        log.WithComponent("comments"),
	}
}

// List returns the top-level comments of a post with their replies nested.
func (s *CommentService) List(ctx context.Context, postID int) ([]types.PostComment, error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, missing(err, "post")
	}
	all, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return nestReplies(all), nil
}

func nestReplies(all []types.PostComment) []types.PostComment {
	replies := make(map[int][]types.PostComment)
	for _, c := range all {
		if c.ParentID != nil {
			replies[*c.ParentID] = append(replies[*c.ParentID], c)
		}
	}
	top := make([]types.PostComment, 0, len(all))
	for _, c := range all {
		if c.ParentID == nil {
			c.Replies = replies[c.ID]
			top = append(top, c)
		}
	}
	return top
}

// Create adds a comment, or a reply when parentID is set. Replies must point
// at a top-level comment of the same post.
func (s *CommentService) Create(ctx context.Context, actor Actor, postID int, parentID *int, content string) (types.PostComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.PostComment{}, BadRequest("content is required")
	}

	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return types.PostComment{}, missing(err, "post")
	}
	if parentID != nil {
		parent, err := s.comments.Get(ctx, *parentID)
		if err != nil {
			return types.PostComment{}, missing(err, "parent comment")
		}
		if parent.PostID != postID {
			return types.PostComment{}, BadRequest("parent comment belongs to another post")
		}
		if parent.ParentID != nil {
			return types.PostComment{}, BadRequest("replies can only be added to top-level comments")
		}
	}

	created, err := s.comments.Create(ctx, types.PostComment{
		PostID:   postID,
		AuthorID: actor.ID,
		ParentID: parentID,
		Content:  content,
	})
	if err != nil {
		return types.PostComment{}, err
	}
	if full, err := s.comments.Get(ctx, created.ID); err == nil {
		created = full
	}

	s.hub.ToRoom(realtime.PostRoom(postID), "new_comment", created)
	if post.AuthorID != actor.ID {
		message := fmt.Sprintf("%s commented on your post", created.AuthorName)
		if err := s.notifications.Notify(ctx, post.AuthorID, types.NotificationComment, message); err != nil {
			s.logger.Warn().Err(err).Int("post_id", postID).Msg("failed to notify post author")
		}
	}
	return created, nil
}

// Delete removes a comment and, for a top-level comment, its replies first.
// One comment_deleted event is emitted per removed comment, replies first.
func (s *CommentService) Delete(ctx context.Context, actor Actor, id int) error {
	var (
		comment types.PostComment
		removed []int
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		comment, err = s.comments.Get(ctx, id)
		if err != nil {
			return missing(err, "comment")
		}
		if comment.AuthorID != actor.ID {
			post, err := s.posts.Get(ctx, comment.PostID)
			if err != nil {
				return missing(err, "post")
			}
			channel, err := s.channels.Get(ctx, post.ChannelID, actor.ID)
			if err != nil {
				return missing(err, "channel")
			}
			if channel.OwnerID != actor.ID {
				return Forbidden("only the author or the channel owner can delete this comment")
			}
		}

		replyIDs, err := s.comments.ReplyIDs(ctx, id)
		if err != nil {
			return err
		}
		for _, replyID := range replyIDs {
			if err := s.comments.Delete(ctx, replyID); err != nil {
				return err
			}
			removed = append(removed, replyID)
		}
		if err := s.comments.Delete(ctx, id); err != nil {
			return err
		}
		removed = append(removed, id)
		return nil
	})
	if err != nil {
		return err
	}

	room := realtime.PostRoom(comment.PostID)
	for _, removedID := range removed {
		s.hub.ToRoom(room, "comment_deleted", map[string]int{"commentId": removedID, "postId": comment.PostID})
	}
	return nil
}
