package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/unilib/apiserver/types"
)

const postSelect = `
	SELECT p.id, p.channel_id, p.author_id, p.content, p.created_at, p.updated_at,
	       trim(u.first_name || ' ' || u.last_name) AS author_name,
	       c.name AS channel_name,
	       (SELECT COUNT(1) FROM post_comments pc WHERE pc.post_id = p.id) AS comment_count
	FROM posts p
	JOIN users u ON u.id = p.author_id
	JOIN channels c ON c.id = p.channel_id`

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	var post types.Post
	err := get(ctx, r.db, &post, postSelect+` WHERE p.id = $1`, id)
	return post, err
}

// ListByChannels pages posts of the given channels, newest first.
func (r *PostRepository) ListByChannels(ctx context.Context, channelIDs []int, offset, limit int) ([]types.Post, int, error) {
	offset, limit = normalizePage(offset, limit)
	ids := pq.Array(channelIDs)

	var total int
	if err := get(ctx, r.db, &total, `SELECT COUNT(1) FROM posts WHERE channel_id = ANY($1)`, ids); err != nil {
		return nil, 0, err
	}
	posts := make([]types.Post, 0, limit)
	err := selectAll(ctx, r.db, &posts, postSelect+`
		WHERE p.channel_id = ANY($1)
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $2 LIMIT $3`, ids, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now
	err := get(ctx, r.db, &post.ID, `
		INSERT INTO posts (channel_id, author_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, post.ChannelID, post.AuthorID, post.Content, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM posts WHERE id = $1`, id)
}

// ReactionRepository handles the single reaction each user holds per post.
type ReactionRepository struct {
	db *sqlx.DB
}

func NewReactionRepository(db *sqlx.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Get probes the (post, user) key and locks the row when it exists.
func (r *ReactionRepository) Get(ctx context.Context, postID, userID int) (types.PostReaction, error) {
	var reaction types.PostReaction
	err := get(ctx, r.db, &reaction, `
		SELECT id, post_id, user_id, emoji, created_at
		FROM post_reactions
		WHERE post_id = $1 AND user_id = $2
		FOR UPDATE`, postID, userID)
	return reaction, err
}

func (r *ReactionRepository) Create(ctx context.Context, reaction types.PostReaction) (types.PostReaction, error) {
	reaction.CreatedAt = time.Now()
	err := get(ctx, r.db, &reaction.ID, `
		INSERT INTO post_reactions (post_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, reaction.PostID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	if err != nil {
		return types.PostReaction{}, err
	}
	return reaction, nil
}

func (r *ReactionRepository) UpdateEmoji(ctx context.Context, id int, emoji string) error {
	return execOne(ctx, r.db, `UPDATE post_reactions SET emoji = $1 WHERE id = $2`, emoji, id)
}

func (r *ReactionRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM post_reactions WHERE id = $1`, id)
}

func (r *ReactionRepository) DeleteByPost(ctx context.Context, postID int) error {
	return exec(ctx, r.db, `DELETE FROM post_reactions WHERE post_id = $1`, postID)
}

// Summary groups the reactions of a post by emoji.
func (r *ReactionRepository) Summary(ctx context.Context, postID int) ([]types.ReactionCount, error) {
	counts := []types.ReactionCount{}
	err := selectAll(ctx, r.db, &counts, `
		SELECT emoji, COUNT(1) AS count
		FROM post_reactions
		WHERE post_id = $1
		GROUP BY emoji
		ORDER BY count DESC, emoji`, postID)
	return counts, err
}

// SummaryForPosts groups reactions for several posts and reports the
// viewer's own emoji per post.
func (r *ReactionRepository) SummaryForPosts(ctx context.Context, postIDs []int, viewerID int) (map[int][]types.ReactionCount, map[int]string, error) {
	summaries := make(map[int][]types.ReactionCount, len(postIDs))
	mine := make(map[int]string)
	if len(postIDs) == 0 {
		return summaries, mine, nil
	}

	var rows []struct {
		PostID int    `db:"post_id"`
		Emoji  string `db:"emoji"`
		Count  int    `db:"count"`
		Mine   bool   `db:"mine"`
	}
	err := selectAll(ctx, r.db, &rows, `
		SELECT post_id, emoji, COUNT(1) AS count, BOOL_OR(user_id = $2) AS mine
		FROM post_reactions
		WHERE post_id = ANY($1)
		GROUP BY post_id, emoji
		ORDER BY post_id, count DESC, emoji`, pq.Array(postIDs), viewerID)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		summaries[row.PostID] = append(summaries[row.PostID], types.ReactionCount{Emoji: row.Emoji, Count: row.Count})
		if row.Mine {
			mine[row.PostID] = row.Emoji
		}
	}
	return summaries, mine, nil
}

// CommentRepository handles comments and their replies.
type CommentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentSelect = `
	SELECT pc.id, pc.post_id, pc.author_id, pc.parent_id, pc.content, pc.created_at,
	       trim(u.first_name || ' ' || u.last_name) AS author_name
	FROM post_comments pc
	JOIN users u ON u.id = pc.author_id`

func (r *CommentRepository) Get(ctx context.Context, id int) (types.PostComment, error) {
	var comment types.PostComment
	err := get(ctx, r.db, &comment, commentSelect+` WHERE pc.id = $1`, id)
	return comment, err
}

// ListByPost returns every comment of the post oldest first, replies included.
func (r *CommentRepository) ListByPost(ctx context.Context, postID int) ([]types.PostComment, error) {
	comments := []types.PostComment{}
	err := selectAll(ctx, r.db, &comments, commentSelect+` WHERE pc.post_id = $1 ORDER BY pc.created_at, pc.id`, postID)
	return comments, err
}

func (r *CommentRepository) Create(ctx context.Context, comment types.PostComment) (types.PostComment, error) {
	comment.CreatedAt = time.Now()
	err := get(ctx, r.db, &comment.ID, `
		INSERT INTO post_comments (post_id, author_id, parent_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, comment.PostID, comment.AuthorID, comment.ParentID, comment.Content, comment.CreatedAt)
	if err != nil {
		return types.PostComment{}, err
	}
	return comment, nil
}

// ReplyIDs lists the direct replies of a comment in id order.
func (r *CommentRepository) ReplyIDs(ctx context.Context, parentID int) ([]int, error) {
	ids := []int{}
	err := selectAll(ctx, r.db, &ids, `SELECT id FROM post_comments WHERE parent_id = $1 ORDER BY id`, parentID)
	return ids, err
}

func (r *CommentRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM post_comments WHERE id = $1`, id)
}

// DeleteByPost removes replies before top-level comments so the parent
// reference never dangles.
func (r *CommentRepository) DeleteByPost(ctx context.Context, postID int) error {
	if err := exec(ctx, r.db, `DELETE FROM post_comments WHERE post_id = $1 AND parent_id IS NOT NULL`, postID); err != nil {
		return err
	}
	return exec(ctx, r.db, `DELETE FROM post_comments WHERE post_id = $1`, postID)
}
