package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/unilib/apiserver/types"
)

// SuggestionRepository handles persistence for book suggestions.
type SuggestionRepository struct {
	db *sqlx.DB
}

func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

const suggestionSelect = `
	SELECT s.id, s.user_id, s.title, s.author, s.note, s.status, s.created_at, s.updated_at,
	       trim(u.first_name || ' ' || u.last_name) AS user_name
	FROM book_suggestions s
	JOIN users u ON u.id = s.user_id`

func (r *SuggestionRepository) Get(ctx context.Context, id int) (types.BookSuggestion, error) {
	var s types.BookSuggestion
	err := get(ctx, r.db, &s, suggestionSelect+` WHERE s.id = $1`, id)
	return s, err
}

// List returns suggestions filtered by user and status; zero values match all.
func (r *SuggestionRepository) List(ctx context.Context, userID int, status types.SuggestionStatus) ([]types.BookSuggestion, error) {
	suggestions := []types.BookSuggestion{}
	err := selectAll(ctx, r.db, &suggestions, suggestionSelect+`
		WHERE ($1 = 0 OR s.user_id = $1) AND ($2 = '' OR s.status = $2)
		ORDER BY s.created_at DESC, s.id DESC`, userID, string(status))
	return suggestions, err
}

func (r *SuggestionRepository) Create(ctx context.Context, s types.BookSuggestion) (types.BookSuggestion, error) {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	err := get(ctx, r.db, &s.ID, `
		INSERT INTO book_suggestions (user_id, title, author, note, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		s.UserID, s.Title, s.Author, s.Note, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return types.BookSuggestion{}, err
	}
	return s, nil
}

func (r *SuggestionRepository) UpdateStatus(ctx context.Context, id int, status types.SuggestionStatus) error {
	return execOne(ctx, r.db, `UPDATE book_suggestions SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
}

// NotificationRepository handles per-user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n types.Notification) (types.Notification, error) {
	n.CreatedAt = time.Now()
	err := get(ctx, r.db, &n.ID, `
		INSERT INTO notifications (user_id, type, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, n.UserID, n.Type, n.Message, n.IsRead, n.CreatedAt)
	if err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Notification, int, error) {
	offset, limit = normalizePage(offset, limit)

	var total int
	if err := get(ctx, r.db, &total, `SELECT COUNT(1) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, err
	}
	notifications := make([]types.Notification, 0, limit)
	err := selectAll(ctx, r.db, &notifications, `
		SELECT id, user_id, type, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int) (int, error) {
	var count int
	err := get(ctx, r.db, &count, `SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID)
	return count, err
}

// MarkRead flags one of the user's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int) error {
	return execOne(ctx, r.db, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int) error {
	return exec(ctx, r.db, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID int) error {
	return execOne(ctx, r.db, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
}

// ChannelRepository handles channels and follows.
type ChannelRepository struct {
	db *sqlx.DB
}

func NewChannelRepository(db *sqlx.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelSelect = `
	SELECT c.id, c.owner_id, c.name, c.description, c.created_at, c.updated_at,
	       (SELECT COUNT(1) FROM channel_follows f WHERE f.channel_id = c.id) AS follower_count,
	       EXISTS (SELECT 1 FROM channel_follows f WHERE f.channel_id = c.id AND f.user_id = $1) AS is_following
	FROM channels c`

// List returns all channels as seen by viewerID.
func (r *ChannelRepository) List(ctx context.Context, viewerID int) ([]types.Channel, error) {
	channels := []types.Channel{}
	err := selectAll(ctx, r.db, &channels, channelSelect+` ORDER BY c.name, c.id`, viewerID)
	return channels, err
}

func (r *ChannelRepository) Get(ctx context.Context, id, viewerID int) (types.Channel, error) {
	var channel types.Channel
	err := get(ctx, r.db, &channel, channelSelect+` WHERE c.id = $2`, viewerID, id)
	return channel, err
}

func (r *ChannelRepository) Create(ctx context.Context, channel types.Channel) (types.Channel, error) {
	now := time.Now()
	channel.CreatedAt = now
	channel.UpdatedAt = now
	err := get(ctx, r.db, &channel.ID, `
		INSERT INTO channels (owner_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, channel.OwnerID, channel.Name, channel.Description, channel.CreatedAt, channel.UpdatedAt)
	if err != nil {
		return types.Channel{}, err
	}
	return channel, nil
}

func (r *ChannelRepository) Update(ctx context.Context, channel types.Channel) (types.Channel, error) {
	channel.UpdatedAt = time.Now()
	err := execOne(ctx, r.db, `UPDATE channels SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		channel.Name, channel.Description, channel.UpdatedAt, channel.ID)
	if err != nil {
		return types.Channel{}, err
	}
	return channel, nil
}

func (r *ChannelRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM channels WHERE id = $1`, id)
}

// Follow records the follow and returns ErrConflict when it already exists.
func (r *ChannelRepository) Follow(ctx context.Context, channelID, userID int) error {
	return exec(ctx, r.db, `INSERT INTO channel_follows (channel_id, user_id, created_at) VALUES ($1, $2, $3)`,
		channelID, userID, time.Now())
}

func (r *ChannelRepository) Unfollow(ctx context.Context, channelID, userID int) error {
	return execOne(ctx, r.db, `DELETE FROM channel_follows WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
}

func (r *ChannelRepository) FollowedChannelIDs(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	err := selectAll(ctx, r.db, &ids, `SELECT channel_id FROM channel_follows WHERE user_id = $1 ORDER BY channel_id`, userID)
	return ids, err
}
