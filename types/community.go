package types

import "time"

// SuggestionStatus tracks a purchase suggestion through review.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "PENDING"
	SuggestionApproved SuggestionStatus = "APPROVED"
	SuggestionRejected SuggestionStatus = "REJECTED"
)

// BookSuggestion is a title a user asks the library to acquire.
type BookSuggestion struct {
	ID        int              `json:"id" db:"id"`
	UserID    int              `json:"userId" db:"user_id"`
	Title     string           `json:"title" db:"title"`
	Author    string           `json:"author" db:"author"`
	Note      string           `json:"note" db:"note"`
	Status    SuggestionStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time        `json:"updatedAt" db:"updated_at"`

	UserName string `json:"userName,omitempty" db:"user_name"`
}

// NotificationType classifies notifications for the client.
type NotificationType string

const (
	NotificationLoan       NotificationType = "LOAN"
	NotificationFine       NotificationType = "FINE"
	NotificationRenewal    NotificationType = "RENEWAL"
	NotificationSuggestion NotificationType = "SUGGESTION"
	NotificationComment    NotificationType = "COMMENT"
	NotificationSystem     NotificationType = "SYSTEM"
)

// Notification is a per-user message.
type Notification struct {
	ID        int              `json:"id" db:"id"`
	UserID    int              `json:"userId" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Message   string           `json:"message" db:"message"`
	IsRead    bool             `json:"isRead" db:"is_read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// Channel is a user-owned feed that others follow.
type Channel struct {
	ID          int       `json:"id" db:"id"`
	OwnerID     int       `json:"ownerId" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`

	FollowerCount int  `json:"followerCount" db:"follower_count"`
	IsFollowing   bool `json:"isFollowing" db:"is_following"`
}

// Post belongs to a channel and its author.
type Post struct {
	ID        int       `json:"id" db:"id"`
	ChannelID int       `json:"channelId" db:"channel_id"`
	AuthorID  int       `json:"authorId" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	AuthorName   string `json:"authorName,omitempty" db:"author_name"`
	ChannelName  string `json:"channelName,omitempty" db:"channel_name"`
	CommentCount int    `json:"commentCount" db:"comment_count"`
}

// ReactionCount is one emoji and how many users chose it.
type ReactionCount struct {
	Emoji string `json:"emoji" db:"emoji"`
	Count int    `json:"count" db:"count"`
}

// PostReaction is the single reaction a user holds on a post.
type PostReaction struct {
	ID        int       `json:"id" db:"id"`
	PostID    int       `json:"postId" db:"post_id"`
	UserID    int       `json:"userId" db:"user_id"`
	Emoji     string    `json:"emoji" db:"emoji"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PostView is a post with the reaction summary a viewer sees.
type PostView struct {
	Post
	Reactions  []ReactionCount `json:"reactions"`
	MyReaction string          `json:"myReaction,omitempty"`
}

// PostComment is a comment or, when ParentID is set, a reply.
type PostComment struct {
	ID        int       `json:"id" db:"id"`
	PostID    int       `json:"postId" db:"post_id"`
	AuthorID  int       `json:"authorId" db:"author_id"`
	ParentID  *int      `json:"parentId" db:"parent_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	AuthorName string        `json:"authorName,omitempty" db:"author_name"`
	Replies    []PostComment `json:"replies,omitempty" db:"-"`
}

// PageMeta describes a paginated response.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPageMeta computes the page count for total items.
func NewPageMeta(total, page, limit int) PageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// FeedPage is one page of the social feed.
type FeedPage struct {
	Data []PostView `json:"data"`
	Meta PageMeta   `json:"meta"`
}
