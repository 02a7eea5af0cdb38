package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/unilib/apiserver/types"
)

// SuggestionRepository defines persistence operations for book suggestions.
type SuggestionRepository interface {
	Get(ctx context.Context, id int) (types.BookSuggestion, error)
	List(ctx context.Context, userID int, status types.SuggestionStatus) ([]types.BookSuggestion, error)
	Create(ctx context.Context, s types.BookSuggestion) (types.BookSuggestion, error)
	UpdateStatus(ctx context.Context, id int, status types.SuggestionStatus) error
}

type SuggestionService struct {
	tx            TxRunner
	repo          SuggestionRepository
	notifications *NotificationService
}

func NewSuggestionService(tx TxRunner, repo SuggestionRepository, notifications *NotificationService) *SuggestionService {
	return &SuggestionService{tx: tx, repo: repo, notifications: notifications}
}

// Create files a suggestion and tells the desk about it.
func (s *SuggestionService) Create(ctx context.Context, actor Actor, suggestion types.BookSuggestion) (types.BookSuggestion, error) {
	suggestion.UserID = actor.ID
	suggestion.Title = strings.TrimSpace(suggestion.Title)
	suggestion.Status = types.SuggestionPending
	if suggestion.Title == "" {
		return types.BookSuggestion{}, BadRequest("title is required")
	}

	var (
		created types.BookSuggestion
		notes   []types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.Create(ctx, suggestion)
		if err != nil {
			return err
		}
		notes, err = s.notifications.CreateForStaff(ctx, types.NotificationSuggestion,
			fmt.Sprintf("New book suggestion: %q", created.Title))
		return err
	})
	if err != nil {
		return types.BookSuggestion{}, err
	}
	s.notifications.Deliver(notes...)
	return created, nil
}

func (s *SuggestionService) ListMine(ctx context.Context, userID int) ([]types.BookSuggestion, error) {
	return s.repo.List(ctx, userID, "")
}

func (s *SuggestionService) List(ctx context.Context, status types.SuggestionStatus) ([]types.BookSuggestion, error) {
	return s.repo.List(ctx, 0, status)
}

// SetStatus records the review decision on a pending suggestion.
func (s *SuggestionService) SetStatus(ctx context.Context, id int, status types.SuggestionStatus) (types.BookSuggestion, error) {
	if status != types.SuggestionApproved && status != types.SuggestionRejected {
		return types.BookSuggestion{}, BadRequest("status must be APPROVED or REJECTED")
	}

	var (
		suggestion types.BookSuggestion
		note       types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		suggestion, err = s.repo.Get(ctx, id)
		if err != nil {
			return missing(err, "suggestion")
		}
		if suggestion.Status != types.SuggestionPending {
			return BadRequest("suggestion has already been reviewed")
		}
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		suggestion.Status = status

		note, err = s.notifications.Create(ctx, suggestion.UserID, types.NotificationSuggestion,
			fmt.Sprintf("Your suggestion %q was %s", suggestion.Title, strings.ToLower(string(status))))
		return err
	})
	if err != nil {
		return types.BookSuggestion{}, err
	}
	s.notifications.Deliver(note)
	return suggestion, nil
}
