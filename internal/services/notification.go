package services

import (
	"context"

	"github.com/unilib/apiserver/internal/realtime"
	"github.com/unilib/apiserver/types"
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n types.Notification) (types.Notification, error)
	ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Notification, int, error)
	CountUnread(ctx context.Context, userID int) (int, error)
	MarkRead(ctx context.Context, id, userID int) error
	MarkAllRead(ctx context.Context, userID int) error
	Delete(ctx context.Context, id, userID int) error
}

// StaffDirectory finds the accounts that receive desk notifications.
type StaffDirectory interface {
	ListIDsByRoles(ctx context.Context, roles []types.Role) ([]int, error)
}

// NotificationService stores notifications and pushes them to their owners.
// Create and CreateForStaff only write; callers running a transaction pass
// the results to Deliver once it has committed.
type NotificationService struct {
	repo  NotificationRepository
	staff StaffDirectory
	hub   Broadcaster
}

func NewNotificationService(repo NotificationRepository, staff StaffDirectory, hub Broadcaster) *NotificationService {
	return &NotificationService{repo: repo, staff: staff, hub: hub}
}

func (s *NotificationService) Create(ctx context.Context, userID int, kind types.NotificationType, message string) (types.Notification, error) {
	return s.repo.Create(ctx, types.Notification{UserID: userID, Type: kind, Message: message})
}

// CreateForStaff writes one notification per active librarian and manager.
func (s *NotificationService) CreateForStaff(ctx context.Context, kind types.NotificationType, message string) ([]types.Notification, error) {
	ids, err := s.staff.ListIDsByRoles(ctx, types.StaffRoles)
	if err != nil {
		return nil, err
	}
	created := make([]types.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.Create(ctx, id, kind, message)
		if err != nil {
			return nil, err
		}
		created = append(created, n)
	}
	return created, nil
}

// Deliver pushes new_notification to each owner's room.
func (s *NotificationService) Deliver(notifications ...types.Notification) {
	for _, n := range notifications {
		s.hub.ToRoom(realtime.UserRoom(n.UserID), "new_notification", n)
	}
}

// Notify creates and delivers a notification outside any transaction.
func (s *NotificationService) Notify(ctx context.Context, userID int, kind types.NotificationType, message string) error {
	n, err := s.Create(ctx, userID, kind, message)
	if err != nil {
		return err
	}
	s.Deliver(n)
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID, page, limit int) ([]types.Notification, types.PageMeta, error) {
	limit = clampLimit(limit, 20, 100)
	items, total, err := s.repo.ListByUser(ctx, userID, pageOffset(page, limit), limit)
	if err != nil {
		return nil, types.PageMeta{}, err
	}
	return items, types.NewPageMeta(total, max(page, 1), limit), nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID int) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return missing(err, "notification")
	}
	s.refetch(userID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return err
	}
	s.refetch(userID)
	return nil
}

func (s *NotificationService) Delete(ctx context.Context, id, userID int) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return missing(err, "notification")
	}
	s.refetch(userID)
	return nil
}

func (s *NotificationService) refetch(userID int) {
	s.hub.ToRoom(realtime.UserRoom(userID), "refetch_notifications", map[string]int{"userId": userID})
}
