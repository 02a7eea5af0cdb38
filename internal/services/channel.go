package services

import (
	"context"
	"errors"
	"strings"

	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

// ChannelRepository defines persistence operations for channels and follows.
type ChannelRepository interface {
	List(ctx context.Context, viewerID int) ([]types.Channel, error)
	Get(ctx context.Context, id, viewerID int) (types.Channel, error)
	Create(ctx context.Context, channel types.Channel) (types.Channel, error)
	Update(ctx context.Context, channel types.Channel) (types.Channel, error)
	Delete(ctx context.Context, id int) error
	Follow(ctx context.Context, channelID, userID int) error
	Unfollow(ctx context.Context, channelID, userID int) error
	FollowedChannelIDs(ctx context.Context, userID int) ([]int, error)
}

type ChannelService struct {
	repo ChannelRepository
}

func NewChannelService(repo ChannelRepository) *ChannelService {
	return &ChannelService{repo: repo}
}

func (s *ChannelService) List(ctx context.Context, viewerID int) ([]types.Channel, error) {
	return s.repo.List(ctx, viewerID)
}

func (s *ChannelService) Get(ctx context.Context, id, viewerID int) (types.Channel, error) {
	channel, err := s.repo.Get(ctx, id, viewerID)
	return channel, missing(err, "channel")
}

// Create makes the caller the owner of a new channel.
func (s *ChannelService) Create(ctx context.Context, actor Actor, name, description string) (types.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Channel{}, BadRequest("name is required")
	}
	return s.repo.Create(ctx, types.Channel{OwnerID: actor.ID, Name: name, Description: strings.TrimSpace(description)})
}

func (s *ChannelService) Update(ctx context.Context, actor Actor, id int, name, description string) (types.Channel, error) {
	channel, err := s.owned(ctx, actor, id)
	if err != nil {
		return types.Channel{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		channel.Name = name
	}
	channel.Description = strings.TrimSpace(description)
	updated, err := s.repo.Update(ctx, channel)
	return updated, missing(err, "channel")
}

func (s *ChannelService) Delete(ctx context.Context, actor Actor, id int) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return missing(s.repo.Delete(ctx, id), "channel")
}

func (s *ChannelService) Follow(ctx context.Context, channelID, userID int) error {
	if _, err := s.Get(ctx, channelID, userID); err != nil {
		return err
	}
	err := s.repo.Follow(ctx, channelID, userID)
	if errors.Is(err, store.ErrConflict) {
		return Conflict("you already follow this channel")
	}
	return err
}

func (s *ChannelService) Unfollow(ctx context.Context, channelID, userID int) error {
	if err := s.repo.Unfollow(ctx, channelID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("you do not follow this channel")
		}
		return err
	}
	return nil
}

// owned loads the channel and checks that actor may manage it.
func (s *ChannelService) owned(ctx context.Context, actor Actor, id int) (types.Channel, error) {
	channel, err := s.Get(ctx, id, actor.ID)
	if err != nil {
		return types.Channel{}, err
	}
	if channel.OwnerID != actor.ID && actor.Role != types.RoleManager {
		return types.Channel{}, Forbidden("only the channel owner can change this channel")
	}
	return channel, nil
}
