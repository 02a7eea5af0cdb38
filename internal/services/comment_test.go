package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/types"
)

func TestCommentNotifiesPostAuthor(t *testing.T) {
	ctx := context.Background()
	f := newCommunityFixture()

	_, err := f.comSvc.Create(ctx, Actor{ID: 1}, 1, nil, "my own post")
	require.NoError(t, err)
	assert.Empty(t, f.notes.items)

	comment, err := f.comSvc.Create(ctx, Actor{ID: 2}, 1, nil, "  Nice!  ")
	require.NoError(t, err)
	assert.Equal(t, "Nice!", comment.Content)

	notes := f.notes.forUser(1)
	require.Len(t, notes, 1)
	assert.Equal(t, types.NotificationComment, notes[0].Type)
	assert.Len(t, f.hub.named("new_comment"), 2)
}

func TestRepliesAreOneLevelDeep(t *testing.T) {
	ctx := context.Background()
	f := newCommunityFixture()
	f.posts.byID[2] = types.Post{ID: 2, ChannelID: 1, AuthorID: 1}

	top, err := f.comSvc.Create(ctx, Actor{ID: 2}, 1, nil, "top")
	require.NoError(t, err)
	reply, err := f.comSvc.Create(ctx, Actor{ID: 3}, 1, &top.ID, "reply")
	require.NoError(t, err)

	_, err = f.comSvc.Create(ctx, Actor{ID: 2}, 1, &reply.ID, "nested")
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	_, err = f.comSvc.Create(ctx, Actor{ID: 2}, 2, &top.ID, "wrong post")
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	_, err = f.comSvc.Create(ctx, Actor{ID: 2}, 1, ptr(99), "missing parent")
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	_, err = f.comSvc.Create(ctx, Actor{ID: 2}, 1, nil, "   ")
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	list, err := f.comSvc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Replies, 1)
	assert.Equal(t, reply.ID, list[0].Replies[0].ID)
}

func TestDeleteCommentEmitsRepliesFirst(t *testing.T) {
	ctx := context.Background()
	f := newCommunityFixture()

	top, err := f.comSvc.Create(ctx, Actor{ID: 2}, 1, nil, "top")
	require.NoError(t, err)
	r1, err := f.comSvc.Create(ctx, Actor{ID: 3}, 1, &top.ID, "first reply")
	require.NoError(t, err)
	r2, err := f.comSvc.Create(ctx, Actor{ID: 4}, 1, &top.ID, "second reply")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, StatusOf(f.comSvc.Delete(ctx, Actor{ID: 3}, top.ID)))

	// The channel owner may moderate comments they did not write.
	require.NoError(t, f.comSvc.Delete(ctx, Actor{ID: 1}, top.ID))
	assert.Empty(t, f.comments.byID)

	events := f.hub.named("comment_deleted")
	require.Len(t, events, 3)
	var order []int
	for _, e := range events {
		assert.Equal(t, "post:1", e.Room)
		order = append(order, e.Payload.(map[string]int)["commentId"])
	}
	assert.Equal(t, []int{r1.ID, r2.ID, top.ID}, order)
}
