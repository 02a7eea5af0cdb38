package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTx) InReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type sentEvent struct {
	Room    string
	Event   string
	Payload any
}

type recordingHub struct {
	mu     sync.Mutex
	events []sentEvent
}

func (h *recordingHub) ToRoom(room, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{Room: room, Event: event, Payload: payload})
}

func (h *recordingHub) named(event string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentEvent
	for _, e := range h.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeUsers struct {
	byID   map[int]types.User
	nextID int
	locks  int
}

func newFakeUsers(users ...types.User) *fakeUsers {
	f := &fakeUsers{byID: map[int]types.User{}, nextID: 100}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (types.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Lock(_ context.Context, id int) error {
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	f.locks++
	return nil
}

func (f *fakeUsers) List(_ context.Context, filter types.UserFilter, offset, limit int) ([]types.User, int, error) {
	var out []types.User
	for _, u := range f.byID {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset >= total {
		return []types.User{}, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

func (f *fakeUsers) ListIDsByRoles(_ context.Context, roles []types.Role) ([]int, error) {
	var ids []int
	for _, u := range f.byID {
		for _, r := range roles {
			if u.Role == r && u.Status == types.UserActive {
				ids = append(ids, u.ID)
			}
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	for _, u := range f.byID {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	f.nextID++
	user.ID = f.nextID
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) Update(_ context.Context, user types.User) (types.User, error) {
	if _, ok := f.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	f.byID[user.ID] = user
	return user, nil
}

type fakeBooks struct {
	byID   map[int]types.Book
	writes int
}

func newFakeBooks(books ...types.Book) *fakeBooks {
	f := &fakeBooks{byID: map[int]types.Book{}}
	for _, b := range books {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBooks) Get(_ context.Context, id int) (types.Book, error) {
	b, ok := f.byID[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeBooks) Lock(_ context.Context, id int) error {
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func (f *fakeBooks) UpdateInventory(_ context.Context, id, available, total int, status types.BookStatus) error {
	b := f.byID[id]
	b.AvailableCopies = available
	b.TotalCopies = total
	b.Status = status
	f.byID[id] = b
	f.writes++
	return nil
}

type fakeCopies struct {
	byID map[int]types.BookCopy
}

func newFakeCopies(copies ...types.BookCopy) *fakeCopies {
	f := &fakeCopies{byID: map[int]types.BookCopy{}}
	for _, c := range copies {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeCopies) ClaimAvailable(_ context.Context, bookID int) (types.BookCopy, error) {
	ids := make([]int, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := f.byID[id]
		if c.BookID == bookID && c.Status == types.CopyAvailable {
			return c, nil
		}
	}
	return types.BookCopy{}, store.ErrNotFound
}

func (f *fakeCopies) SetStatus(_ context.Context, id int, status types.CopyStatus) error {
	c, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	f.byID[id] = c
	return nil
}

func (f *fakeCopies) Inventory(_ context.Context, bookID int) (types.Inventory, error) {
	var inv types.Inventory
	for _, c := range f.byID {
		if c.BookID != bookID {
			continue
		}
		switch c.Status {
		case types.CopyAvailable:
			inv.Available++
		case types.CopyBorrowed:
			inv.Borrowed++
		case types.CopyLost:
			inv.Lost++
		case types.CopyDamaged:
			inv.Damaged++
		}
	}
	return inv, nil
}

type fakeReservations map[int]int

func (f fakeReservations) CountByStatus(_ context.Context, bookID int, _ types.ReservationStatus) (int, error) {
	return f[bookID], nil
}

type fakeLoans struct {
	byID   map[int]types.Loan
	nextID int
	titles map[int]string
}

func newFakeLoans(titles map[int]string, loans ...types.Loan) *fakeLoans {
	f := &fakeLoans{byID: map[int]types.Loan{}, titles: titles}
	for _, l := range loans {
		f.byID[l.ID] = l
		f.nextID = max(f.nextID, l.ID)
	}
	return f
}

func (f *fakeLoans) Get(_ context.Context, id int) (types.Loan, error) {
	l, ok := f.byID[id]
	if !ok {
		return types.Loan{}, store.ErrNotFound
	}
	l.BookTitle = f.titles[l.BookID]
	return l, nil
}

func (f *fakeLoans) GetForUpdate(ctx context.Context, id int) (types.Loan, error) {
	return f.Get(ctx, id)
}

func (f *fakeLoans) CountOpenByUser(_ context.Context, userID int) (int, error) {
	n := 0
	for _, l := range f.byID {
		if l.UserID == userID && l.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (f *fakeLoans) List(_ context.Context, filter types.LoanFilter, _, _ int) ([]types.Loan, int, error) {
	var out []types.Loan
	for _, l := range f.byID {
		if filter.UserID != 0 && l.UserID != filter.UserID {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (f *fakeLoans) Create(_ context.Context, loan types.Loan) (types.Loan, error) {
	f.nextID++
	loan.ID = f.nextID
	f.byID[loan.ID] = loan
	return loan, nil
}

func (f *fakeLoans) Update(_ context.Context, loan types.Loan) (types.Loan, error) {
	if _, ok := f.byID[loan.ID]; !ok {
		return types.Loan{}, store.ErrNotFound
	}
	f.byID[loan.ID] = loan
	return loan, nil
}

type fakeFines struct {
	byID   map[int]types.Fine
	nextID int
}

func newFakeFines(fines ...types.Fine) *fakeFines {
	f := &fakeFines{byID: map[int]types.Fine{}}
	for _, fine := range fines {
		f.byID[fine.ID] = fine
		f.nextID = max(f.nextID, fine.ID)
	}
	return f
}

func (f *fakeFines) Get(_ context.Context, id int) (types.Fine, error) {
	fine, ok := f.byID[id]
	if !ok {
		return types.Fine{}, store.ErrNotFound
	}
	return fine, nil
}

func (f *fakeFines) GetForUpdate(ctx context.Context, id int) (types.Fine, error) {
	return f.Get(ctx, id)
}

func (f *fakeFines) List(_ context.Context, filter types.FineFilter) ([]types.Fine, error) {
	var out []types.Fine
	for _, fine := range f.byID {
		if filter.UserID != 0 && fine.UserID != filter.UserID {
			continue
		}
		if filter.IsPaid != nil && fine.IsPaid != *filter.IsPaid {
			continue
		}
		out = append(out, fine)
	}
	return out, nil
}

func (f *fakeFines) Create(_ context.Context, fine types.Fine) (types.Fine, error) {
	f.nextID++
	fine.ID = f.nextID
	f.byID[fine.ID] = fine
	return fine, nil
}

func (f *fakeFines) Update(_ context.Context, fine types.Fine) (types.Fine, error) {
	f.byID[fine.ID] = fine
	return fine, nil
}

type fakeNotifications struct {
	items  []types.Notification
	nextID int
}

func (f *fakeNotifications) Create(_ context.Context, n types.Notification) (types.Notification, error) {
	f.nextID++
	n.ID = f.nextID
	f.items = append(f.items, n)
	return n, nil
}

func (f *fakeNotifications) ListByUser(_ context.Context, userID, offset, limit int) ([]types.Notification, int, error) {
	var out []types.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	total := len(out)
	if offset >= total {
		return []types.Notification{}, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, userID int) (int, error) {
	n := 0
	for _, item := range f.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id, userID int) error {
	for i, n := range f.items {
		if n.ID == id && n.UserID == userID {
			f.items[i].IsRead = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID int) error {
	for i, n := range f.items {
		if n.UserID == userID {
			f.items[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeNotifications) Delete(_ context.Context, id, userID int) error {
	for i, n := range f.items {
		if n.ID == id && n.UserID == userID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeNotifications) forUser(userID int) []types.Notification {
	var out []types.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fakeSettings struct {
	row   *types.LibrarySettings
	inits int
}

func (f *fakeSettings) Get(_ context.Context) (types.LibrarySettings, error) {
	if f.row == nil {
		return types.LibrarySettings{}, store.ErrNotFound
	}
	return *f.row, nil
}

func (f *fakeSettings) Init(_ context.Context, defaults types.LibrarySettings) (types.LibrarySettings, error) {
	f.inits++
	f.row = &defaults
	return defaults, nil
}

func (f *fakeSettings) Update(_ context.Context, settings types.LibrarySettings) (types.LibrarySettings, error) {
	f.row = &settings
	return settings, nil
}

type fakeCategories struct {
	byID      map[int]types.Category
	nextID    int
	listCalls int
}

func (f *fakeCategories) List(_ context.Context) ([]types.Category, error) {
	f.listCalls++
	out := make([]types.Category, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCategories) Get(_ context.Context, id int) (types.Category, error) {
	c, ok := f.byID[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCategories) Create(_ context.Context, category types.Category) (types.Category, error) {
	for _, c := range f.byID {
		if strings.EqualFold(c.Name, category.Name) {
			return types.Category{}, store.ErrConflict
		}
	}
	f.nextID++
	category.ID = f.nextID
	f.byID[category.ID] = category
	return category, nil
}

func (f *fakeCategories) Update(_ context.Context, category types.Category) (types.Category, error) {
	if _, ok := f.byID[category.ID]; !ok {
		return types.Category{}, store.ErrNotFound
	}
	f.byID[category.ID] = category
	return category, nil
}

func (f *fakeCategories) Delete(_ context.Context, id int) error {
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeFavorites struct {
	pairs map[[2]int]bool
}

func (f *fakeFavorites) Add(_ context.Context, userID, bookID int) (types.Favorite, error) {
	key := [2]int{userID, bookID}
	if f.pairs[key] {
		return types.Favorite{}, store.ErrConflict
	}
	f.pairs[key] = true
	return types.Favorite{UserID: userID, BookID: bookID}, nil
}

func (f *fakeFavorites) Remove(_ context.Context, userID, bookID int) error {
	key := [2]int{userID, bookID}
	if !f.pairs[key] {
		return store.ErrNotFound
	}
	delete(f.pairs, key)
	return nil
}

func (f *fakeFavorites) ListByUser(_ context.Context, _ int) ([]types.FavoriteBook, error) {
	return nil, nil
}

type fakeChannels struct {
	byID    map[int]types.Channel
	follows map[int][]int
	calls   int
}

func (f *fakeChannels) List(_ context.Context, _ int) ([]types.Channel, error) {
	out := make([]types.Channel, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeChannels) Get(_ context.Context, id, _ int) (types.Channel, error) {
	c, ok := f.byID[id]
	if !ok {
		return types.Channel{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeChannels) Create(_ context.Context, channel types.Channel) (types.Channel, error) {
	channel.ID = len(f.byID) + 1
	f.byID[channel.ID] = channel
	return channel, nil
}

func (f *fakeChannels) Update(_ context.Context, channel types.Channel) (types.Channel, error) {
	f.byID[channel.ID] = channel
	return channel, nil
}

func (f *fakeChannels) Delete(_ context.Context, id int) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeChannels) Follow(_ context.Context, channelID, userID int) error {
	for _, id := range f.follows[userID] {
		if id == channelID {
			return store.ErrConflict
		}
	}
	f.follows[userID] = append(f.follows[userID], channelID)
	return nil
}

func (f *fakeChannels) Unfollow(_ context.Context, channelID, userID int) error {
	ids := f.follows[userID]
	for i, id := range ids {
		if id == channelID {
			f.follows[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeChannels) FollowedChannelIDs(_ context.Context, userID int) ([]int, error) {
	f.calls++
	return f.follows[userID], nil
}

type fakePosts struct {
	byID      map[int]types.Post
	listCalls int
}

func (f *fakePosts) Get(_ context.Context, id int) (types.Post, error) {
	p, ok := f.byID[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakePosts) ListByChannels(_ context.Context, channelIDs []int, _, _ int) ([]types.Post, int, error) {
	f.listCalls++
	var out []types.Post
	for _, p := range f.byID {
		for _, id := range channelIDs {
			if p.ChannelID == id {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (f *fakePosts) Create(_ context.Context, post types.Post) (types.Post, error) {
	post.ID = len(f.byID) + 1
	f.byID[post.ID] = post
	return post, nil
}

func (f *fakePosts) Delete(_ context.Context, id int) error {
	delete(f.byID, id)
	return nil
}

type fakeReactions struct {
	byID   map[int]types.PostReaction
	nextID int
}

func (f *fakeReactions) Get(_ context.Context, postID, userID int) (types.PostReaction, error) {
	for _, r := range f.byID {
		if r.PostID == postID && r.UserID == userID {
			return r, nil
		}
	}
	return types.PostReaction{}, store.ErrNotFound
}

func (f *fakeReactions) Create(_ context.Context, reaction types.PostReaction) (types.PostReaction, error) {
	f.nextID++
	reaction.ID = f.nextID
	f.byID[reaction.ID] = reaction
	return reaction, nil
}

func (f *fakeReactions) UpdateEmoji(_ context.Context, id int, emoji string) error {
	r := f.byID[id]
	r.Emoji = emoji
	f.byID[id] = r
	return nil
}

func (f *fakeReactions) Delete(_ context.Context, id int) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeReactions) DeleteByPost(_ context.Context, postID int) error {
	for id, r := range f.byID {
		if r.PostID == postID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeReactions) Summary(_ context.Context, postID int) ([]types.ReactionCount, error) {
	counts := map[string]int{}
	for _, r := range f.byID {
		if r.PostID == postID {
			counts[r.Emoji]++
		}
	}
	out := make([]types.ReactionCount, 0, len(counts))
	for emoji, n := range counts {
		out = append(out, types.ReactionCount{Emoji: emoji, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })
	return out, nil
}

func (f *fakeReactions) SummaryForPosts(ctx context.Context, postIDs []int, viewerID int) (map[int][]types.ReactionCount, map[int]string, error) {
	summaries := map[int][]types.ReactionCount{}
	mine := map[int]string{}
	for _, id := range postIDs {
		summaries[id], _ = f.Summary(ctx, id)
		if r, err := f.Get(ctx, id, viewerID); err == nil {
			mine[id] = r.Emoji
		}
	}
	return summaries, mine, nil
}

type fakeComments struct {
	byID   map[int]types.PostComment
	nextID int
}

func (f *fakeComments) Get(_ context.Context, id int) (types.PostComment, error) {
	c, ok := f.byID[id]
	if !ok {
		return types.PostComment{}, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeComments) ListByPost(_ context.Context, postID int) ([]types.PostComment, error) {
	var out []types.PostComment
	for _, c := range f.byID {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeComments) Create(_ context.Context, comment types.PostComment) (types.PostComment, error) {
	f.nextID++
	comment.ID = f.nextID
	f.byID[comment.ID] = comment
	return comment, nil
}

func (f *fakeComments) ReplyIDs(_ context.Context, parentID int) ([]int, error) {
	var ids []int
	for _, c := range f.byID {
		if c.ParentID != nil && *c.ParentID == parentID {
			ids = append(ids, c.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (f *fakeComments) Delete(_ context.Context, id int) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeComments) DeleteByPost(_ context.Context, postID int) error {
	for id, c := range f.byID {
		if c.PostID == postID {
			delete(f.byID, id)
		}
	}
	return nil
}

type bookExtras struct {
	*fakeBooks
	nextID    int
	loanCount map[int][2]int
	deleted   []int
}

func newBookExtras(books *fakeBooks) *bookExtras {
	return &bookExtras{fakeBooks: books, nextID: 500, loanCount: map[int][2]int{}}
}

func (f *bookExtras) List(_ context.Context, _ types.BookFilter, _, _ int) ([]types.Book, int, error) {
	out := make([]types.Book, 0, len(f.byID))
	for _, b := range f.byID {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (f *bookExtras) Create(_ context.Context, book types.Book) (types.Book, error) {
	f.nextID++
	book.ID = f.nextID
	f.byID[book.ID] = book
	return book, nil
}

func (f *bookExtras) Update(_ context.Context, book types.Book) (types.Book, error) {
	current, ok := f.byID[book.ID]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	book.Status = current.Status
	book.AvailableCopies = current.AvailableCopies
	book.TotalCopies = current.TotalCopies
	f.byID[book.ID] = book
	return book, nil
}

func (f *bookExtras) SetCoverKey(_ context.Context, id int, key *string) error {
	b, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	b.CoverKey = key
	f.byID[id] = b
	return nil
}

func (f *bookExtras) Delete(_ context.Context, id int) error {
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *bookExtras) CountLoans(_ context.Context, id int) (int, int, error) {
	c := f.loanCount[id]
	return c[0], c[1], nil
}

type copyExtras struct {
	*fakeCopies
	nextID int
}

func (f *copyExtras) ListByBook(_ context.Context, bookID int) ([]types.BookCopy, error) {
	var out []types.BookCopy
	for _, c := range f.byID {
		if c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *copyExtras) Get(_ context.Context, id int) (types.BookCopy, error) {
	c, ok := f.byID[id]
	if !ok {
		return types.BookCopy{}, store.ErrNotFound
	}
	return c, nil
}

func (f *copyExtras) Create(_ context.Context, c types.BookCopy) (types.BookCopy, error) {
	f.nextID++
	c.ID = f.nextID
	f.byID[c.ID] = c
	return c, nil
}
