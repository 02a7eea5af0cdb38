package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

const testSecret = "handler-test-secret"

type memUsers struct {
	mu     sync.Mutex
	byID   map[int]types.User
	nextID int
}

func newMemUsers(seed ...types.User) *memUsers {
	m := &memUsers{byID: make(map[int]types.User), nextID: 100}
	for _, u := range seed {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) List(_ context.Context, filter types.UserFilter, offset, limit int) ([]types.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.User
	for _, u := range m.byID {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.byID[user.ID] = user
	return user, nil
}

var (
	testManager   = types.User{ID: 1, Email: "manager@uni.edu", FirstName: "Mara", LastName: "Lind", Role: types.RoleManager, Status: types.UserActive}
	testLibrarian = types.User{ID: 2, Email: "desk@uni.edu", FirstName: "Ines", LastName: "Park", Role: types.RoleLibrarian, Status: types.UserActive}
	testReader    = types.User{ID: 3, Email: "reader@uni.edu", FirstName: "Theo", LastName: "Braun", Role: types.RoleUser, Status: types.UserActive}
	testSuspended = types.User{ID: 4, Email: "gone@uni.edu", FirstName: "Ola", LastName: "Berg", Role: types.RoleUser, Status: types.UserSuspended}
)

func seededUsers() (*memUsers, *services.UserService) {
	repo := newMemUsers(testManager, testLibrarian, testReader, testSuspended)
	return repo, services.NewUserService(repo)
}

func tokenFor(t *testing.T, userID int) string {
	t.Helper()
	token, err := issueToken(userID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return token
}

func do(t *testing.T, h http.Handler, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
