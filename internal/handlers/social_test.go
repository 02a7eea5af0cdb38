package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/unilib/apiserver/internal/realtime"
)

func TestRealtimeConnectRequiresActiveUser(t *testing.T) {
	_, users := seededUsers()
	hub := realtime.NewHub()
	defer hub.Close()

	r := chi.NewRouter()
	r.Route("/ws", func(r chi.Router) {
		RealtimeRouter(r, hub, NewAuthenticator(users, testSecret))
	})

	rec := do(t, r, httptest.NewRequest(http.MethodGet, "/ws", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/ws?token="+tokenFor(t, testSuspended.ID), nil), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFeedPagination(t *testing.T) {
	tests := []struct {
		query string
		page  int
		limit int
		ok    bool
	}{
		{query: "", ok: true},
		{query: "page=2&limit=5", page: 2, limit: 5, ok: true},
		{query: "page=0", ok: false},
		{query: "limit=lots", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			page, limit, ok := feedPagination(rec, httptest.NewRequest(http.MethodGet, "/feed?"+tt.query, nil))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.page, page)
				assert.Equal(t, tt.limit, limit)
			} else {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}
