package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/sheet"
	"github.com/unilib/apiserver/types"
)

const (
	maxImportMemory = 8 << 20
	formFieldFile   = "file"
)

// UserHandler serves account administration.
type UserHandler struct {
	users    *services.UserService
	importer *services.ImportService
}

func NewUserHandler(users *services.UserService, importer *services.ImportService) *UserHandler {
	return &UserHandler{users: users, importer: importer}
}

// UserRouter registers user routes. Every route requires authentication.
func UserRouter(r chi.Router, users *services.UserService, importer *services.ImportService, auth *Authenticator) {
	handler := NewUserHandler(users, importer)

	r.Use(auth.RequireAuth)
	r.With(requireStaff).Get("/", handler.ListUsers)
	r.With(requireManager).Post("/import", handler.ImportUsers)
	r.With(requireManager).Post("/sync", handler.SyncUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.With(requireStaff).Get("/", handler.GetUser)
		r.With(requireManager).Patch("/", handler.UpdateUser)
	})
}

type UserListResponse struct {
	Data []types.User   `json:"data"`
	Meta types.PageMeta `json:"meta"`
}

type UpdateUserRequest struct {
	FirstName *string           `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string           `json:"lastName" validate:"omitempty,min=1,max=100"`
	Role      *types.Role       `json:"role" validate:"omitempty,oneof=USER LIBRARIAN MANAGER"`
	Status    *types.UserStatus `json:"status" validate:"omitempty,oneof=ACTIVE SUSPENDED"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := types.UserFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Role:   types.Role(strings.ToUpper(strings.TrimSpace(q.Get("role")))),
		Status: types.UserStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	users, meta, err := h.users.List(r.Context(), filter, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Data: users, Meta: meta})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Update(r.Context(), actor(r), id, services.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Status:    req.Status,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ImportUsers accepts a multipart .xlsx or .csv file in the "file" field.
func (h *UserHandler) ImportUsers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportMemory*2)
	if err := r.ParseMultipartForm(maxImportMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	records, err := sheet.Parse(header.Filename, file)
	if err != nil {
		if errors.Is(err, sheet.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "file must be .xlsx or .csv")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.importer.Import(r.Context(), records)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *UserHandler) SyncUsers(w http.ResponseWriter, r *http.Request) {
	result, err := h.importer.Sync(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
