package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/storage"
	"github.com/unilib/apiserver/types"
)

const formFieldCover = "cover"

type CategoryHandler struct {
	categories *services.CategoryService
}

// CategoryRouter registers category routes. Reads are public.
func CategoryRouter(r chi.Router, categories *services.CategoryService, auth *Authenticator) {
	handler := &CategoryHandler{categories: categories}

	r.Get("/", handler.ListCategories)
	r.Get("/{categoryID}", handler.GetCategory)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth, requireStaff)
		r.Post("/", handler.CreateCategory)
		r.Put("/{categoryID}", handler.UpdateCategory)
		r.Delete("/{categoryID}", handler.DeleteCategory)
	})
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID", "category")
	if !ok {
		return
	}
	category, err := h.categories.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	created, err := h.categories.Create(r.Context(), types.Category{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID", "category")
	if !ok {
		return
	}
	var req CategoryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	updated, err := h.categories.Update(r.Context(), types.Category{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID", "category")
	if !ok {
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type BookHandler struct {
	books *services.BookService
}

// BookRouter registers catalog routes. Browsing is public; changes are staff only.
func BookRouter(r chi.Router, books *services.BookService, auth *Authenticator) {
	handler := &BookHandler{books: books}

	r.Get("/", handler.ListBooks)
	r.Get("/{bookID}", handler.GetBook)
	r.Get("/{bookID}/cover", handler.GetCover)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth, requireStaff)
		r.Post("/", handler.CreateBook)
		r.Put("/{bookID}", handler.UpdateBook)
		r.Delete("/{bookID}", handler.DeleteBook)
		r.Post("/{bookID}/copies", handler.AddCopies)
		r.Patch("/{bookID}/copies/{copyID}", handler.UpdateCopy)
		r.Post("/{bookID}/cover", handler.UploadCover)
	})
}

type BookRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"required,max=255"`
	ISBN          string `json:"isbn" validate:"max=20"`
	Publisher     string `json:"publisher" validate:"max=255"`
	PublishedYear *int   `json:"publishedYear" validate:"omitempty,gte=0,max=9999"`
	Description   string `json:"description" validate:"max=5000"`
	CategoryID    *int   `json:"categoryId" validate:"omitempty,gt=0"`
}

func (req BookRequest) book() types.Book {
	return types.Book{
		Title:         strings.TrimSpace(req.Title),
		Author:        strings.TrimSpace(req.Author),
		ISBN:          strings.TrimSpace(req.ISBN),
		Publisher:     strings.TrimSpace(req.Publisher),
		PublishedYear: req.PublishedYear,
		Description:   strings.TrimSpace(req.Description),
		CategoryID:    req.CategoryID,
	}
}

type CreateBookRequest struct {
	BookRequest
	Copies int `json:"copies" validate:"gte=0,max=100"`
}

type AddCopiesRequest struct {
	Count int `json:"count" validate:"required,gt=0,max=100"`
}

type CopyStatusRequest struct {
	Status types.CopyStatus `json:"status" validate:"required,oneof=AVAILABLE LOST DAMAGED"`
}

type BookListResponse struct {
	Data []types.Book   `json:"data"`
	Meta types.PageMeta `json:"meta"`
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	categoryID, err := queryInt(r, "categoryId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := types.BookFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		CategoryID: categoryID,
		Status:     types.BookStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
	}

	books, meta, err := h.books.List(r.Context(), filter, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookListResponse{Data: books, Meta: meta})
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	detail, err := h.books.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	detail, err := h.books.Create(r.Context(), req.book(), req.Copies)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	var req BookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	book := req.book()
	book.ID = id
	updated, err := h.books.Update(r.Context(), book)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	if err := h.books.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookHandler) AddCopies(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	var req AddCopiesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	detail, err := h.books.AddCopies(r.Context(), id, req.Count)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *BookHandler) UpdateCopy(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	copyID, ok := pathID(w, r, "copyID", "copy")
	if !ok {
		return
	}
	var req CopyStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	updated, err := h.books.SetCopyStatus(r.Context(), bookID, copyID, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UploadCover accepts a multipart image in the "cover" field.
func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxCoverSize+(1<<20))
	if err := r.ParseMultipartForm(storage.MaxCoverSize); err != nil {
		writeError(w, http.StatusBadRequest, "cover image must be a multipart upload of at most 5 MB")
		return
	}
	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cover is required")
		return
	}
	defer file.Close()

	book, err := h.books.UploadCover(r.Context(), id, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	obj, err := h.books.Cover(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, obj.Body)
}

type FavoriteHandler struct {
	favorites *services.FavoriteService
}

// FavoriteRouter registers the caller's favorites.
func FavoriteRouter(r chi.Router, favorites *services.FavoriteService, auth *Authenticator) {
	handler := &FavoriteHandler{favorites: favorites}

	r.Use(auth.RequireAuth)
	r.Get("/", handler.ListFavorites)
	r.Post("/{bookID}", handler.AddFavorite)
	r.Delete("/{bookID}", handler.RemoveFavorite)
}

func (h *FavoriteHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.favorites.List(r.Context(), actor(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if favorites == nil {
		favorites = []types.FavoriteBook{}
	}
	writeJSON(w, http.StatusOK, favorites)
}

func (h *FavoriteHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	fav, err := h.favorites.Add(r.Context(), actor(r).ID, bookID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (h *FavoriteHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(w, r, "bookID", "book")
	if !ok {
		return
	}
	if err := h.favorites.Remove(r.Context(), actor(r).ID, bookID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
