package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/types"
)

type LoanHandler struct {
	loans *services.LoanService
}

// LoanRouter registers circulation routes.
func LoanRouter(r chi.Router, loans *services.LoanService, auth *Authenticator) {
	handler := &LoanHandler{loans: loans}

	r.Use(auth.RequireAuth)
	r.Post("/", handler.CreateLoan)
	r.Get("/me", handler.ListMyLoans)
	r.Get("/{loanID}", handler.GetLoan)
	r.Post("/{loanID}/return", handler.InitiateReturn)
	r.Post("/{loanID}/renewal", handler.RequestRenewal)
	r.Group(func(r chi.Router) {
		r.Use(requireStaff)
		r.Get("/", handler.ListLoans)
		r.Post("/{loanID}/confirm", handler.ConfirmReturn)
		r.Post("/{loanID}/renewal/approve", handler.ApproveRenewal)
		r.Post("/{loanID}/renewal/reject", handler.RejectRenewal)
	})
}

type CreateLoanRequest struct {
	BookID int `json:"bookId" validate:"required,gt=0"`
	UserID int `json:"userId" validate:"omitempty,gt=0"`
}

type LoanListResponse struct {
	Data []types.Loan   `json:"data"`
	Meta types.PageMeta `json:"meta"`
}

// ConfirmReturnResponse is the returned loan plus the fine it produced.
type ConfirmReturnResponse struct {
	types.Loan
	Fine *types.Fine `json:"fine,omitempty"`
}

type LoanMessageResponse struct {
	Message string     `json:"message"`
	Loan    types.Loan `json:"loan"`
}

func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	caller := actor(r)
	userID := req.UserID
	if userID == 0 {
		userID = caller.ID
	}
	loan, err := h.loans.Create(r.Context(), caller, req.BookID, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	userID, err := queryInt(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := types.LoanFilter{
		Status: types.LoanStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		UserID: userID,
	}
	h.list(w, r, filter, page, limit)
}

func (h *LoanHandler) ListMyLoans(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	filter := types.LoanFilter{
		Status: types.LoanStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		UserID: actor(r).ID,
	}
	h.list(w, r, filter, page, limit)
}

func (h *LoanHandler) list(w http.ResponseWriter, r *http.Request, filter types.LoanFilter, page, limit int) {
	loans, meta, err := h.loans.List(r.Context(), filter, page, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if loans == nil {
		loans = []types.Loan{}
	}
	writeJSON(w, http.StatusOK, LoanListResponse{Data: loans, Meta: meta})
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanID", "loan")
	if !ok {
		return
	}
	loan, err := h.loans.Get(r.Context(), actor(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) InitiateReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanID", "loan")
	if !ok {
		return
	}
	loan, err := h.loans.InitiateReturn(r.Context(), actor(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) ConfirmReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "loanID", "loan")
	if !ok {
		return
	}
	result, err := h.loans.ConfirmReturn(r.Context(), actor(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfirmReturnResponse{Loan: result.Loan, Fine: result.Fine})
}

func (h *LoanHandler) RequestRenewal(w http.ResponseWriter, r *http.Request) {
	h.renewal(w, r, h.loans.RequestRenewal, "renewal requested")
}

func (h *LoanHandler) ApproveRenewal(w http.ResponseWriter, r *http.Request) {
	h.renewal(w, r, h.loans.ApproveRenewal, "renewal approved")
}

func (h *LoanHandler) RejectRenewal(w http.ResponseWriter, r *http.Request) {
	h.renewal(w, r, h.loans.RejectRenewal, "renewal rejected")
}

type loanAction func(ctx context.Context, actor services.Actor, id int) (types.Loan, error)

func (h *LoanHandler) renewal(w http.ResponseWriter, r *http.Request, action loanAction, message string) {
	id, ok := pathID(w, r, "loanID", "loan")
	if !ok {
		return
	}
	loan, err := action(r.Context(), actor(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoanMessageResponse{Message: message, Loan: loan})
}

type FineHandler struct {
	fines *services.FineService
}

// FineRouter registers fine routes.
func FineRouter(r chi.Router, fines *services.FineService, auth *Authenticator) {
	handler := &FineHandler{fines: fines}

	r.Use(auth.RequireAuth)
	r.Get("/me", handler.ListMyFines)
	r.Group(func(r chi.Router) {
		r.Use(requireStaff)
		r.Get("/", handler.ListFines)
		r.Post("/manual", handler.CreateManualFine)
		r.Patch("/{fineID}", handler.AdjustFine)
		r.Post("/{fineID}/pay", handler.PayFine)
	})
}

type ManualFineRequest struct {
	UserID int             `json:"userId" validate:"required,gt=0"`
	BookID *int            `json:"bookId" validate:"omitempty,gt=0"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type AdjustFineRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *FineHandler) ListFines(w http.ResponseWriter, r *http.Request) {
	isPaid, err := queryBool(r, "isPaid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := queryInt(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fines, err := h.fines.List(r.Context(), types.FineFilter{IsPaid: isPaid, UserID: userID})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeFines(w, fines)
}

func (h *FineHandler) ListMyFines(w http.ResponseWriter, r *http.Request) {
	isPaid, err := queryBool(r, "isPaid")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fines, err := h.fines.ListMine(r.Context(), actor(r).ID, isPaid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeFines(w, fines)
}

func writeFines(w http.ResponseWriter, fines []types.Fine) {
	if fines == nil {
		fines = []types.Fine{}
	}
	writeJSON(w, http.StatusOK, fines)
}

func (h *FineHandler) CreateManualFine(w http.ResponseWriter, r *http.Request) {
	var req ManualFineRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	fine, err := h.fines.CreateManual(r.Context(), services.ManualFine{
		UserID: req.UserID,
		BookID: req.BookID,
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fine)
}

func (h *FineHandler) AdjustFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fineID", "fine")
	if !ok {
		return
	}
	var req AdjustFineRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	fine, err := h.fines.Adjust(r.Context(), id, req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

func (h *FineHandler) PayFine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "fineID", "fine")
	if !ok {
		return
	}
	fine, err := h.fines.Pay(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "fine paid", Data: fine})
}

type SettingsHandler struct {
	settings *services.SettingsService
}

// SettingsRouter registers the library settings singleton.
func SettingsRouter(r chi.Router, settings *services.SettingsService, auth *Authenticator) {
	handler := &SettingsHandler{settings: settings}

	r.Use(auth.RequireAuth)
	r.Get("/", handler.GetSettings)
	r.With(requireStaff).Patch("/", handler.UpdateSettings)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req types.SettingsUpdate
	if !decodeAndValidate(w, r, &req) {
		return
	}
	settings, err := h.settings.Update(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type DashboardHandler struct {
	dashboard *services.DashboardService
}

func DashboardRouter(r chi.Router, dashboard *services.DashboardService, auth *Authenticator) {
	handler := &DashboardHandler{dashboard: dashboard}

	r.Use(auth.RequireAuth, requireStaff)
	r.Get("/stats", handler.Stats)
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
