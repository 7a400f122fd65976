package quotes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ironstone-erp/ironstone-erp/internal/authz"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/httpx"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Handler exposes the quote lifecycle over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers quote routes on the provided router. Approve and
// reject are administrative actions and guarded by admin middleware.
func (h *Handler) MountRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/submit", h.handleSubmit)
	r.Post("/{id}/reset", h.handleReset)
	r.With(admin).Post("/{id}/approve", h.handleApprove)
	r.With(admin).Post("/{id}/reject", h.handleReject)
}

type listResponse struct {
	Quotes     []Quote           `json:"quotes"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)

	req := ListQuotesRequest{
		Status: r.URL.Query().Get("status"),
		Limit:  pg.PerPage,
		Offset: pg.Offset(),
	}
	if cid, _ := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); cid > 0 {
		req.CustomerID = cid
	}
	if scope.Scoped() {
		req.CustomerID = scope.CustomerID
	} else if !scope.Admin && scope.CustomerID == 0 {
		httpx.JSON(w, http.StatusOK, listResponse{Quotes: []Quote{}, Pagination: shared.NewPagination(pg.Page, pg.PerPage, 0)})
		return
	}

	list, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list quotes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Quote{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Quotes: list, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}
	if scope.Scoped() && req.CustomerID != scope.CustomerID {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}

	q, err := h.service.Create(r.Context(), scope.UserID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadVisible(w, r); !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var req UpdateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	q, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadVisible(w, r); !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadVisible(w, r); !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	q, err := h.service.Submit(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadVisible(w, r); !ok {
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	q, err := h.service.ResetToDraft(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Approve(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req RejectQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	q, err := h.service.Reject(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

// loadVisible fetches the quote and hides it from scoped callers bound to a
// different customer.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request) (*Quote, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok || (!scope.Admin && scope.CustomerID != q.CustomerID) {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	return q, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid quote id")
		return 0, false
	}
	return id, true
}
