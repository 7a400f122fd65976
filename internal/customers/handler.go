package customers

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

// Handler exposes customer management over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers customer routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

type listResponse struct {
	Customers  []Customer        `json:"customers"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)

	req := ListCustomersRequest{
		Search: r.URL.Query().Get("q"),
		Limit:  pg.PerPage,
		Offset: pg.Offset(),
	}
	if scope.Scoped() {
		req.CustomerID = scope.CustomerID
	} else if !scope.Admin && scope.CustomerID == 0 {
		// Authenticated but unbound: nothing is visible.
		httpx.JSON(w, http.StatusOK, listResponse{Customers: []Customer{}, Pagination: shared.NewPagination(pg.Page, pg.PerPage, 0)})
		return
	}

	list, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Customers: list, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	if !h.mayAccess(r, id) {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())
	if !scope.Admin {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}

	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	customer, err := h.service.Create(r.Context(), scope.UserID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	if !h.mayAccess(r, id) {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	var req UpdateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	customer, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())
	if !scope.Admin {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mayAccess hides records outside a scoped caller's customer. Admins see all.
func (h *Handler) mayAccess(r *http.Request, customerID int64) bool {
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok {
		return false
	}
	if scope.Admin {
		return true
	}
	return scope.Scoped() && scope.CustomerID == customerID
}
