package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ironstone-erp/ironstone-erp/internal/authz"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/httpx"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Handler exposes orders over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers order routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/", h.handleList)
	r.Post("/convert", h.handleConvert)
	r.Get("/{id}", h.handleGet)
	r.With(admin).Post("/{id}/delivery-status", h.handleDeliveryStatus)
	r.Post("/{id}/notes", h.handleAddNote)
}

type listResponse struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)

	req := ListOrdersRequest{
		DeliveryStatus: r.URL.Query().Get("delivery_status"),
		PaymentStatus:  r.URL.Query().Get("payment_status"),
		Limit:          pg.PerPage,
		Offset:         pg.Offset(),
	}
	if cid, _ := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); cid > 0 {
		req.CustomerID = cid
	}
	if scope.Scoped() {
		req.CustomerID = scope.CustomerID
	} else if !scope.Admin && scope.CustomerID == 0 {
		httpx.JSON(w, http.StatusOK, listResponse{Orders: []Order{}, Pagination: shared.NewPagination(pg.Page, pg.PerPage, 0)})
		return
	}

	list, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Orders: list, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	var req ConvertQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	o, err := h.service.Convert(r.Context(), scope.UserID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObserveConversion()
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	scope, _ := authz.ScopeFromContext(r.Context())

	var req UpdateDeliveryStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	updated, err := h.service.UpdateDeliveryStatus(r.Context(), o.ID, scope.UserID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	scope, _ := authz.ScopeFromContext(r.Context())

	var req AddNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	updated, err := h.service.AddNote(r.Context(), o.ID, scope.UserID, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request) (*Order, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return nil, false
	}
	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok || (!scope.Admin && scope.CustomerID != o.CustomerID) {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	return o, true
}
