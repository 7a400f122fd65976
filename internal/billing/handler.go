package billing

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

// Handler exposes invoices, payments and the ledger over HTTP.
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

// MountRoutes registers billing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/invoices", h.handleListInvoices)
	r.Get("/invoices/{id}", h.handleGetInvoice)
	r.Get("/invoices/{id}/payments", h.handleInvoicePayments)
	r.With(admin).Post("/invoices", h.handleCreateInvoice)
	r.With(admin).Post("/payments", h.handleRecordPayment)
	r.Get("/customers/{id}/ledger", h.handleLedger)
	r.Get("/customers/{id}/balance", h.handleBalance)
}

type invoiceListResponse struct {
	Invoices   []Invoice         `json:"invoices"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	scope, _ := authz.ScopeFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)

	req := ListInvoicesRequest{
		PaymentStatus: r.URL.Query().Get("payment_status"),
		Limit:         pg.PerPage,
		Offset:        pg.Offset(),
	}
	if cid, _ := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); cid > 0 {
		req.CustomerID = cid
	}
	if scope.Scoped() {
		req.CustomerID = scope.CustomerID
	} else if !scope.Admin && scope.CustomerID == 0 {
		httpx.JSON(w, http.StatusOK, invoiceListResponse{Invoices: []Invoice{}, Pagination: shared.NewPagination(pg.Page, pg.PerPage, 0)})
		return
	}

	list, total, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoiceListResponse{Invoices: list, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadVisibleInvoice(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleInvoicePayments(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadVisibleInvoice(w, r)
	if !ok {
		return
	}
	payments, err := h.service.PaymentsByInvoice(r.Context(), inv.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	inv, err := h.service.CreateInvoiceFromOrder(r.Context(), req.OrderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields := shared.ValidateStruct(h.validator, req); fields != nil {
		httpx.RespondError(w, fields)
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.metrics.ObservePayment()
	httpx.JSON(w, http.StatusCreated, payment)
}

type ledgerResponse struct {
	Entries []LedgerEntry `json:"entries"`
	Balance float64       `json:"balance"`
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.visibleCustomer(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Ledger(r.Context(), customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse{Entries: entries, Balance: FoldBalance(entries)})
}

type balanceResponse struct {
	CustomerID int64   `json:"customer_id"`
	Balance    float64 `json:"balance"`
	Formatted  string  `json:"formatted"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.visibleCustomer(w, r)
	if !ok {
		return
	}
	balance, err := h.service.Balance(r.Context(), customerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		CustomerID: customerID,
		Balance:    balance,
		Formatted:  shared.FormatZAR(balance),
	})
}

func (h *Handler) loadVisibleInvoice(w http.ResponseWriter, r *http.Request) (*Invoice, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return nil, false
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok || (!scope.Admin && scope.CustomerID != inv.CustomerID) {
		httpx.RespondError(w, shared.ErrNotFound)
		return nil, false
	}
	return inv, true
}

func (h *Handler) visibleCustomer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return 0, false
	}
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok || (!scope.Admin && scope.CustomerID != id) {
		httpx.RespondError(w, shared.ErrNotFound)
		return 0, false
	}
	return id, true
}
