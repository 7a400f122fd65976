package statements

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ironstone-erp/ironstone-erp/internal/authz"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/httpx"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// Handler exposes statement generation over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers statement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{id}", h.handleGenerate)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid customer id")
		return
	}
	scope, ok := authz.ScopeFromContext(r.Context())
	if !ok || (!scope.Admin && scope.CustomerID != customerID) {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}

	start, err := time.Parse(time.DateOnly, r.URL.Query().Get("start"))
	if err != nil {
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", map[string]string{"start": "start date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(time.DateOnly, r.URL.Query().Get("end"))
	if err != nil {
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", map[string]string{"end": "end date must be YYYY-MM-DD"})
		return
	}
	// End of the last day so the whole day is included.
	end = end.Add(24*time.Hour - time.Nanosecond)

	stmt, err := h.service.Generate(r.Context(), customerID, start, end)
	if err != nil {
		h.logger.Error("generate statement", slog.Any("error", err), slog.Int64("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}
