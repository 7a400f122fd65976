package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
)

// InvoiceIssuer is the slice of the billing service the worker needs.
type InvoiceIssuer interface {
	CreateInvoiceFromOrder(ctx context.Context, orderID int64) (*billing.Invoice, error)
	Reconcile(ctx context.Context) error
}

// BillingTasks holds the handlers for invoice issuance and the
// reconciliation sweep.
type BillingTasks struct {
	Issuer  InvoiceIssuer
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// HandleInvoiceCreate issues the invoice for a converted order. Issuance is
// idempotent by order id, so asynq retries and duplicate deliveries are safe.
func (b BillingTasks) HandleInvoiceCreate(ctx context.Context, t *asynq.Task) error {
	var payload InvoiceCreatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrderID <= 0 {
		return asynq.SkipRetry
	}

	if _, err := b.Issuer.CreateInvoiceFromOrder(ctx, payload.OrderID); err != nil {
		b.Logger.Error("invoice create task", slog.Any("error", err), slog.Int64("order_id", payload.OrderID))
		b.Metrics.ObserveJob(TaskTypeInvoiceCreate, "error")
		return err
	}
	b.Metrics.ObserveJob(TaskTypeInvoiceCreate, "ok")
	return nil
}

// HandleBillingReconcile runs the consistency sweep.
func (b BillingTasks) HandleBillingReconcile(ctx context.Context, t *asynq.Task) error {
	if err := b.Issuer.Reconcile(ctx); err != nil {
		b.Logger.Error("billing reconcile task", slog.Any("error", err))
		b.Metrics.ObserveJob(TaskTypeBillingReconcile, "error")
		return err
	}
	b.Metrics.ObserveJob(TaskTypeBillingReconcile, "ok")
	return nil
}
