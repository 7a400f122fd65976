package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
)

type fakeIssuer struct {
	created    []int64
	reconciles int
	err        error
}

func (f *fakeIssuer) CreateInvoiceFromOrder(ctx context.Context, orderID int64) (*billing.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, orderID)
	return &billing.Invoice{ID: orderID, OrderID: orderID}, nil
}

func (f *fakeIssuer) Reconcile(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.reconciles++
	return nil
}

func newBillingTasks(issuer *fakeIssuer) BillingTasks {
	return BillingTasks{
		Issuer:  issuer,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: observability.NewMetrics(),
	}
}

func TestHandleInvoiceCreate(t *testing.T) {
	issuer := &fakeIssuer{}
	tasks := newBillingTasks(issuer)

	payload, err := json.Marshal(InvoiceCreatePayload{OrderID: 42})
	require.NoError(t, err)

	err = tasks.HandleInvoiceCreate(context.Background(), asynq.NewTask(TaskTypeInvoiceCreate, payload))
	require.NoError(t, err)
	require.Equal(t, []int64{42}, issuer.created)
}

func TestHandleInvoiceCreateRetriesOnIssuerError(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("store down")}
	tasks := newBillingTasks(issuer)

	payload, err := json.Marshal(InvoiceCreatePayload{OrderID: 42})
	require.NoError(t, err)

	err = tasks.HandleInvoiceCreate(context.Background(), asynq.NewTask(TaskTypeInvoiceCreate, payload))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleInvoiceCreateSkipsBadPayload(t *testing.T) {
	tasks := newBillingTasks(&fakeIssuer{})

	err := tasks.HandleInvoiceCreate(context.Background(), asynq.NewTask(TaskTypeInvoiceCreate, []byte("not json")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	payload, err := json.Marshal(InvoiceCreatePayload{OrderID: 0})
	require.NoError(t, err)
	err = tasks.HandleInvoiceCreate(context.Background(), asynq.NewTask(TaskTypeInvoiceCreate, payload))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleBillingReconcile(t *testing.T) {
	issuer := &fakeIssuer{}
	tasks := newBillingTasks(issuer)

	err := tasks.HandleBillingReconcile(context.Background(), NewBillingReconcileTask())
	require.NoError(t, err)
	require.Equal(t, 1, issuer.reconciles)

	issuer.err = errors.New("store down")
	err = tasks.HandleBillingReconcile(context.Background(), NewBillingReconcileTask())
	require.Error(t, err)
}
