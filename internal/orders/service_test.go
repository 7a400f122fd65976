package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/quotes"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

type memoryOrderRepo struct {
	orders      map[int64]*Order
	notes       map[int64][]OrderNote
	nextID      int64
	nextNoteID  int64
	denyInserts int // each Insert consumes one denial while > 0
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[int64]*Order), notes: make(map[int64][]OrderNote)}
}

func (r *memoryOrderRepo) Get(ctx context.Context, id int64) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *o
	cp.Notes = append([]OrderNote(nil), r.notes[id]...)
	return &cp, nil
}

func (r *memoryOrderRepo) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	var out []Order
	for _, o := range r.orders {
		if req.CustomerID > 0 && o.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (r *memoryOrderRepo) Insert(ctx context.Context, userID int64, o Order, note string) (int64, error) {
	if r.denyInserts > 0 {
		r.denyInserts--
		return 0, &pgconn.PgError{Code: "42501", Message: "permission denied for table orders"}
	}
	r.nextID++
	o.ID = r.nextID
	r.orders[o.ID] = &o
	if note != "" {
		r.appendNote(o.ID, note, userID)
	}
	return o.ID, nil
}

func (r *memoryOrderRepo) UpdateDeliveryStatus(ctx context.Context, id int64, status DeliveryStatus) error {
	o, ok := r.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.DeliveryStatus = status
	return nil
}

func (r *memoryOrderRepo) AppendNote(ctx context.Context, orderID int64, note string, userID int64) error {
	if _, ok := r.orders[orderID]; !ok {
		return shared.ErrNotFound
	}
	r.appendNote(orderID, note, userID)
	return nil
}

func (r *memoryOrderRepo) appendNote(orderID int64, note string, userID int64) {
	r.nextNoteID++
	r.notes[orderID] = append(r.notes[orderID], OrderNote{
		ID: r.nextNoteID, OrderID: orderID, Note: note, CreatedBy: userID, CreatedAt: time.Now(),
	})
}

func (r *memoryOrderRepo) ListNotes(ctx context.Context, orderID int64) ([]OrderNote, error) {
	return r.notes[orderID], nil
}

type fakeQuoteStore struct {
	quotes      map[int64]*quotes.Quote
	markOrdered []int64
	markErr     error
}

func (f *fakeQuoteStore) Get(ctx context.Context, id int64) (*quotes.Quote, error) {
	q, ok := f.quotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuoteStore) MarkOrdered(ctx context.Context, id int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markOrdered = append(f.markOrdered, id)
	f.quotes[id].Status = quotes.StatusOrdered
	return nil
}

type fakeDispatcher struct {
	dispatched []int64
	err        error
}

func (f *fakeDispatcher) DispatchInvoiceCreate(ctx context.Context, orderID int64) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, orderID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedQuote(id int64) *quotes.Quote {
	d := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	return &quotes.Quote{
		ID:              id,
		CustomerID:      3,
		DeliveryAddress: "Plot 9, Lanseria",
		DeliveryDate:    &d,
		TransportCost:   20,
		TotalAmount:     370,
		Status:          quotes.StatusApproved,
	}
}

func newConvertFixture() (*memoryOrderRepo, *fakeQuoteStore, *fakeDispatcher, *Service) {
	repo := newMemoryOrderRepo()
	store := &fakeQuoteStore{quotes: map[int64]*quotes.Quote{1: approvedQuote(1)}}
	dispatcher := &fakeDispatcher{}
	return repo, store, dispatcher, NewService(repo, store, dispatcher, testLogger(), nil)
}

func TestConvertApprovedQuote(t *testing.T) {
	_, store, dispatcher, svc := newConvertFixture()

	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1, Notes: "deliver before 10am"})
	require.NoError(t, err)
	require.Equal(t, int64(1), o.QuoteID)
	require.Equal(t, int64(3), o.CustomerID)
	require.Equal(t, 370.0, o.TotalAmount)
	require.Equal(t, DeliveryPending, o.DeliveryStatus)
	require.Equal(t, billing.PaymentUnpaid, o.PaymentStatus)
	require.Len(t, o.Notes, 1)
	require.Equal(t, "deliver before 10am", o.Notes[0].Note)

	require.Equal(t, []int64{1}, store.markOrdered)
	require.Equal(t, quotes.StatusOrdered, store.quotes[1].Status)
	require.Equal(t, []int64{o.ID}, dispatcher.dispatched)
}

func TestConvertRequiresApprovedState(t *testing.T) {
	_, store, _, svc := newConvertFixture()

	for _, status := range []quotes.QuoteStatus{quotes.StatusDraft, quotes.StatusPending, quotes.StatusRejected, quotes.StatusOrdered} {
		store.quotes[1].Status = status
		_, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
		require.True(t, errors.Is(err, shared.ErrInvalidState), "status %s must not convert", status)
	}

	_, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 404})
	require.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestConvertRetriesOnceOnPermissionDenial(t *testing.T) {
	repo, _, dispatcher, svc := newConvertFixture()

	repo.denyInserts = 1
	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
	require.NoError(t, err)
	require.NotZero(t, o.ID)
	require.Equal(t, []int64{o.ID}, dispatcher.dispatched)
}

func TestConvertSecondDenialIsFatal(t *testing.T) {
	repo, store, dispatcher, svc := newConvertFixture()

	repo.denyInserts = 2
	_, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
	require.True(t, errors.Is(err, shared.ErrPermissionDenied))
	require.Contains(t, err.Error(), "customer 3")
	require.Empty(t, repo.orders)
	require.Empty(t, store.markOrdered)
	require.Empty(t, dispatcher.dispatched)
}

func TestConvertSurvivesDispatchFailure(t *testing.T) {
	_, _, dispatcher, svc := newConvertFixture()

	dispatcher.err = errors.New("queue unavailable")
	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
	require.NoError(t, err)
	require.NotZero(t, o.ID)
}

func TestConvertSurvivesMarkOrderedFailure(t *testing.T) {
	_, store, _, svc := newConvertFixture()

	store.markErr = errors.New("store down")
	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
	require.NoError(t, err)
	require.NotZero(t, o.ID)
	// Known gap: the quote stays approved and may convert again.
	require.Equal(t, quotes.StatusApproved, store.quotes[1].Status)
}

func TestDeliveryStatusUpdateAppendsNote(t *testing.T) {
	repo, _, _, svc := newConvertFixture()

	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1, Notes: "first note"})
	require.NoError(t, err)

	updated, err := svc.UpdateDeliveryStatus(context.Background(), o.ID, 7, UpdateDeliveryStatusRequest{Status: "dispatched"})
	require.NoError(t, err)
	require.Equal(t, DeliveryDispatched, updated.DeliveryStatus)
	require.Len(t, updated.Notes, 2)

	updated, err = svc.UpdateDeliveryStatus(context.Background(), o.ID, 7, UpdateDeliveryStatusRequest{Status: "delivered", Note: "left at gate"})
	require.NoError(t, err)
	require.Len(t, updated.Notes, 3)
	require.Equal(t, "left at gate", updated.Notes[2].Note)

	_, err = svc.UpdateDeliveryStatus(context.Background(), o.ID, 7, UpdateDeliveryStatusRequest{Status: "teleported"})
	require.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.UpdateDeliveryStatus(context.Background(), o.ID, 7, UpdateDeliveryStatusRequest{Status: "cancelled"})
	require.NoError(t, err)
	_, err = svc.UpdateDeliveryStatus(context.Background(), o.ID, 7, UpdateDeliveryStatusRequest{Status: "pending"})
	require.True(t, errors.Is(err, shared.ErrInvalidState))
	require.NotNil(t, repo.orders[o.ID])
}

func TestAddNote(t *testing.T) {
	_, _, _, svc := newConvertFixture()

	o, err := svc.Convert(context.Background(), 7, ConvertQuoteRequest{QuoteID: 1})
	require.NoError(t, err)
	require.Empty(t, o.Notes)

	updated, err := svc.AddNote(context.Background(), o.ID, 7, "customer called to confirm")
	require.NoError(t, err)
	require.Len(t, updated.Notes, 1)

	_, err = svc.AddNote(context.Background(), o.ID, 7, "   ")
	require.True(t, errors.Is(err, shared.ErrValidation))
}
