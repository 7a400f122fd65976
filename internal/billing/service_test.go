package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

type memoryOrder struct {
	customerID int64
	total      float64
	status     PaymentStatus
}

type memoryBillingRepo struct {
	invoices      map[int64]*Invoice
	payments      map[int64]*Payment
	entries       []LedgerEntry
	orders        map[int64]*memoryOrder
	nextInvoiceID int64
	nextPaymentID int64
	nextEntryID   int64

	// invoiceLookupMisses makes FindInvoiceByOrder miss that many times,
	// simulating a concurrent writer landing between check and insert.
	invoiceLookupMisses int
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		invoices: make(map[int64]*Invoice),
		payments: make(map[int64]*Payment),
		orders:   make(map[int64]*memoryOrder),
	}
}

func (r *memoryBillingRepo) addOrder(id, customerID int64, total float64) {
	r.orders[id] = &memoryOrder{customerID: customerID, total: total, status: PaymentUnpaid}
}

func (r *memoryBillingRepo) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryBillingRepo) FindInvoiceByOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	if r.invoiceLookupMisses > 0 {
		r.invoiceLookupMisses--
		return nil, shared.ErrNotFound
	}
	for _, inv := range r.invoices {
		if inv.OrderID == orderID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryBillingRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if req.CustomerID > 0 && inv.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryBillingRepo) CreateInvoice(ctx context.Context, inv Invoice) (int64, bool, error) {
	for _, existing := range r.invoices {
		if existing.OrderID == inv.OrderID {
			return existing.ID, false, nil
		}
	}
	r.nextInvoiceID++
	inv.ID = r.nextInvoiceID
	r.invoices[inv.ID] = &inv
	return inv.ID, true, nil
}

func (r *memoryBillingRepo) UpdateInvoiceSettlement(ctx context.Context, id int64, paid, outstanding float64, status PaymentStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.PaidAmount = paid
	inv.OutstandingAmount = outstanding
	inv.PaymentStatus = status
	return nil
}

func (r *memoryBillingRepo) OrderBillingInfo(ctx context.Context, orderID int64) (int64, float64, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return 0, 0, shared.ErrNotFound
	}
	return o.customerID, o.total, nil
}

func (r *memoryBillingRepo) PropagateOrderPaymentStatus(ctx context.Context, orderID int64, status PaymentStatus) error {
	o, ok := r.orders[orderID]
	if !ok {
		return shared.ErrNotFound
	}
	o.status = status
	return nil
}

func (r *memoryBillingRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	r.payments[p.ID] = &p
	return p.ID, nil
}

func (r *memoryBillingRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryBillingRepo) ListPaymentsByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) SumCompletedPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID && p.Status == StateCompleted {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (r *memoryBillingRepo) AppendLedgerEntry(ctx context.Context, e LedgerEntry) (*LedgerEntry, error) {
	var prior float64
	for _, existing := range r.entries {
		if existing.CustomerID == e.CustomerID {
			prior = existing.RunningBalance
		}
	}
	r.nextEntryID++
	e.ID = r.nextEntryID
	e.CreatedAt = time.Now()
	e.RunningBalance = prior + e.EntryType.Contribution(e.Amount)
	r.entries = append(r.entries, e)
	return &e, nil
}

func (r *memoryBillingRepo) LedgerEntriesForCustomer(ctx context.Context, customerID int64) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range r.entries {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memoryBillingRepo) MismatchedOrders(ctx context.Context) ([]OrderStatusMismatch, error) {
	var out []OrderStatusMismatch
	for _, inv := range r.invoices {
		o, ok := r.orders[inv.OrderID]
		if ok && o.status != inv.PaymentStatus {
			out = append(out, OrderStatusMismatch{OrderID: inv.OrderID, InvoiceStatus: inv.PaymentStatus})
		}
	}
	return out, nil
}

func (r *memoryBillingRepo) OrdersWithoutInvoices(ctx context.Context) ([]int64, error) {
	var out []int64
	for id := range r.orders {
		if _, err := r.FindInvoiceByOrder(ctx, id); errors.Is(err, shared.ErrNotFound) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memoryBillingRepo) FlagOverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error) {
	var out []OverdueInvoice
	for _, inv := range r.invoices {
		if inv.DueDate.Before(asOf) && (inv.PaymentStatus == PaymentUnpaid || inv.PaymentStatus == PaymentPartial) {
			inv.PaymentStatus = PaymentOverdue
			out = append(out, OverdueInvoice{ID: inv.ID, OrderID: inv.OrderID})
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memoryBillingRepo) *Service {
	svc := NewService(repo, testLogger(), nil)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	return svc
}

func TestCreateInvoiceFromOrder(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 1000)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), inv.OrderID)
	require.Equal(t, 1000.0, inv.TotalAmount)
	require.Equal(t, 1000.0, inv.OutstandingAmount)
	require.Equal(t, PaymentUnpaid, inv.PaymentStatus)
	require.Equal(t, inv.IssueDate.Add(30*24*time.Hour), inv.DueDate)
	require.NotEmpty(t, inv.Number)

	// Issuance logs a debit raising the customer balance.
	balance, err := svc.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1000.0, balance)
}

func TestCreateInvoiceIdempotentByOrder(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 500)
	svc := newTestService(repo)

	first, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	second, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.invoices, 1)
	// The repeated call writes nothing, including ledger entries.
	require.Len(t, repo.entries, 1)
}

func TestRecordPaymentSettlement(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 1000)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 400, Method: "eft"})
	require.NoError(t, err)

	after, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 400.0, after.PaidAmount)
	require.Equal(t, 600.0, after.OutstandingAmount)
	require.Equal(t, PaymentPartial, after.PaymentStatus)
	require.Equal(t, PaymentPartial, repo.orders[10].status)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 600, Method: "bank_transfer"})
	require.NoError(t, err)

	after, err = svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1000.0, after.PaidAmount)
	require.Equal(t, 0.0, after.OutstandingAmount)
	require.Equal(t, PaymentPaid, after.PaymentStatus)
	require.Equal(t, PaymentPaid, repo.orders[10].status)

	// Invoice debit of 1000, payments of 400 and 600 net to zero.
	balance, err := svc.Balance(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, balance)
}

func TestPaidAmountIsFreshAggregate(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 1000)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)

	// A payment inserted outside the service still counts on the next
	// recomputation because settlement sums the table, never increments.
	_, err = repo.InsertPayment(context.Background(), Payment{InvoiceID: inv.ID, CustomerID: 1, Amount: 250, Method: MethodCash, Status: StateCompleted, PaymentDate: time.Now()})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 100, Method: "cash"})
	require.NoError(t, err)

	after, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, 350.0, after.PaidAmount)
	require.Equal(t, 650.0, after.OutstandingAmount)
}

func TestPaymentValidation(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 100)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 0, Method: "cash"})
	require.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 50, Method: "barter"})
	require.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: 999, Amount: 50, Method: "cash"})
	require.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestOverpaymentAllowedAndClampedForDisplay(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 100)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: inv.ID, Amount: 150, Method: "cash"})
	require.NoError(t, err)

	after, err := svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, -50.0, after.OutstandingAmount)
	require.Equal(t, 0.0, after.DisplayOutstanding())
	require.Equal(t, PaymentPaid, after.PaymentStatus)
}

func TestLedgerFoldMatchesRunningBalance(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 700)
	repo.addOrder(11, 1, 300)
	svc := newTestService(repo)

	invA, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	_, err = svc.CreateInvoiceFromOrder(context.Background(), 11)
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: invA.ID, Amount: 200, Method: "eft"})
	require.NoError(t, err)

	entries, err := svc.Ledger(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var fold float64
	for _, e := range entries {
		fold += e.EntryType.Contribution(e.Amount)
		require.Equal(t, fold, e.RunningBalance)
	}
	require.Equal(t, 800.0, fold)
}

func TestInvoiceCreationLostRaceSkipsLedgerDebit(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 500)
	svc := newTestService(repo)

	winner, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	// A concurrent writer already inserted; the existence check misses and
	// the unique-index path returns the winner's row. The loser must not
	// append a second issuance debit.
	repo.invoiceLookupMisses = 1
	loser, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, winner.ID, loser.ID)
	require.Len(t, repo.invoices, 1)
	require.Len(t, repo.entries, 1)
}

func TestBackdatedPaymentKeepsLedgerAppendOrdered(t *testing.T) {
	repo := newMemoryBillingRepo()
	repo.addOrder(10, 1, 1000)
	svc := newTestService(repo)

	inv, err := svc.CreateInvoiceFromOrder(context.Background(), 10)
	require.NoError(t, err)

	// Dated before the issuance debit was written.
	backdated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pay, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		InvoiceID: inv.ID, Amount: 400, Method: "eft", PaymentDate: &backdated,
	})
	require.NoError(t, err)

	// The payment row keeps its historical date.
	require.True(t, pay.PaymentDate.Equal(backdated))

	// The ledger does not: its entry is dated at insertion so it folds in
	// the order it was derived, never ahead of its prior.
	entries, err := svc.Ledger(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, EntryDebit, entries[0].EntryType)
	require.Equal(t, EntryPayment, entries[1].EntryType)
	require.False(t, entries[1].EntryDate.Before(entries[0].EntryDate))

	var fold float64
	for _, e := range entries {
		fold += e.EntryType.Contribution(e.Amount)
		require.Equal(t, fold, e.RunningBalance)
	}
	require.Equal(t, 600.0, fold)
}

func TestReconcileSweep(t *testing.T) {
	repo := newMemoryBillingRepo()
	svc := newTestService(repo)

	// Order 20: invoice paid but order status stale.
	repo.addOrder(20, 1, 100)
	inv20, err := svc.CreateInvoiceFromOrder(context.Background(), 20)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateInvoiceSettlement(context.Background(), inv20.ID, 100, 0, PaymentPaid))

	// Order 21: converted but invoice never created.
	repo.addOrder(21, 2, 250)

	// Order 22: invoice long past due.
	repo.addOrder(22, 3, 400)
	inv22, err := svc.CreateInvoiceFromOrder(context.Background(), 22)
	require.NoError(t, err)
	repo.invoices[inv22.ID].DueDate = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Reconcile(context.Background()))

	require.Equal(t, PaymentPaid, repo.orders[20].status)

	created, err := repo.FindInvoiceByOrder(context.Background(), 21)
	require.NoError(t, err)
	require.Equal(t, 250.0, created.TotalAmount)

	require.Equal(t, PaymentOverdue, repo.invoices[inv22.ID].PaymentStatus)
	require.Equal(t, PaymentOverdue, repo.orders[22].status)
}
