package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

// PaymentStatus is the derived settlement state of an invoice or order.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// ParsePaymentStatus validates a raw payment status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentUnpaid, PaymentPartial, PaymentPaid, PaymentOverdue:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", shared.ErrValidation, s)
}

// DerivePaymentStatus applies the settlement rule: paid when the amount paid
// covers the total, partial when something but not everything is paid,
// otherwise unpaid. Overdue is never derived here; the reconciliation sweep
// assigns it from the due date.
func DerivePaymentStatus(paid, total float64) PaymentStatus {
	switch {
	case paid >= total:
		return PaymentPaid
	case paid > 0:
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodEFT          PaymentMethod = "eft"
	MethodOther        PaymentMethod = "other"
)

// ParsePaymentMethod validates a raw payment method string.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCash, MethodCreditCard, MethodBankTransfer, MethodEFT, MethodOther:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, s)
}

// PaymentState is the processing state of a single payment record. Only
// completed payments count toward an invoice's paid amount.
type PaymentState string

const (
	StatePending   PaymentState = "pending"
	StateCompleted PaymentState = "completed"
	StateFailed    PaymentState = "failed"
	StateRefunded  PaymentState = "refunded"
)

// ParsePaymentState validates a raw payment state string.
func ParsePaymentState(s string) (PaymentState, error) {
	switch PaymentState(s) {
	case StatePending, StateCompleted, StateFailed, StateRefunded:
		return PaymentState(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment state %q", shared.ErrValidation, s)
}

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryInvoice    EntryType = "invoice"
	EntryPayment    EntryType = "payment"
	EntryCredit     EntryType = "credit"
	EntryDebit      EntryType = "debit"
	EntryAdjustment EntryType = "adjustment"
)

// ParseEntryType validates a raw entry type string.
func ParseEntryType(s string) (EntryType, error) {
	switch EntryType(s) {
	case EntryInvoice, EntryPayment, EntryCredit, EntryDebit, EntryAdjustment:
		return EntryType(s), nil
	}
	return "", fmt.Errorf("%w: unknown ledger entry type %q", shared.ErrValidation, s)
}

// Contribution is the fold rule for customer balances: debit entries add
// their amount, every other type subtracts its magnitude.
func (t EntryType) Contribution(amount float64) float64 {
	if t == EntryDebit {
		return amount
	}
	return -math.Abs(amount)
}

type Invoice struct {
	ID                int64         `json:"id" db:"id"`
	Number            string        `json:"number" db:"number"`
	OrderID           int64         `json:"order_id" db:"order_id"`
	CustomerID        int64         `json:"customer_id" db:"customer_id"`
	TotalAmount       float64       `json:"total_amount" db:"total_amount"`
	PaidAmount        float64       `json:"paid_amount" db:"paid_amount"`
	OutstandingAmount float64       `json:"outstanding_amount" db:"outstanding_amount"`
	PaymentStatus     PaymentStatus `json:"payment_status" db:"payment_status"`
	IssueDate         time.Time     `json:"issue_date" db:"issue_date"`
	DueDate           time.Time     `json:"due_date" db:"due_date"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// DisplayOutstanding clamps a transiently negative outstanding amount at zero
// for presentation. The stored value keeps its sign.
func (i Invoice) DisplayOutstanding() float64 {
	return shared.ClampDisplay(i.OutstandingAmount)
}

type Payment struct {
	ID          int64         `json:"id" db:"id"`
	InvoiceID   int64         `json:"invoice_id" db:"invoice_id"`
	CustomerID  int64         `json:"customer_id" db:"customer_id"`
	Amount      float64       `json:"amount" db:"amount"`
	Method      PaymentMethod `json:"method" db:"method"`
	Status      PaymentState  `json:"status" db:"status"`
	Reference   *string       `json:"reference,omitempty" db:"reference"`
	Notes       *string       `json:"notes,omitempty" db:"notes"`
	PaymentDate time.Time     `json:"payment_date" db:"payment_date"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

type LedgerEntry struct {
	ID             int64     `json:"id" db:"id"`
	CustomerID     int64     `json:"customer_id" db:"customer_id"`
	InvoiceID      *int64    `json:"invoice_id,omitempty" db:"invoice_id"`
	PaymentID      *int64    `json:"payment_id,omitempty" db:"payment_id"`
	EntryType      EntryType `json:"entry_type" db:"entry_type"`
	Amount         float64   `json:"amount" db:"amount"`
	RunningBalance float64   `json:"running_balance" db:"running_balance"`
	Description    string    `json:"description" db:"description"`
	EntryDate      time.Time `json:"entry_date" db:"entry_date"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// FoldBalance computes a customer balance purely from the entry log. The
// entries must already be ordered by entry date, creation time, then id; the
// result is the canonical balance any cached running_balance must agree with.
func FoldBalance(entries []LedgerEntry) float64 {
	var balance float64
	for _, e := range entries {
		balance += e.EntryType.Contribution(e.Amount)
	}
	return balance
}
