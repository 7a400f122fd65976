package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeInvoiceCreate is the outbox task issuing the invoice for a
	// converted order.
	TaskTypeInvoiceCreate = "invoice:create"
	// TaskTypeBillingReconcile is the periodic consistency sweep.
	TaskTypeBillingReconcile = "billing:reconcile"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: hand off to SMTP once a relay is provisioned.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// InvoiceCreatePayload names the order an invoice must be issued for.
type InvoiceCreatePayload struct {
	OrderID int64 `json:"order_id"`
}

// NewInvoiceCreateTask constructs an Asynq task.
func NewInvoiceCreateTask(payload InvoiceCreatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvoiceCreate, data), nil
}

// NewBillingReconcileTask constructs the sweep task. It carries no payload.
func NewBillingReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskTypeBillingReconcile, nil)
}
