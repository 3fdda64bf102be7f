package models

import "time"

// SyncAction identifies the accounting operation a queued task performs.
type SyncAction string

const (
	ActionCreateInvoice SyncAction = "create_invoice"
	ActionVoidInvoice   SyncAction = "void_invoice"
	ActionUpdateInvoice SyncAction = "update_invoice"
)

// Valid reports whether the action is one of the known kinds.
func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreateInvoice, ActionVoidInvoice, ActionUpdateInvoice:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a sync task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// SyncTask represents a queued synchronization job for one order.
type SyncTask struct {
	ID                int64      `json:"id"`
	OrderID           int64      `json:"order_id"`
	Action            SyncAction `json:"action"`
	Status            TaskStatus `json:"status"`
	Attempts          int        `json:"attempts"`
	ErrorMessage      *string    `json:"error_message"`
	ExternalInvoiceID *string    `json:"external_invoice_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Exhausted reports whether the task has used up its retry budget.
func (t *SyncTask) Exhausted(maxAttempts int) bool {
	return t.Attempts >= maxAttempts
}
