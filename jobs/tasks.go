package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries outbox notifications published by the relay.
	QueueEvents = "events"
	// TaskTypeGLPosting is the task type for asynchronous posting requests.
	TaskTypeGLPosting = "gl:posting"
	// TaskTypeGLReversal is the task type for asynchronous reversal requests.
	TaskTypeGLReversal = "gl:reversal"
	// TaskTypeGLIntegrityScan re-verifies close hashes on sealed periods.
	TaskTypeGLIntegrityScan = "gl:integrity:scan"
)

// PostingLinePayload is one journal line of an asynchronous posting request.
type PostingLinePayload struct {
	AccountCode string `json:"account_code"`
	DebitMinor  int64  `json:"debit_minor"`
	CreditMinor int64  `json:"credit_minor"`
	Memo        string `json:"memo,omitempty"`
}

// PostingPayload is the envelope for TaskTypeGLPosting tasks.
type PostingPayload struct {
	SourceEventID string               `json:"source_event_id"`
	TenantID      string               `json:"tenant_id"`
	SourceModule  string               `json:"source_module"`
	Description   string               `json:"description"`
	Currency      string               `json:"currency"`
	PostedAt      time.Time            `json:"posted_at"`
	Lines         []PostingLinePayload `json:"lines"`
}

// ReversalPayload is the envelope for TaskTypeGLReversal tasks.
type ReversalPayload struct {
	SourceEventID   string    `json:"source_event_id"`
	TenantID        string    `json:"tenant_id"`
	OriginalEntryID string    `json:"original_entry_id"`
	PostedAt        time.Time `json:"posted_at"`
	Reason          string    `json:"reason,omitempty"`
}

// NewPostingTask constructs an Asynq task for a posting request.
func NewPostingTask(payload PostingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGLPosting, data, asynq.Queue(QueueDefault)), nil
}

// NewReversalTask constructs an Asynq task for a reversal request.
func NewReversalTask(payload ReversalPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGLReversal, data, asynq.Queue(QueueDefault)), nil
}

// NewIntegrityScanTask constructs the periodic integrity sweep task.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGLIntegrityScan, nil, asynq.Queue(QueueDefault))
}
