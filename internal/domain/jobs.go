package domain

import "time"

type JobKind string

const (
	JobRenderPDF       JobKind = "render_pdf"
	JobCompress        JobKind = "compress"
	JobVerifyIntegrity JobKind = "verify_integrity"
)

type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// RenderPayload is the immutable snapshot taken at enqueue time. A
// handler must re-read the persisted signature set before rendering:
// a later signature may have landed between enqueue and execution.
type RenderPayload struct {
	ContractID         string     `json:"contract_id"`
	OnlyAdditional     bool       `json:"only_additional"`
	NewSignatureRole   SignerRole `json:"new_signature_role,omitempty"`
	SnapshotSignatures int        `json:"snapshot_signatures"`
}

type CompressPayload struct {
	ContractID string `json:"contract_id"`
	Algorithm  string `json:"algorithm"`
}

type VerifyPayload struct {
	ContractID string `json:"contract_id"`
	ActorID    int64  `json:"actor_id"`
}

// Job is a tagged union by Kind; exactly one payload field is set.
type Job struct {
	JobID      string           `json:"job_id"`
	Kind       JobKind          `json:"kind"`
	ContractID string           `json:"contract_id"`
	Render     *RenderPayload   `json:"render,omitempty"`
	Compress   *CompressPayload `json:"compress,omitempty"`
	Verify     *VerifyPayload   `json:"verify,omitempty"`
	Status     JobStatus        `json:"status"`
	Attempts   int              `json:"attempts"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}
