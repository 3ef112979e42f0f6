package domain

import "time"

type AuditAction string

const (
	AuditDocumentCreated    AuditAction = "DOCUMENT_CREATED"
	AuditDocumentSigned     AuditAction = "DOCUMENT_SIGNED"
	AuditDocumentSignFailed AuditAction = "DOCUMENT_SIGN_FAILED"
	AuditDocumentRejected   AuditAction = "DOCUMENT_REJECTED"
	AuditDocumentRendered   AuditAction = "DOCUMENT_RENDERED"
	AuditKeyGenerated       AuditAction = "KEY_GENERATED"
	AuditKeyUsed            AuditAction = "KEY_USED"
	AuditSignatureAdded     AuditAction = "SIGNATURE_ADDED"
	AuditSignatureVerified  AuditAction = "SIGNATURE_VERIFIED"
	AuditIntegrityCheck     AuditAction = "INTEGRITY_CHECK"
	AuditFailedAuth         AuditAction = "FAILED_AUTHENTICATION"
	AuditUnauthorizedAccess AuditAction = "UNAUTHORIZED_ACCESS"
	AuditRenderJobFailed    AuditAction = "RENDER_JOB_FAILED"
)

type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "INFO"
	SeverityWarning  AuditSeverity = "WARNING"
	SeverityError    AuditSeverity = "ERROR"
	SeverityCritical AuditSeverity = "CRITICAL"
)

// AuditRecord is append-only: the core never updates or deletes one.
type AuditRecord struct {
	ID         int64
	Action     AuditAction
	ActorID    int64
	ContractID string
	OriginIP   string
	Details    map[string]any
	Severity   AuditSeverity
	Success    bool
	Timestamp  time.Time
}

type AuditFilter struct {
	ActorID    int64
	ContractID string
	Action     AuditAction
	Severity   AuditSeverity
	From       time.Time
	To         time.Time
	Limit      int
}

// AnomalySignal reports an actor repeating one action more than a
// threshold number of times inside a time window.
type AnomalySignal struct {
	Action     AuditAction
	EventCount int64
	FirstEvent time.Time
	LastEvent  time.Time
}
