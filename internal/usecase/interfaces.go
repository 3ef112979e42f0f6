package usecase

import (
	"context"
	"time"

	"firmadoc/internal/domain"
)

type KeyRepository interface {
	Create(ctx context.Context, key domain.DocumentKey) error
	FindByKeyID(ctx context.Context, keyID string) (*domain.DocumentKey, error)
	GetPublicKey(ctx context.Context, keyID string) (string, error)
}

type ContractRepository interface {
	Create(ctx context.Context, c domain.ContractDocument) (string, error)
	FindByID(ctx context.Context, id string) (*domain.ContractDocument, error)
	FindByOwner(ctx context.Context, ownerID int64) ([]domain.ContractDocument, error)
	UpdateSignatures(ctx context.Context, id string, status domain.ContractStatus, signedAt *time.Time, initiating *domain.Signature, additional []domain.Signature) error
	UpdateStatus(ctx context.Context, id string, status domain.ContractStatus) error
	StoreDigest(ctx context.Context, id string, digest domain.ContentDigest) error
	RetrieveDigest(ctx context.Context, id string) (*domain.ContentDigest, error)
	UpdateStorage(ctx context.Context, id string, locator, fileName, mimeType string, compression domain.CompressionInfo) error
}

type AuditRepository interface {
	Append(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error)
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)
	DetectAnomalies(ctx context.Context, actorID int64, window time.Duration, threshold int64) ([]domain.AnomalySignal, error)
}

// CryptoService covers key custody and signing. Implementations derive
// the custody passphrase from the identity; it is never passed around.
type CryptoService interface {
	MintDocumentKey(identity domain.Identity) (*domain.DocumentKey, error)
	UnsealPrivateKey(key *domain.DocumentKey, identity domain.Identity) ([]byte, error)
	Sign(privateKeyPEM []byte, payload []byte) (string, error)
	Verify(publicKeyPEM string, payload []byte, signatureB64 string) (isValid bool, reason string)
	Canonicalize(attrs map[string]any) ([]byte, error)
	ZeroKey(material []byte)
}

type DocumentStore interface {
	StoreDocument(ctx context.Context, fileName, directory, mimeType string, content []byte, algorithm string) (locator string, compression domain.CompressionInfo, err error)
	Retrieve(ctx context.Context, locator string, decompress bool) ([]byte, error)
}

type Renderer interface {
	Render(ctx context.Context, document []byte, signatures []domain.Signature) ([]byte, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, job domain.Job) (string, error)
}

// ContractCache is best effort: a miss or a backend failure falls
// through to the repository, never to the caller.
type ContractCache interface {
	Get(ctx context.Context, id string) (*domain.ContractDocument, bool)
	Set(ctx context.Context, doc *domain.ContractDocument)
	Invalidate(ctx context.Context, id string)
}

type Clock func() time.Time
