package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"firmadoc/internal/domain"
)

// contractLocks serializes mutations per contract id. Lock granularity
// is one contract; operations on different contracts never contend.
type contractLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *contractLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*lockEntry{}
	}
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// ContractService orchestrates the contract lifecycle: creation with
// key custody, the signing protocol, rejection and integrity checks.
// State transitions happen under a per-contract lock so concurrent
// signers observe a consistent document.
type ContractService struct {
	Contracts ContractRepository
	Signer    *SigningEngine
	Integrity *IntegrityService
	Audit     *AuditTrail
	Users     domain.UserDirectory
	Store     DocumentStore
	Queue     JobQueue
	Cache     ContractCache
	Clock     Clock

	// Directory is the storage prefix for contract blobs.
	Directory string

	locks contractLocks
}

type CreateContractRequest struct {
	OwnerID  int64
	Title    string
	FileName string
	MimeType string
	Content  []byte
	OriginIP string
}

func (s *ContractService) Create(ctx context.Context, req CreateContractRequest) (*domain.ContractDocument, error) {
	if req.OwnerID == 0 || req.Title == "" || req.FileName == "" || len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: owner, title, file name and content are required", domain.ErrValidation)
	}

	owner, err := s.Users.FindUserByID(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	key, err := s.Signer.GenerateDocumentKey(ctx, *owner)
	if err != nil {
		return nil, err
	}

	locator, compression, err := s.Store.StoreDocument(ctx, req.FileName, s.Directory, req.MimeType, req.Content, "")
	if err != nil {
		return nil, err
	}
	digest := s.Integrity.Digest(req.Content)

	contract := domain.ContractDocument{
		OwnerID:        req.OwnerID,
		Title:          req.Title,
		FileName:       req.FileName,
		FileMimeType:   req.MimeType,
		ContentLocator: locator,
		KeyID:          key.KeyID,
		Status:         domain.ContractStatusPending,
		Digest:         &digest,
		Compression:    &compression,
		CreatedAt:      s.Clock().UTC(),
	}

	id, err := s.Contracts.Create(ctx, contract)
	if err != nil {
		return nil, err
	}
	contract.ID = id

	if err := s.Contracts.StoreDigest(ctx, id, digest); err != nil {
		return nil, err
	}

	_ = s.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditDocumentCreated,
		ActorID:    req.OwnerID,
		ContractID: id,
		OriginIP:   req.OriginIP,
		Details:    map[string]any{"key_id": key.KeyID, "file_name": req.FileName},
		Success:    true,
	})

	return &contract, nil
}

type SignRequest struct {
	ContractID     string
	SignerID       int64
	OriginIP       string
	SignatureImage []byte
}

// SignResult pairs the updated contract with the id of the render job
// the signature enqueued. JobID is empty when the enqueue failed; the
// signature itself is durable either way.
type SignResult struct {
	Contract *domain.ContractDocument
	JobID    string
}

// Sign places the initiating client signature. Only the contract owner
// can initiate, and only while the contract is still pending.
func (s *ContractService) Sign(ctx context.Context, req SignRequest) (*SignResult, error) {
	unlock := s.locks.lock(req.ContractID)
	defer unlock()

	contract, err := s.loadContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractStatusPending {
		return nil, fmt.Errorf("%w: contract is %s, expected %s",
			domain.ErrStateConflict, contract.Status, domain.ContractStatusPending)
	}
	if req.SignerID != contract.OwnerID {
		_ = s.Audit.Record(ctx, AuditEntry{
			Action:     domain.AuditUnauthorizedAccess,
			ActorID:    req.SignerID,
			ContractID: contract.ID,
			OriginIP:   req.OriginIP,
			Details:    map[string]any{"owner_id": contract.OwnerID},
		})
		return nil, fmt.Errorf("%w: only the owner may place the initiating signature", domain.ErrValidation)
	}

	signer, err := s.Users.FindUserByID(ctx, req.SignerID)
	if err != nil {
		return nil, err
	}

	signedAt := s.Clock().UTC()
	signature := domain.Signature{
		SignerID:       signer.ID,
		Name:           signer.Name,
		Email:          signer.Email,
		Document:       signer.Document,
		Role:           domain.RoleClient,
		OriginIP:       req.OriginIP,
		SignedAt:       signedAt,
		KeyID:          contract.KeyID,
		SignatureImage: req.SignatureImage,
	}

	if err := s.applySignature(ctx, contract, *signer, &signature); err != nil {
		return nil, err
	}

	contract.InitiatingSignature = &signature
	contract.Status = domain.ContractStatusSigned
	contract.SignedAt = &signedAt

	if err := s.Contracts.UpdateSignatures(ctx, contract.ID, contract.Status, contract.SignedAt,
		contract.InitiatingSignature, contract.AdditionalSignatures); err != nil {
		return nil, err
	}
	s.invalidate(ctx, contract.ID)

	_ = s.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditDocumentSigned,
		ActorID:    req.SignerID,
		ContractID: contract.ID,
		OriginIP:   req.OriginIP,
		Details:    map[string]any{"role": string(domain.RoleClient)},
		Success:    true,
	})

	jobID := s.enqueueRender(ctx, contract, domain.RoleClient, false)
	return &SignResult{Contract: contract, JobID: jobID}, nil
}

type AddSignatureRequest struct {
	ContractID     string
	SignerID       int64
	Role           domain.SignerRole
	OriginIP       string
	SignatureImage []byte
}

// AddSignature places a juridical or legal signature on an already
// signed contract. Signing again with a role that already signed
// replaces that role's signature instead of appending a second one.
func (s *ContractService) AddSignature(ctx context.Context, req AddSignatureRequest) (*SignResult, error) {
	if !req.Role.Valid() || req.Role == domain.RoleClient {
		return nil, fmt.Errorf("%w: additional signatures require role %s or %s",
			domain.ErrValidation, domain.RoleJuridical, domain.RoleLegal)
	}

	unlock := s.locks.lock(req.ContractID)
	defer unlock()

	contract, err := s.loadContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractStatusSigned {
		return nil, fmt.Errorf("%w: contract is %s, additional signatures require %s",
			domain.ErrStateConflict, contract.Status, domain.ContractStatusSigned)
	}
	if req.SignerID == contract.OwnerID {
		return nil, fmt.Errorf("%w: the owner's signature is the initiating one", domain.ErrValidation)
	}

	// The custody envelope is sealed under the owner's identity; the
	// owner record unlocks the key, the signer record goes on the
	// signature.
	owner, err := s.Users.FindUserByID(ctx, contract.OwnerID)
	if err != nil {
		return nil, err
	}
	signer, err := s.Users.FindUserByID(ctx, req.SignerID)
	if err != nil {
		return nil, err
	}

	signature := domain.Signature{
		SignerID:       signer.ID,
		Name:           signer.Name,
		Email:          signer.Email,
		Document:       signer.Document,
		Role:           req.Role,
		OriginIP:       req.OriginIP,
		SignedAt:       s.Clock().UTC(),
		KeyID:          contract.KeyID,
		SignatureImage: req.SignatureImage,
	}

	if err := s.applySignature(ctx, contract, *owner, &signature); err != nil {
		return nil, err
	}

	replaced := false
	for i := range contract.AdditionalSignatures {
		if contract.AdditionalSignatures[i].Role == req.Role {
			contract.AdditionalSignatures[i] = signature
			replaced = true
			break
		}
	}
	if !replaced {
		contract.AdditionalSignatures = append(contract.AdditionalSignatures, signature)
	}

	if err := s.Contracts.UpdateSignatures(ctx, contract.ID, contract.Status, contract.SignedAt,
		contract.InitiatingSignature, contract.AdditionalSignatures); err != nil {
		return nil, err
	}
	s.invalidate(ctx, contract.ID)

	_ = s.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditSignatureAdded,
		ActorID:    req.SignerID,
		ContractID: contract.ID,
		OriginIP:   req.OriginIP,
		Details:    map[string]any{"role": string(req.Role), "replaced": replaced},
		Success:    true,
	})

	jobID := s.enqueueRender(ctx, contract, req.Role, true)
	return &SignResult{Contract: contract, JobID: jobID}, nil
}

// applySignature computes the signable payload and fills in the digital
// signature, auditing a failure before surfacing it.
func (s *ContractService) applySignature(ctx context.Context, contract *domain.ContractDocument, unlocking domain.Identity, signature *domain.Signature) error {
	payload, err := signaturePayload(s.Signer.Crypto, contract.ID, signature)
	if err != nil {
		return err
	}

	signed, err := s.Signer.SignPayload(ctx, contract.KeyID, unlocking, payload)
	if err != nil {
		_ = s.Audit.Record(ctx, AuditEntry{
			Action:     domain.AuditDocumentSignFailed,
			ActorID:    signature.SignerID,
			ContractID: contract.ID,
			OriginIP:   signature.OriginIP,
			Details:    map[string]any{"role": string(signature.Role), "error": err.Error()},
		})
		return err
	}
	signature.DigitalSignature = signed
	return nil
}

// signaturePayload is the canonical byte string a signature covers. It
// is rebuilt from the signature record alone, so verification works for
// the lifetime of the contract regardless of later re-renders.
func signaturePayload(c CryptoService, contractID string, sig *domain.Signature) ([]byte, error) {
	return c.Canonicalize(map[string]any{
		"contract_id": contractID,
		"key_id":      sig.KeyID,
		"signer_id":   sig.SignerID,
		"email":       sig.Email,
		"document":    sig.Document,
		"role":        string(sig.Role),
		"signed_at":   sig.SignedAt.UTC().Format(time.RFC3339Nano),
	})
}

type RejectRequest struct {
	ContractID string
	ActorID    int64
	OriginIP   string
	Reason     string
}

// Reject moves a contract to its terminal state. A rejected contract
// accepts no further transitions.
func (s *ContractService) Reject(ctx context.Context, req RejectRequest) error {
	unlock := s.locks.lock(req.ContractID)
	defer unlock()

	contract, err := s.loadContract(ctx, req.ContractID)
	if err != nil {
		return err
	}
	if contract.Status == domain.ContractStatusRejected {
		return fmt.Errorf("%w: contract is already rejected", domain.ErrStateConflict)
	}

	if err := s.Contracts.UpdateStatus(ctx, contract.ID, domain.ContractStatusRejected); err != nil {
		return err
	}
	s.invalidate(ctx, contract.ID)

	return s.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditDocumentRejected,
		ActorID:    req.ActorID,
		ContractID: contract.ID,
		OriginIP:   req.OriginIP,
		Details:    map[string]any{"reason": req.Reason},
		Success:    true,
	})
}

// SignatureCheck is the verification outcome for one signature.
type SignatureCheck struct {
	Role    domain.SignerRole
	KeyID   string
	IsValid bool
	Reason  string
}

type IntegrityReport struct {
	ContractID    string
	ContentIntact bool
	Mismatches    []string
	Signatures    []SignatureCheck
	CheckedAt     time.Time
}

func (r *IntegrityReport) AllValid() bool {
	if !r.ContentIntact {
		return false
	}
	for i := range r.Signatures {
		if !r.Signatures[i].IsValid {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the stored content against its baseline digest
// and every signature against the document's public key.
func (s *ContractService) VerifyIntegrity(ctx context.Context, contractID string, actorID int64) (*IntegrityReport, error) {
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	baseline, err := s.Contracts.RetrieveDigest(ctx, contractID)
	if err != nil {
		return nil, err
	}
	content, err := s.Store.Retrieve(ctx, contract.ContentLocator, true)
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		ContractID: contractID,
		Mismatches: s.Integrity.Compare(baseline, content),
		CheckedAt:  s.Clock().UTC(),
	}
	report.ContentIntact = len(report.Mismatches) == 0

	for _, sig := range collectSignatures(contract) {
		check := SignatureCheck{Role: sig.Role, KeyID: sig.KeyID}
		payload, err := signaturePayload(s.Signer.Crypto, contract.ID, &sig)
		if err != nil {
			check.Reason = err.Error()
		} else {
			check.IsValid, check.Reason, err = s.Signer.VerifyPayload(ctx, sig.KeyID, payload, sig.DigitalSignature)
			if err != nil {
				check.IsValid = false
				check.Reason = err.Error()
			}
		}
		report.Signatures = append(report.Signatures, check)
	}

	_ = s.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditIntegrityCheck,
		ActorID:    actorID,
		ContractID: contractID,
		Details: map[string]any{
			"content_intact": report.ContentIntact,
			"signatures":     len(report.Signatures),
		},
		Success: report.AllValid(),
	})

	return report, nil
}

func (s *ContractService) GetContract(ctx context.Context, id string) (*domain.ContractDocument, error) {
	return s.loadContract(ctx, id)
}

func (s *ContractService) ListByOwner(ctx context.Context, ownerID int64) ([]domain.ContractDocument, error) {
	return s.Contracts.FindByOwner(ctx, ownerID)
}

// StorageStats aggregates compression figures over one owner's
// contracts.
func (s *ContractService) StorageStats(ctx context.Context, ownerID int64) (StorageStatistics, error) {
	contracts, err := s.Contracts.FindByOwner(ctx, ownerID)
	if err != nil {
		return StorageStatistics{}, err
	}
	return CalculateStorageStatistics(contracts), nil
}

// Manifest builds a checksum manifest over one owner's contracts.
func (s *ContractService) Manifest(ctx context.Context, ownerID int64) (ChecksumManifest, error) {
	contracts, err := s.Contracts.FindByOwner(ctx, ownerID)
	if err != nil {
		return ChecksumManifest{}, err
	}
	return s.Integrity.BuildManifest(contracts), nil
}

// DownloadContent returns the decompressed document bytes plus the mime
// type for serving.
func (s *ContractService) DownloadContent(ctx context.Context, contractID string) ([]byte, string, error) {
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, "", err
	}
	content, err := s.Store.Retrieve(ctx, contract.ContentLocator, true)
	if err != nil {
		return nil, "", err
	}
	return content, contract.FileMimeType, nil
}

func (s *ContractService) loadContract(ctx context.Context, id string) (*domain.ContractDocument, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: contract id is required", domain.ErrValidation)
	}
	if s.Cache != nil {
		if doc, ok := s.Cache.Get(ctx, id); ok {
			return doc, nil
		}
	}
	contract, err := s.Contracts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, contract)
	}
	return contract, nil
}

func (s *ContractService) invalidate(ctx context.Context, id string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, id)
	}
}

func (s *ContractService) enqueueRender(ctx context.Context, contract *domain.ContractDocument, newRole domain.SignerRole, onlyAdditional bool) string {
	jobID, err := s.Queue.Enqueue(ctx, domain.Job{
		Kind:       domain.JobRenderPDF,
		ContractID: contract.ID,
		Render: &domain.RenderPayload{
			ContractID:         contract.ID,
			OnlyAdditional:     onlyAdditional,
			NewSignatureRole:   newRole,
			SnapshotSignatures: len(collectSignatures(contract)),
		},
	})
	if err != nil {
		// Rendering is recoverable; the signature itself is durable.
		_ = s.Audit.Record(ctx, AuditEntry{
			Action:     domain.AuditRenderJobFailed,
			ActorID:    contract.OwnerID,
			ContractID: contract.ID,
			Details:    map[string]any{"error": err.Error(), "stage": "enqueue"},
		})
		return ""
	}
	return jobID
}

func collectSignatures(contract *domain.ContractDocument) []domain.Signature {
	var signatures []domain.Signature
	if contract.InitiatingSignature != nil {
		signatures = append(signatures, *contract.InitiatingSignature)
	}
	signatures = append(signatures, contract.AdditionalSignatures...)
	return signatures
}
