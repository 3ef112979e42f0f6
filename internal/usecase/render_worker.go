package usecase

import (
	"context"
	"fmt"

	"firmadoc/internal/domain"
)

// RenderWorker consumes render jobs. Handlers re-read persisted state
// instead of trusting the enqueue-time snapshot, so a retry after a
// later signature renders the newer document, never an older one.
type RenderWorker struct {
	Contracts ContractRepository
	Store     DocumentStore
	Renderer  Renderer
	Integrity *IntegrityService
	Audit     *AuditTrail
	Cache     ContractCache
	Directory string
}

func (w *RenderWorker) Handle(ctx context.Context, job domain.Job) error {
	if job.Kind != domain.JobRenderPDF || job.Render == nil {
		return fmt.Errorf("%w: not a render job", domain.ErrValidation)
	}

	contract, err := w.Contracts.FindByID(ctx, job.ContractID)
	if err != nil {
		return err
	}
	if contract.Status == domain.ContractStatusRejected {
		// Terminal state; nothing to render.
		return nil
	}

	// An additional-signatures job stamps onto content that already
	// carries the CLIENT block from the initiating render; re-stamping
	// it would duplicate the block.
	signatures := collectSignatures(contract)
	if job.Render.OnlyAdditional {
		signatures = append([]domain.Signature(nil), contract.AdditionalSignatures...)
	}
	if len(signatures) == 0 {
		return nil
	}

	content, err := w.Store.Retrieve(ctx, contract.ContentLocator, true)
	if err != nil {
		return err
	}

	rendered, err := w.Renderer.Render(ctx, content, signatures)
	if err != nil {
		return fmt.Errorf("render contract %s: %w", contract.ID, err)
	}

	locator, compression, err := w.Store.StoreDocument(ctx, contract.FileName, w.Directory, contract.FileMimeType, rendered, "")
	if err != nil {
		return err
	}
	if err := w.Contracts.UpdateStorage(ctx, contract.ID, locator, contract.FileName, contract.FileMimeType, compression); err != nil {
		return err
	}

	digest := w.Integrity.Digest(rendered)
	if err := w.Contracts.StoreDigest(ctx, contract.ID, digest); err != nil {
		return err
	}
	if w.Cache != nil {
		w.Cache.Invalidate(ctx, contract.ID)
	}

	return w.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditDocumentRendered,
		ActorID:    contract.OwnerID,
		ContractID: contract.ID,
		Details: map[string]any{
			"job_id":     job.JobID,
			"signatures": len(signatures),
			"algorithm":  compression.Algorithm,
		},
		Success: true,
	})
}

// HandlePoison records a render job that exhausted its retries. The
// contract itself stays signed; rendering can be replayed later.
func (w *RenderWorker) HandlePoison(ctx context.Context, job domain.Job) error {
	actorID := int64(0)
	if contract, err := w.Contracts.FindByID(ctx, job.ContractID); err == nil {
		actorID = contract.OwnerID
	}
	return w.Audit.Record(ctx, AuditEntry{
		Action:     domain.AuditRenderJobFailed,
		ActorID:    actorID,
		ContractID: job.ContractID,
		Details:    map[string]any{"job_id": job.JobID, "kind": string(job.Kind), "attempts": job.Attempts},
	})
}

// CompressWorker re-stores a contract's content under a different
// compression algorithm.
type CompressWorker struct {
	Contracts ContractRepository
	Store     DocumentStore
	Audit     *AuditTrail
	Cache     ContractCache
	Directory string
}

func (w *CompressWorker) Handle(ctx context.Context, job domain.Job) error {
	if job.Kind != domain.JobCompress || job.Compress == nil {
		return fmt.Errorf("%w: not a compress job", domain.ErrValidation)
	}

	contract, err := w.Contracts.FindByID(ctx, job.ContractID)
	if err != nil {
		return err
	}
	content, err := w.Store.Retrieve(ctx, contract.ContentLocator, true)
	if err != nil {
		return err
	}
	locator, compression, err := w.Store.StoreDocument(ctx, contract.FileName, w.Directory, contract.FileMimeType, content, job.Compress.Algorithm)
	if err != nil {
		return err
	}
	if err := w.Contracts.UpdateStorage(ctx, contract.ID, locator, contract.FileName, contract.FileMimeType, compression); err != nil {
		return err
	}
	if w.Cache != nil {
		w.Cache.Invalidate(ctx, contract.ID)
	}
	return nil
}

// VerifyWorker runs a scheduled integrity check over one contract.
type VerifyWorker struct {
	Service *ContractService
}

func (w *VerifyWorker) Handle(ctx context.Context, job domain.Job) error {
	if job.Kind != domain.JobVerifyIntegrity || job.Verify == nil {
		return fmt.Errorf("%w: not a verify job", domain.ErrValidation)
	}
	_, err := w.Service.VerifyIntegrity(ctx, job.ContractID, job.Verify.ActorID)
	return err
}
