package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"firmadoc/internal/domain"
)

func TestCreateContract(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	contract, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if contract.ID == "" {
		t.Fatal("expected contract id")
	}
	if contract.Status != domain.ContractStatusPending {
		t.Fatalf("expected PENDING, got %s", contract.Status)
	}
	if contract.KeyID == "" {
		t.Fatal("expected a document key")
	}
	if _, ok := env.keys.keys[contract.KeyID]; !ok {
		t.Fatal("document key was not persisted")
	}
	if contract.Digest == nil || contract.Digest.SHA512 == "" {
		t.Fatal("expected baseline digest")
	}
	if _, err := env.contracts.RetrieveDigest(ctx, contract.ID); err != nil {
		t.Fatalf("baseline digest not stored: %v", err)
	}
	if env.audit.find(domain.AuditDocumentCreated) == nil {
		t.Fatal("missing DOCUMENT_CREATED audit record")
	}
	if env.audit.find(domain.AuditKeyGenerated) == nil {
		t.Fatal("missing KEY_GENERATED audit record")
	}
}

func TestCreateContractValidation(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.Create(context.Background(), CreateContractRequest{OwnerID: 1, Title: "t"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateContractUnknownOwner(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.Create(context.Background(), CreateContractRequest{
		OwnerID: 99, Title: "t", FileName: "f.pdf", Content: []byte("x"),
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSignByOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1, OriginIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signed := result.Contract
	if signed.Status != domain.ContractStatusSigned {
		t.Fatalf("expected SIGNED, got %s", signed.Status)
	}
	if signed.SignedAt == nil {
		t.Fatal("expected signed at timestamp")
	}
	if signed.InitiatingSignature == nil {
		t.Fatal("expected initiating signature")
	}
	if signed.InitiatingSignature.Role != domain.RoleClient {
		t.Fatalf("expected CLIENT role, got %s", signed.InitiatingSignature.Role)
	}
	if signed.InitiatingSignature.DigitalSignature == "" {
		t.Fatal("expected digital signature")
	}

	if len(env.queue.jobs) != 1 {
		t.Fatalf("expected 1 render job, got %d", len(env.queue.jobs))
	}
	job := env.queue.jobs[0]
	if job.Kind != domain.JobRenderPDF || job.Render == nil {
		t.Fatal("expected a render job")
	}
	if result.JobID == "" || result.JobID != job.JobID {
		t.Fatalf("sign result job id %q does not match enqueued job %q", result.JobID, job.JobID)
	}
	if job.Render.OnlyAdditional {
		t.Fatal("initiating render must cover all signatures")
	}
	if job.Render.SnapshotSignatures != 1 {
		t.Fatalf("expected snapshot of 1 signature, got %d", job.Render.SnapshotSignatures)
	}
	if env.audit.find(domain.AuditDocumentSigned) == nil {
		t.Fatal("missing DOCUMENT_SIGNED audit record")
	}
	if env.audit.find(domain.AuditKeyUsed) == nil {
		t.Fatal("missing KEY_USED audit record")
	}
}

func TestSignByNonOwnerRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 2, OriginIP: "10.0.0.9"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	rec := env.audit.find(domain.AuditUnauthorizedAccess)
	if rec == nil {
		t.Fatal("missing UNAUTHORIZED_ACCESS audit record")
	}
	if rec.Severity != domain.SeverityCritical {
		t.Fatalf("expected CRITICAL severity, got %s", rec.Severity)
	}
}

func TestSignTwiceConflicts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("first sign: %v", err)
	}

	_, err = env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestAddSignatureRequiresSignedContract(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.service.AddSignature(ctx, AddSignatureRequest{
		ContractID: created.ID, SignerID: 2, Role: domain.RoleLegal,
	})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for pending contract, got %v", err)
	}
}

func TestAddSignatureRejectsOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = env.service.AddSignature(ctx, AddSignatureRequest{
		ContractID: created.ID, SignerID: 1, Role: domain.RoleLegal,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for owner as additional signer, got %v", err)
	}
}

func TestAddSignatureRejectsClientRole(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.AddSignature(context.Background(), AddSignatureRequest{
		ContractID: "c-1", SignerID: 1, Role: domain.RoleClient,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	_, err = env.service.AddSignature(context.Background(), AddSignatureRequest{
		ContractID: "c-1", SignerID: 1, Role: "NOTARY",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
}

func TestAddSignatureAppendsAndReplaces(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("sign: %v", err)
	}

	firstResult, err := env.service.AddSignature(ctx, AddSignatureRequest{
		ContractID: created.ID, SignerID: 2, Role: domain.RoleLegal,
	})
	if err != nil {
		t.Fatalf("add legal signature: %v", err)
	}
	first := firstResult.Contract
	if len(first.AdditionalSignatures) != 1 {
		t.Fatalf("expected 1 additional signature, got %d", len(first.AdditionalSignatures))
	}
	if first.Status != domain.ContractStatusSigned {
		t.Fatalf("status changed unexpectedly to %s", first.Status)
	}
	if firstResult.JobID == "" {
		t.Fatal("expected a render job id from add signature")
	}
	if job := env.queue.jobs[len(env.queue.jobs)-1]; !job.Render.OnlyAdditional {
		t.Fatal("additional signature must enqueue an additional-only render")
	}

	// Same role signs again with a different user: replaced, not appended.
	env.users.users[4] = domain.Identity{ID: 4, Email: "legal2@example.com", Document: "44444444444", Name: "Lena Legal"}
	secondResult, err := env.service.AddSignature(ctx, AddSignatureRequest{
		ContractID: created.ID, SignerID: 4, Role: domain.RoleLegal,
	})
	if err != nil {
		t.Fatalf("replace legal signature: %v", err)
	}
	second := secondResult.Contract
	if len(second.AdditionalSignatures) != 1 {
		t.Fatalf("expected same-role replacement to keep 1 signature, got %d", len(second.AdditionalSignatures))
	}
	if second.AdditionalSignatures[0].SignerID != 4 {
		t.Fatalf("expected replacement by signer 4, got %d", second.AdditionalSignatures[0].SignerID)
	}

	thirdResult, err := env.service.AddSignature(ctx, AddSignatureRequest{
		ContractID: created.ID, SignerID: 3, Role: domain.RoleJuridical,
	})
	if err != nil {
		t.Fatalf("add juridical signature: %v", err)
	}
	if len(thirdResult.Contract.AdditionalSignatures) != 2 {
		t.Fatalf("expected 2 additional signatures, got %d", len(thirdResult.Contract.AdditionalSignatures))
	}
}

func TestConcurrentAddSignatures(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("sign: %v", err)
	}

	requests := []AddSignatureRequest{
		{ContractID: created.ID, SignerID: 2, Role: domain.RoleLegal},
		{ContractID: created.ID, SignerID: 3, Role: domain.RoleJuridical},
	}
	errs := make(chan error, len(requests))
	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req AddSignatureRequest) {
			defer wg.Done()
			_, err := env.service.AddSignature(ctx, req)
			errs <- err
		}(req)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add signature: %v", err)
		}
	}

	after, err := env.contracts.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(after.AdditionalSignatures) != 2 {
		t.Fatalf("lost update: %d additional signatures, want 2", len(after.AdditionalSignatures))
	}
	roles := map[domain.SignerRole]bool{}
	for _, sig := range after.AdditionalSignatures {
		roles[sig.Role] = true
	}
	if !roles[domain.RoleLegal] || !roles[domain.RoleJuridical] {
		t.Fatalf("missing a role after concurrent signing: %+v", after.AdditionalSignatures)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.service.Reject(ctx, RejectRequest{ContractID: created.ID, ActorID: 1, Reason: "terms disputed"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	err = env.service.Reject(ctx, RejectRequest{ContractID: created.ID, ActorID: 1})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict on second reject, got %v", err)
	}

	_, err = env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict signing a rejected contract, got %v", err)
	}
	if env.audit.find(domain.AuditDocumentRejected) == nil {
		t.Fatal("missing DOCUMENT_REJECTED audit record")
	}
}

func TestVerifyIntegrityIntact(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("sign: %v", err)
	}

	report, err := env.service.VerifyIntegrity(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.ContentIntact {
		t.Fatalf("expected intact content, mismatches: %v", report.Mismatches)
	}
	if len(report.Signatures) != 1 {
		t.Fatalf("expected 1 signature check, got %d", len(report.Signatures))
	}
	if !report.Signatures[0].IsValid {
		t.Fatalf("expected valid signature, reason: %s", report.Signatures[0].Reason)
	}
	if !report.AllValid() {
		t.Fatal("expected AllValid")
	}
	if env.audit.find(domain.AuditIntegrityCheck) == nil {
		t.Fatal("missing INTEGRITY_CHECK audit record")
	}
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.store.tamper(created.ContentLocator)
	env.cache.Invalidate(ctx, created.ID)

	report, err := env.service.VerifyIntegrity(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.ContentIntact {
		t.Fatal("expected tampering to be detected")
	}
	if report.AllValid() {
		t.Fatal("expected AllValid false")
	}
}

func TestVerifyIntegrityNoBaseline(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	delete(env.contracts.digests, created.ID)

	_, err = env.service.VerifyIntegrity(ctx, created.ID, 1)
	if !errors.Is(err, domain.ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestGetContractUsesCache(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.service.GetContract(ctx, created.ID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := env.service.GetContract(ctx, created.ID); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if env.cache.hits == 0 {
		t.Fatal("expected a cache hit on the second read")
	}
}

func TestMutationsInvalidateCache(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1}); err != nil {
		t.Fatalf("sign: %v", err)
	}

	found := false
	for _, id := range env.cache.invalidated {
		if id == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected sign to invalidate the cache entry")
	}
}

func TestEnqueueFailureIsAudited(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created, err := env.createContract(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	env.queue.err = errors.New("broker down")

	// Signing still succeeds; the render job failure is recorded.
	result, err := env.service.Sign(ctx, SignRequest{ContractID: created.ID, SignerID: 1})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if result.JobID != "" {
		t.Fatalf("expected empty job id after enqueue failure, got %q", result.JobID)
	}
	if env.audit.find(domain.AuditRenderJobFailed) == nil {
		t.Fatal("missing RENDER_JOB_FAILED audit record")
	}
}

func TestGetContractNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.service.GetContract(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	_, err = env.service.GetContract(context.Background(), "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty id, got %v", err)
	}
}

func TestStorageStatsAndManifest(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if _, err := env.createContract(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.createContract(ctx); err != nil {
		t.Fatalf("create second: %v", err)
	}

	stats, err := env.service.StorageStats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalContracts != 2 {
		t.Fatalf("expected 2 contracts, got %d", stats.TotalContracts)
	}
	if stats.TotalOriginalSize == 0 {
		t.Fatal("expected nonzero original size")
	}

	manifest, err := env.service.Manifest(ctx, 1)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if len(manifest.Entries) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(manifest.Entries))
	}
	if manifest.ManifestSHA == "" {
		t.Fatal("expected manifest digest")
	}
}
