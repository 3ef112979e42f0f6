package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"firmadoc/internal/domain"
)

func testClock() Clock {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return base }
}

type fakeUsers struct {
	users map[int64]domain.Identity
}

func (f *fakeUsers) FindUserByID(ctx context.Context, id int64) (*domain.Identity, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrValidation, id)
	}
	return &u, nil
}

type fakeKeyRepo struct {
	keys map[string]domain.DocumentKey
	err  error
}

func (f *fakeKeyRepo) Create(ctx context.Context, key domain.DocumentKey) error {
	if f.err != nil {
		return f.err
	}
	if f.keys == nil {
		f.keys = map[string]domain.DocumentKey{}
	}
	f.keys[key.KeyID] = key
	return nil
}

func (f *fakeKeyRepo) FindByKeyID(ctx context.Context, keyID string) (*domain.DocumentKey, error) {
	key, ok := f.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, keyID)
	}
	return &key, nil
}

func (f *fakeKeyRepo) GetPublicKey(ctx context.Context, keyID string) (string, error) {
	key, ok := f.keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrKeyNotFound, keyID)
	}
	return key.PublicKey, nil
}

// fakeCrypto signs without RSA: the "signature" binds the public key to
// a payload hash, and the custody envelope embeds the identity triple
// so wrong-identity unsealing fails like a real tag failure.
type fakeCrypto struct {
	counter int
}

func identitySuffix(identity domain.Identity) string {
	return fmt.Sprintf("|%d|%s|%s", identity.ID, identity.Email, identity.Document)
}

func (f *fakeCrypto) MintDocumentKey(identity domain.Identity) (*domain.DocumentKey, error) {
	f.counter++
	pub := fmt.Sprintf("pub-%d", f.counter)
	return &domain.DocumentKey{
		KeyID:               fmt.Sprintf("key-%d", f.counter),
		PublicKey:           pub,
		EncryptedPrivateKey: pub + identitySuffix(identity),
		Algorithm:           "aes-256-gcm",
	}, nil
}

func (f *fakeCrypto) UnsealPrivateKey(key *domain.DocumentKey, identity domain.Identity) ([]byte, error) {
	if !strings.HasSuffix(key.EncryptedPrivateKey, identitySuffix(identity)) {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted data", domain.ErrAuthenticationFailed)
	}
	return []byte(key.EncryptedPrivateKey), nil
}

func (f *fakeCrypto) Sign(privateKeyPEM []byte, payload []byte) (string, error) {
	pub := strings.SplitN(string(privateKeyPEM), "|", 2)[0]
	sum := sha256.Sum256(payload)
	return pub + ":" + hex.EncodeToString(sum[:]), nil
}

func (f *fakeCrypto) Verify(publicKeyPEM string, payload []byte, signatureB64 string) (bool, string) {
	sum := sha256.Sum256(payload)
	if signatureB64 == publicKeyPEM+":"+hex.EncodeToString(sum[:]) {
		return true, ""
	}
	return false, "signature mismatch"
}

func (f *fakeCrypto) Canonicalize(attrs map[string]any) ([]byte, error) {
	return json.Marshal(attrs)
}

func (f *fakeCrypto) ZeroKey(material []byte) {}

type fakeContractRepo struct {
	mu        sync.Mutex
	counter   int
	contracts map[string]*domain.ContractDocument
	digests   map[string]domain.ContentDigest
}

func newFakeContractRepo() *fakeContractRepo {
	return &fakeContractRepo{
		contracts: map[string]*domain.ContractDocument{},
		digests:   map[string]domain.ContentDigest{},
	}
}

func (f *fakeContractRepo) Create(ctx context.Context, c domain.ContractDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	id := fmt.Sprintf("c-%d", f.counter)
	c.ID = id
	f.contracts[id] = &c
	return id, nil
}

func (f *fakeContractRepo) get(id string) (*domain.ContractDocument, error) {
	c, ok := f.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return c, nil
}

func (f *fakeContractRepo) FindByID(ctx context.Context, id string) (*domain.ContractDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return nil, err
	}
	clone := *c
	clone.AdditionalSignatures = append([]domain.Signature(nil), c.AdditionalSignatures...)
	return &clone, nil
}

func (f *fakeContractRepo) FindByOwner(ctx context.Context, ownerID int64) ([]domain.ContractDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ContractDocument
	for _, c := range f.contracts {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeContractRepo) UpdateSignatures(ctx context.Context, id string, status domain.ContractStatus, signedAt *time.Time, initiating *domain.Signature, additional []domain.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return err
	}
	c.Status = status
	c.SignedAt = signedAt
	c.InitiatingSignature = initiating
	c.AdditionalSignatures = append([]domain.Signature(nil), additional...)
	return nil
}

func (f *fakeContractRepo) UpdateStatus(ctx context.Context, id string, status domain.ContractStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return err
	}
	c.Status = status
	return nil
}

func (f *fakeContractRepo) StoreDigest(ctx context.Context, id string, digest domain.ContentDigest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return err
	}
	f.digests[id] = digest
	return nil
}

func (f *fakeContractRepo) RetrieveDigest(ctx context.Context, id string) (*domain.ContentDigest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	digest, ok := f.digests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoBaseline, id)
	}
	return &digest, nil
}

func (f *fakeContractRepo) UpdateStorage(ctx context.Context, id string, locator, fileName, mimeType string, compression domain.CompressionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(id)
	if err != nil {
		return err
	}
	c.ContentLocator = locator
	c.FileName = fileName
	c.FileMimeType = mimeType
	c.Compression = &compression
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	signals []domain.AnomalySignal
}

func (f *fakeAuditRepo) Append(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeAuditRepo) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditRecord
	for _, rec := range f.records {
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if filter.ActorID != 0 && rec.ActorID != filter.ActorID {
			continue
		}
		if filter.ContractID != "" && rec.ContractID != filter.ContractID {
			continue
		}
		if filter.Severity != "" && rec.Severity != filter.Severity {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeAuditRepo) DetectAnomalies(ctx context.Context, actorID int64, window time.Duration, threshold int64) ([]domain.AnomalySignal, error) {
	return f.signals, nil
}

func (f *fakeAuditRepo) find(action domain.AuditAction) *domain.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].Action == action {
			return &f.records[i]
		}
	}
	return nil
}

func (f *fakeAuditRepo) count(action domain.AuditAction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.records {
		if f.records[i].Action == action {
			n++
		}
	}
	return n
}

type fakeDocStore struct {
	mu      sync.Mutex
	counter int
	blobs   map[string][]byte
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{blobs: map[string][]byte{}}
}

func (f *fakeDocStore) StoreDocument(ctx context.Context, fileName, directory, mimeType string, content []byte, algorithm string) (string, domain.CompressionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	locator := fmt.Sprintf("%s/loc-%d-%s", directory, f.counter, fileName)
	f.blobs[locator] = append([]byte(nil), content...)
	if algorithm == "" {
		algorithm = "brotli"
	}
	return locator, domain.CompressionInfo{
		Algorithm:      algorithm,
		OriginalSize:   int64(len(content)),
		CompressedSize: int64(len(content)),
		Ratio:          1.0,
	}, nil
}

func (f *fakeDocStore) Retrieve(ctx context.Context, locator string, decompress bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, locator)
	}
	return append([]byte(nil), content...), nil
}

func (f *fakeDocStore) tamper(locator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if content, ok := f.blobs[locator]; ok && len(content) > 0 {
		content[0] ^= 0x01
	}
}

type fakeQueue struct {
	mu      sync.Mutex
	counter int
	jobs    []domain.Job
	err     error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job domain.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.counter++
	job.JobID = fmt.Sprintf("job-%d", f.counter)
	f.jobs = append(f.jobs, job)
	return job.JobID, nil
}

type fakeRenderer struct {
	calls int
	roles [][]domain.SignerRole
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, document []byte, signatures []domain.Signature) ([]byte, error) {
	f.calls++
	var roles []domain.SignerRole
	for i := range signatures {
		roles = append(roles, signatures[i].Role)
	}
	f.roles = append(f.roles, roles)
	if f.err != nil {
		return nil, f.err
	}
	out := append([]byte(nil), document...)
	return append(out, []byte(fmt.Sprintf("|rendered:%d", len(signatures)))...), nil
}

type fakeCache struct {
	mu           sync.Mutex
	entries      map[string]*domain.ContractDocument
	invalidated  []string
	hits, misses int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*domain.ContractDocument{}}
}

func (f *fakeCache) Get(ctx context.Context, id string) (*domain.ContractDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.entries[id]
	if !ok {
		f.misses++
		return nil, false
	}
	f.hits++
	clone := *doc
	return &clone, true
}

func (f *fakeCache) Set(ctx context.Context, doc *domain.ContractDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *doc
	f.entries[doc.ID] = &clone
}

func (f *fakeCache) Invalidate(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	f.invalidated = append(f.invalidated, id)
}

type testEnv struct {
	service   *ContractService
	contracts *fakeContractRepo
	keys      *fakeKeyRepo
	audit     *fakeAuditRepo
	store     *fakeDocStore
	queue     *fakeQueue
	cache     *fakeCache
	users     *fakeUsers
}

func newTestEnv() *testEnv {
	clock := testClock()
	users := &fakeUsers{users: map[int64]domain.Identity{
		1: {ID: 1, Email: "owner@example.com", Document: "11111111111", Name: "Olga Owner"},
		2: {ID: 2, Email: "legal@example.com", Document: "22222222222", Name: "Luis Legal"},
		3: {ID: 3, Email: "juridical@example.com", Document: "33333333333", Name: "Julia Juridical"},
	}}
	contracts := newFakeContractRepo()
	keys := &fakeKeyRepo{}
	audit := &fakeAuditRepo{}
	store := newFakeDocStore()
	queue := &fakeQueue{}
	cache := newFakeCache()

	trail := &AuditTrail{Records: audit, Clock: clock}
	service := &ContractService{
		Contracts: contracts,
		Signer:    &SigningEngine{Keys: keys, Crypto: &fakeCrypto{}, Audit: trail},
		Integrity: &IntegrityService{Clock: clock},
		Audit:     trail,
		Users:     users,
		Store:     store,
		Queue:     queue,
		Cache:     cache,
		Clock:     clock,
		Directory: "CONTRACTS",
	}
	return &testEnv{
		service:   service,
		contracts: contracts,
		keys:      keys,
		audit:     audit,
		store:     store,
		queue:     queue,
		cache:     cache,
		users:     users,
	}
}

func (e *testEnv) createContract(ctx context.Context) (*domain.ContractDocument, error) {
	return e.service.Create(ctx, CreateContractRequest{
		OwnerID:  1,
		Title:    "Service Agreement",
		FileName: "agreement.pdf",
		MimeType: "application/pdf",
		Content:  []byte("%PDF-1.4 test document body"),
		OriginIP: "10.0.0.1",
	})
}
