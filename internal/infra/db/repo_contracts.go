package db

import (
	"context"
	"errors"
	"time"

	"firmadoc/internal/domain"

	"gorm.io/gorm"
)

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) Create(ctx context.Context, c domain.ContractDocument) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	id := c.ID
	if id == "" {
		generated, err := newUUID()
		if err != nil {
			return "", err
		}
		id = generated
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := c.Status
	if status == "" {
		status = domain.ContractStatusPending
	}

	model := ContractModel{
		ID:             id,
		OwnerID:        c.OwnerID,
		Title:          c.Title,
		FileName:       c.FileName,
		FileMimeType:   c.FileMimeType,
		ContentLocator: c.ContentLocator,
		KeyID:          c.KeyID,
		Status:         string(status),
		CreatedAt:      createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", err
	}
	return id, nil
}

func (r *ContractRepository) FindByID(ctx context.Context, id string) (*domain.ContractDocument, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ContractModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return contractFromModel(model)
}

func (r *ContractRepository) FindByOwner(ctx context.Context, ownerID int64) ([]domain.ContractDocument, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ContractModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ContractDocument, 0, len(models))
	for _, model := range models {
		c, err := contractFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// UpdateSignatures rewrites the signature collections, status and
// signing timestamp in one statement. Role uniqueness is enforced by
// the orchestrator before this write; the repository persists whatever
// collection it is handed.
func (r *ContractRepository) UpdateSignatures(ctx context.Context, id string, status domain.ContractStatus, signedAt *time.Time, initiating *domain.Signature, additional []domain.Signature) error {
	if r.db == nil {
		return errDBUnavailable
	}
	signedBy, err := marshalSignature(initiating)
	if err != nil {
		return err
	}
	additionalJSON, err := marshalSignatures(additional)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"status":                string(status),
		"signed_at":             signedAt,
		"signed_by":             signedBy,
		"additional_signatures": additionalJSON,
	}
	return r.updateByID(ctx, id, updates)
}

func (r *ContractRepository) UpdateStatus(ctx context.Context, id string, status domain.ContractStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.updateByID(ctx, id, map[string]any{"status": string(status)})
}

// StoreDigest persists the integrity baseline for later verification.
func (r *ContractRepository) StoreDigest(ctx context.Context, id string, digest domain.ContentDigest) error {
	if r.db == nil {
		return errDBUnavailable
	}
	ts := digest.Timestamp
	return r.updateByID(ctx, id, map[string]any{
		"digest_sha512":    digest.SHA512,
		"digest_sha256":    digest.SHA256,
		"digest_size":      digest.Size,
		"digest_timestamp": &ts,
	})
}

// RetrieveDigest returns ErrNoBaseline when no digest was ever stored,
// which callers must treat differently from a failed verification.
func (r *ContractRepository) RetrieveDigest(ctx context.Context, id string) (*domain.ContentDigest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model ContractModel
	err := r.db.WithContext(ctx).
		Select("id", "digest_sha512", "digest_sha256", "digest_size", "digest_timestamp").
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if model.DigestSHA512 == "" || model.DigestTimestamp == nil {
		return nil, domain.ErrNoBaseline
	}
	return &domain.ContentDigest{
		SHA512:    model.DigestSHA512,
		SHA256:    model.DigestSHA256,
		Size:      model.DigestSize,
		Timestamp: *model.DigestTimestamp,
	}, nil
}

// UpdateStorage repoints the contract at a freshly rendered artifact.
func (r *ContractRepository) UpdateStorage(ctx context.Context, id string, locator, fileName, mimeType string, compression domain.CompressionInfo) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.updateByID(ctx, id, map[string]any{
		"content_locator":       locator,
		"file_name":             fileName,
		"file_mime_type":        mimeType,
		"compression_algorithm": compression.Algorithm,
		"original_size":         compression.OriginalSize,
		"compressed_size":       compression.CompressedSize,
	})
}

func (r *ContractRepository) updateByID(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
