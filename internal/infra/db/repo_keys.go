package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firmadoc/internal/domain"

	"gorm.io/gorm"
)

// lobChunkSize bounds how much of the encrypted private key is bound
// into a single statement. The envelope JSON for a 4096-bit PKCS#8 key
// runs several KiB and arrives as one string; writing it in chunks
// keeps the write path from holding one oversized bind.
const lobChunkSize = 4 * 1024

type DocumentKeyRepository struct {
	db *gorm.DB
}

func NewDocumentKeyRepository(db *gorm.DB) *DocumentKeyRepository {
	return &DocumentKeyRepository{db: db}
}

// Create inserts a custody record. The encrypted private key is
// streamed into the row in chunks inside one transaction, so either
// the full envelope lands or nothing does. Key records are immutable:
// there is no update or delete on this repository.
func (r *DocumentKeyRepository) Create(ctx context.Context, key domain.DocumentKey) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if key.KeyID == "" || key.PublicKey == "" || key.EncryptedPrivateKey == "" {
		return fmt.Errorf("%w: key record incomplete", domain.ErrValidation)
	}
	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := DocumentKeyModel{
			KeyID:                 key.KeyID,
			PublicKey:             key.PublicKey,
			EncryptedPrivateKey:   "",
			IV:                    key.IV,
			Salt:                  key.Salt,
			Algorithm:             key.Algorithm,
			PassphraseFingerprint: key.PassphraseFingerprint,
			CreatedAt:             createdAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}

		envelope := key.EncryptedPrivateKey
		for start := 0; start < len(envelope); start += lobChunkSize {
			end := start + lobChunkSize
			if end > len(envelope) {
				end = len(envelope)
			}
			err := tx.Exec(
				"UPDATE fdc_document_keys SET encrypted_private_key = encrypted_private_key || ? WHERE key_id = ?",
				envelope[start:end], key.KeyID,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *DocumentKeyRepository) FindByKeyID(ctx context.Context, keyID string) (*domain.DocumentKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DocumentKeyModel
	err := r.db.WithContext(ctx).Where("key_id = ?", keyID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, err
	}
	return documentKeyFromModel(model), nil
}

func (r *DocumentKeyRepository) GetPublicKey(ctx context.Context, keyID string) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var model DocumentKeyModel
	err := r.db.WithContext(ctx).
		Select("key_id", "public_key").
		Where("key_id = ?", keyID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrKeyNotFound
		}
		return "", err
	}
	return model.PublicKey, nil
}

func documentKeyFromModel(model DocumentKeyModel) *domain.DocumentKey {
	return &domain.DocumentKey{
		KeyID:                 model.KeyID,
		PublicKey:             model.PublicKey,
		EncryptedPrivateKey:   model.EncryptedPrivateKey,
		IV:                    model.IV,
		Salt:                  model.Salt,
		Algorithm:             model.Algorithm,
		PassphraseFingerprint: model.PassphraseFingerprint,
		CreatedAt:             model.CreatedAt,
	}
}
