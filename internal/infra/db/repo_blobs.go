package db

import (
	"context"
	"errors"
	"time"

	"firmadoc/internal/domain"
	"firmadoc/internal/infra/storage"

	"gorm.io/gorm"
)

// blobChunkSize bounds the bytea appended per statement when streaming
// document content into a row.
const blobChunkSize = 64 * 1024

// BlobRepository is the gorm-backed storage.BlobStore. Content is
// written in chunks inside one transaction so partial writes never
// become visible.
type BlobRepository struct {
	db *gorm.DB
}

func NewBlobRepository(db *gorm.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

func (r *BlobRepository) Put(ctx context.Context, locator string, obj storage.StoredObject) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := DocumentBlobModel{
			Locator:      locator,
			MimeType:     obj.MimeType,
			Algorithm:    obj.Algorithm,
			OriginalSize: obj.OriginalSize,
			Content:      []byte{},
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		content := obj.Content
		for start := 0; start < len(content); start += blobChunkSize {
			end := start + blobChunkSize
			if end > len(content) {
				end = len(content)
			}
			err := tx.Exec(
				"UPDATE fdc_document_blobs SET content = content || ? WHERE locator = ?",
				content[start:end], locator,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BlobRepository) Get(ctx context.Context, locator string) (*storage.StoredObject, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DocumentBlobModel
	err := r.db.WithContext(ctx).Where("locator = ?", locator).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return &storage.StoredObject{
		Content:      copyBytes(model.Content),
		MimeType:     model.MimeType,
		Algorithm:    model.Algorithm,
		OriginalSize: model.OriginalSize,
	}, nil
}
