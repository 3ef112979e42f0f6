package db

import (
	"encoding/base64"
	"time"

	"firmadoc/internal/domain"
)

type DocumentKeyModel struct {
	KeyID                 string    `gorm:"primaryKey;size:64"`
	PublicKey             string    `gorm:"type:text;not null"`
	EncryptedPrivateKey   string    `gorm:"type:text;not null"`
	IV                    string    `gorm:"not null"`
	Salt                  string    `gorm:"not null"`
	Algorithm             string    `gorm:"not null"`
	PassphraseFingerprint string    `gorm:"size:64"`
	CreatedAt             time.Time `gorm:"not null"`
}

func (DocumentKeyModel) TableName() string { return "fdc_document_keys" }

type ContractModel struct {
	ID                   string `gorm:"type:uuid;primaryKey"`
	OwnerID              int64  `gorm:"index;not null"`
	Title                string `gorm:"not null"`
	FileName             string
	FileMimeType         string
	ContentLocator       string
	KeyID                string `gorm:"size:64;index;not null"`
	Status               string `gorm:"not null"`
	SignedAt             *time.Time
	SignedBy             []byte `gorm:"type:jsonb"`
	AdditionalSignatures []byte `gorm:"type:jsonb"`
	DigestSHA512         string
	DigestSHA256         string
	DigestSize           int64
	DigestTimestamp      *time.Time
	CompressionAlgorithm string
	OriginalSize         int64
	CompressedSize       int64
	CreatedAt            time.Time `gorm:"not null"`
}

func (ContractModel) TableName() string { return "fdc_contracts" }

type AuditRecordModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Action     string `gorm:"index;not null"`
	ActorID    int64  `gorm:"index;not null"`
	ContractID string `gorm:"type:uuid;index"`
	OriginIP   string
	Details    []byte    `gorm:"type:jsonb"`
	Severity   string    `gorm:"index;not null"`
	Success    bool      `gorm:"not null"`
	Timestamp  time.Time `gorm:"index;not null"`
}

func (AuditRecordModel) TableName() string { return "fdc_audit_log" }

type DocumentBlobModel struct {
	Locator      string `gorm:"primaryKey"`
	MimeType     string
	Algorithm    string `gorm:"not null"`
	OriginalSize int64
	Content      []byte    `gorm:"type:bytea"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (DocumentBlobModel) TableName() string { return "fdc_document_blobs" }

// signatureJSONModel is the persisted form of one signature inside the
// contract row's JSON columns.
type signatureJSONModel struct {
	UserID           int64     `json:"userId"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Document         string    `json:"document"`
	Type             string    `json:"type"`
	IP               string    `json:"ip"`
	SignedAt         time.Time `json:"signedAt"`
	KeyID            string    `json:"keyId"`
	SignatureImage   string    `json:"signatureImage,omitempty"`
	DigitalSignature string    `json:"digitalSignature"`
}

func signatureJSON(sig domain.Signature) signatureJSONModel {
	return signatureJSONModel{
		UserID:           sig.SignerID,
		Name:             sig.Name,
		Email:            sig.Email,
		Document:         sig.Document,
		Type:             string(sig.Role),
		IP:               sig.OriginIP,
		SignedAt:         sig.SignedAt,
		KeyID:            sig.KeyID,
		SignatureImage:   base64.StdEncoding.EncodeToString(sig.SignatureImage),
		DigitalSignature: sig.DigitalSignature,
	}
}

func (m signatureJSONModel) toDomain() domain.Signature {
	image, _ := base64.StdEncoding.DecodeString(m.SignatureImage)
	return domain.Signature{
		SignerID:         m.UserID,
		Name:             m.Name,
		Email:            m.Email,
		Document:         m.Document,
		Role:             domain.SignerRole(m.Type),
		OriginIP:         m.IP,
		SignedAt:         m.SignedAt,
		KeyID:            m.KeyID,
		SignatureImage:   image,
		DigitalSignature: m.DigitalSignature,
	}
}

func contractFromModel(m ContractModel) (*domain.ContractDocument, error) {
	signedBy, err := unmarshalSignature(m.SignedBy)
	if err != nil {
		return nil, err
	}
	additional, err := unmarshalSignatures(m.AdditionalSignatures)
	if err != nil {
		return nil, err
	}

	c := &domain.ContractDocument{
		ID:                   m.ID,
		OwnerID:              m.OwnerID,
		Title:                m.Title,
		FileName:             m.FileName,
		FileMimeType:         m.FileMimeType,
		ContentLocator:       m.ContentLocator,
		KeyID:                m.KeyID,
		Status:               domain.ContractStatus(m.Status),
		SignedAt:             m.SignedAt,
		InitiatingSignature:  signedBy,
		AdditionalSignatures: additional,
		CreatedAt:            m.CreatedAt,
	}
	if m.DigestSHA512 != "" && m.DigestTimestamp != nil {
		c.Digest = &domain.ContentDigest{
			SHA512:    m.DigestSHA512,
			SHA256:    m.DigestSHA256,
			Size:      m.DigestSize,
			Timestamp: *m.DigestTimestamp,
		}
	}
	if m.CompressionAlgorithm != "" {
		c.Compression = &domain.CompressionInfo{
			Algorithm:      m.CompressionAlgorithm,
			OriginalSize:   m.OriginalSize,
			CompressedSize: m.CompressedSize,
		}
		if m.CompressedSize > 0 {
			c.Compression.Ratio = float64(m.OriginalSize) / float64(m.CompressedSize)
		}
	}
	return c, nil
}
