package domain

import "time"

type ContractStatus string

const (
	ContractStatusPending  ContractStatus = "PENDING"
	ContractStatusSigned   ContractStatus = "SIGNED"
	ContractStatusRejected ContractStatus = "REJECTED"
)

type SignerRole string

const (
	// RoleClient is the initiating role. A contract carries exactly one
	// client signature and it must exist before any other role signs.
	RoleClient    SignerRole = "CLIENT"
	RoleJuridical SignerRole = "JURIDICAL"
	RoleLegal     SignerRole = "LEGAL"
)

func (r SignerRole) Valid() bool {
	switch r {
	case RoleClient, RoleJuridical, RoleLegal:
		return true
	}
	return false
}

// Signature is one signer's assertion over a document state. Superseded
// signatures of the same role are replaced at the write boundary, never
// appended alongside.
type Signature struct {
	SignerID         int64
	Name             string
	Email            string
	Document         string
	Role             SignerRole
	OriginIP         string
	SignedAt         time.Time
	KeyID            string
	SignatureImage   []byte
	DigitalSignature string // base64
}

type ContentDigest struct {
	SHA512    string
	SHA256    string
	Size      int64
	Timestamp time.Time
}

type CompressionInfo struct {
	Algorithm      string
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
}

type ContractDocument struct {
	ID                   string
	OwnerID              int64
	Title                string
	FileName             string
	FileMimeType         string
	ContentLocator       string
	KeyID                string
	Status               ContractStatus
	SignedAt             *time.Time
	InitiatingSignature  *Signature
	AdditionalSignatures []Signature
	Digest               *ContentDigest
	Compression          *CompressionInfo
	CreatedAt            time.Time
}

// SignatureByRole returns the current signature for a role, checking
// the initiating slot for RoleClient and the additional set otherwise.
func (c *ContractDocument) SignatureByRole(role SignerRole) *Signature {
	if role == RoleClient {
		return c.InitiatingSignature
	}
	for i := range c.AdditionalSignatures {
		if c.AdditionalSignatures[i].Role == role {
			return &c.AdditionalSignatures[i]
		}
	}
	return nil
}
