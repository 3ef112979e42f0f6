package domain

import "time"

// DocumentKey is the custody record for one document's key pair. KeyID
// is the hex SHA-256 of the public key PEM, so key identity is
// content-addressed and verifiable without trusting storage. Records
// are created once and never mutated or deleted.
type DocumentKey struct {
	KeyID               string
	PublicKey           string // SPKI PEM
	EncryptedPrivateKey string // serialized encryption envelope
	IV                  string // base64, duplicated out of the envelope for diagnostics
	Salt                string // base64
	Algorithm           string
	// PassphraseFingerprint is the SHA-256 of the canonical derivation
	// passphrase. Diagnostics only; it cannot reconstruct the passphrase.
	PassphraseFingerprint string
	CreatedAt             time.Time
}
