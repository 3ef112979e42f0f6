package usecase

import (
	"context"
	"errors"
	"fmt"

	"firmadoc/internal/domain"
)

// SigningEngine owns the key lifecycle: minting per-document keys,
// unsealing them to sign, and verifying signatures against the stored
// public key. Decrypted key material never leaves this type.
type SigningEngine struct {
	Keys   KeyRepository
	Crypto CryptoService
	Audit  *AuditTrail
}

// GenerateDocumentKey mints and persists a custody record for one
// document, sealed under the identity-derived passphrase.
func (e *SigningEngine) GenerateDocumentKey(ctx context.Context, identity domain.Identity) (*domain.DocumentKey, error) {
	key, err := e.Crypto.MintDocumentKey(identity)
	if err != nil {
		return nil, err
	}
	if err := e.Keys.Create(ctx, *key); err != nil {
		return nil, fmt.Errorf("persist document key: %w", err)
	}

	_ = e.Audit.Record(ctx, AuditEntry{
		Action:  domain.AuditKeyGenerated,
		ActorID: identity.ID,
		Details: map[string]any{"key_id": key.KeyID},
		Success: true,
	})
	return key, nil
}

// SignPayload unseals the document key with the unlocking identity and
// signs the payload. A passphrase mismatch is recorded as a failed
// authentication before it surfaces to the caller.
func (e *SigningEngine) SignPayload(ctx context.Context, keyID string, unlocking domain.Identity, payload []byte) (string, error) {
	key, err := e.Keys.FindByKeyID(ctx, keyID)
	if err != nil {
		return "", err
	}

	privateKey, err := e.Crypto.UnsealPrivateKey(key, unlocking)
	if err != nil {
		if errors.Is(err, domain.ErrAuthenticationFailed) {
			_ = e.Audit.Record(ctx, AuditEntry{
				Action:  domain.AuditFailedAuth,
				ActorID: unlocking.ID,
				Details: map[string]any{"key_id": keyID},
			})
		}
		return "", err
	}
	defer e.Crypto.ZeroKey(privateKey)

	signature, err := e.Crypto.Sign(privateKey, payload)
	if err != nil {
		return "", err
	}

	_ = e.Audit.Record(ctx, AuditEntry{
		Action:  domain.AuditKeyUsed,
		ActorID: unlocking.ID,
		Details: map[string]any{"key_id": keyID},
		Success: true,
	})
	return signature, nil
}

// VerifyPayload checks a signature against the stored public key. A bad
// signature is a negative result with a reason, not an error.
func (e *SigningEngine) VerifyPayload(ctx context.Context, keyID string, payload []byte, signatureB64 string) (bool, string, error) {
	publicKey, err := e.Keys.GetPublicKey(ctx, keyID)
	if err != nil {
		return false, "", err
	}
	isValid, reason := e.Crypto.Verify(publicKey, payload, signatureB64)
	return isValid, reason, nil
}
