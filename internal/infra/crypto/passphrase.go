package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"firmadoc/internal/domain"
)

// IdentityPassphrase derives the deterministic per-document passphrase
// from the identity triple that was known at key-creation time. The
// passphrase is never persisted; whoever can supply the same triple
// can re-derive it.
func IdentityPassphrase(identity domain.Identity) (string, error) {
	if identity.ID == 0 || identity.Email == "" || identity.Document == "" {
		return "", fmt.Errorf("%w: identity requires id, email and document", domain.ErrValidation)
	}
	canonical, err := CanonicalizeAttributes(map[string]any{
		"id":       identity.ID,
		"email":    identity.Email,
		"document": identity.Document,
	})
	if err != nil {
		return "", err
	}
	return string(canonical), nil
}

// PassphraseFingerprint is stored alongside the custody record for
// diagnostics. SHA-256 is one-way; it never reconstructs the passphrase.
func PassphraseFingerprint(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}
