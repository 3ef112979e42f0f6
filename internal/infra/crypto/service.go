package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"firmadoc/internal/domain"
)

// Service bundles the custody primitives behind one receiver so the
// service layer can depend on an interface instead of package functions.
type Service struct {
	now func() time.Time
}

func NewService(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now}
}

// MintDocumentKey generates a fresh RSA pair and seals the private key
// under the identity-derived passphrase. The plaintext private key is
// zeroed before returning; only the custody record survives.
func (s *Service) MintDocumentKey(identity domain.Identity) (*domain.DocumentKey, error) {
	passphrase, err := IdentityPassphrase(identity)
	if err != nil {
		return nil, err
	}

	pair, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, err
	}
	defer Zero(pair.PrivateKeyPEM)

	env, err := Encrypt(pair.PrivateKeyPEM, passphrase)
	if err != nil {
		return nil, err
	}
	sealed, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	return &domain.DocumentKey{
		KeyID:                 KeyIDFromPublicKey(pair.PublicKeyPEM),
		PublicKey:             pair.PublicKeyPEM,
		EncryptedPrivateKey:   string(sealed),
		IV:                    base64.StdEncoding.EncodeToString(env.IV),
		Salt:                  base64.StdEncoding.EncodeToString(env.Salt),
		Algorithm:             EncryptionAlgorithm,
		PassphraseFingerprint: PassphraseFingerprint(passphrase),
		CreatedAt:             s.now().UTC(),
	}, nil
}

// UnsealPrivateKey re-derives the passphrase from the identity and
// opens the custody envelope. The caller owns zeroing the returned PEM.
func (s *Service) UnsealPrivateKey(key *domain.DocumentKey, identity domain.Identity) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: nil document key", domain.ErrValidation)
	}
	passphrase, err := IdentityPassphrase(identity)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(key.EncryptedPrivateKey), &env); err != nil {
		return nil, fmt.Errorf("%w: corrupt custody envelope", domain.ErrValidation)
	}
	return Decrypt(&env, passphrase)
}

func (s *Service) Sign(privateKeyPEM []byte, payload []byte) (string, error) {
	return SignSHA512(privateKeyPEM, payload)
}

func (s *Service) Verify(publicKeyPEM string, payload []byte, signatureB64 string) (bool, string) {
	result := VerifySHA512(publicKeyPEM, payload, signatureB64)
	return result.IsValid, result.Reason
}

func (s *Service) Canonicalize(attrs map[string]any) ([]byte, error) {
	return CanonicalizeAttributes(attrs)
}

func (s *Service) ZeroKey(material []byte) {
	Zero(material)
}
