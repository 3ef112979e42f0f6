package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"firmadoc/internal/domain"
)

const (
	SignatureAlgorithm = "RSA-SHA512"

	rsaModulusBits = 4096
)

type KeyPair struct {
	PublicKeyPEM  string
	PrivateKeyPEM []byte
}

// GenerateRSAKeyPair mints a 4096-bit RSA pair, public key as SPKI PEM
// and private key as PKCS#8 PEM. The caller owns zeroing the private
// PEM once it has been sealed into an envelope.
func GenerateRSAKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaModulusBits)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa keygen: %v", domain.ErrSigningFailed, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", domain.ErrSigningFailed, err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal private key: %v", domain.ErrSigningFailed, err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	return &KeyPair{PublicKeyPEM: string(pubPEM), PrivateKeyPEM: privPEM}, nil
}

// KeyIDFromPublicKey is the content-addressed key identifier: the hex
// SHA-256 digest of the public key PEM.
func KeyIDFromPublicKey(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])
}

// SignSHA512 signs data with RSA PKCS#1 v1.5 over SHA-512 and returns
// the signature base64-encoded.
func SignSHA512(privateKeyPEM []byte, data []byte) (string, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return "", fmt.Errorf("%w: private key is not PEM", domain.ErrSigningFailed)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: parse private key: %v", domain.ErrSigningFailed, err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: not an RSA private key", domain.ErrSigningFailed)
	}

	digest := sha512.Sum512(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA512, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyResult is a structured outcome: verification never errors, a
// negative result carries the reason instead.
type VerifyResult struct {
	IsValid bool
	Reason  string
}

func VerifySHA512(publicKeyPEM string, data []byte, signatureB64 string) VerifyResult {
	pub, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return VerifyResult{Reason: err.Error()}
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return VerifyResult{Reason: "invalid base64 signature"}
	}
	digest := sha512.Sum512(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest[:], sig); err != nil {
		return VerifyResult{Reason: "signature mismatch"}
	}
	return VerifyResult{IsValid: true}
}

func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("public key is not PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}
