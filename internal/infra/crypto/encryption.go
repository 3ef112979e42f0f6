package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"firmadoc/internal/domain"
)

const (
	EncryptionAlgorithm = "aes-256-gcm"

	keyLength     = 32
	ivLength      = 16
	authTagLength = 16
	saltLength    = 32
	kdfIterations = 310000

	envelopeVersion = 1
)

// Envelope holds one AEAD encryption result plus everything needed to
// re-derive the symmetric key from the original passphrase. The auth
// tag is kept apart from the ciphertext so a decode failure is
// distinguishable from a tag failure.
type Envelope struct {
	Ciphertext []byte
	Salt       []byte
	IV         []byte
	AuthTag    []byte
	Algorithm  string
}

// DeriveKey runs PBKDF2-SHA512 over the passphrase. The iteration
// count matches the custody records already in production; changing it
// breaks decryption of every stored key.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", domain.ErrValidation)
	}
	if len(salt) != saltLength {
		return nil, fmt.Errorf("%w: salt must be %d bytes", domain.ErrValidation, saltLength)
	}
	return pbkdf2.Key([]byte(passphrase), salt, kdfIterations, keyLength, sha512.New), nil
}

// Encrypt seals plaintext under a passphrase-derived key with a fresh
// random salt and IV. The derived key is zeroed before returning.
func Encrypt(plaintext []byte, passphrase string) (*Envelope, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - authTagLength

	return &Envelope{
		Ciphertext: sealed[:tagStart],
		Salt:       salt,
		IV:         iv,
		AuthTag:    sealed[tagStart:],
		Algorithm:  EncryptionAlgorithm,
	}, nil
}

// Decrypt opens an envelope with a passphrase-derived key. A tag
// verification failure surfaces as ErrAuthenticationFailed and no
// partial plaintext is ever returned.
func Decrypt(env *Envelope, passphrase string) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", domain.ErrValidation)
	}
	if env.Algorithm != EncryptionAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrValidation, env.Algorithm)
	}
	if len(env.IV) != ivLength || len(env.AuthTag) != authTagLength {
		return nil, fmt.Errorf("%w: malformed envelope", domain.ErrValidation)
	}

	key, err := DeriveKey(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+authTagLength)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted data", domain.ErrAuthenticationFailed)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return aead, nil
}

// Zero overwrites sensitive byte material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

type envelopeJSON struct {
	Encrypted string `json:"encrypted"`
	Salt      string `json:"salt"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
	Algorithm string `json:"algorithm"`
}

// MarshalJSON encodes binary fields as base64. This is the form the
// custody store persists.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelopeJSON{
		Encrypted: base64.StdEncoding.EncodeToString(e.Ciphertext),
		Salt:      base64.StdEncoding.EncodeToString(e.Salt),
		IV:        base64.StdEncoding.EncodeToString(e.IV),
		AuthTag:   base64.StdEncoding.EncodeToString(e.AuthTag),
		Algorithm: e.Algorithm,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire envelopeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if wire.Encrypted == "" || wire.Salt == "" || wire.IV == "" || wire.AuthTag == "" || wire.Algorithm == "" {
		return fmt.Errorf("%w: envelope field missing", domain.ErrValidation)
	}
	var err error
	if e.Ciphertext, err = base64.StdEncoding.DecodeString(wire.Encrypted); err != nil {
		return fmt.Errorf("%w: invalid base64 ciphertext", domain.ErrValidation)
	}
	if e.Salt, err = base64.StdEncoding.DecodeString(wire.Salt); err != nil {
		return fmt.Errorf("%w: invalid base64 salt", domain.ErrValidation)
	}
	if e.IV, err = base64.StdEncoding.DecodeString(wire.IV); err != nil {
		return fmt.Errorf("%w: invalid base64 iv", domain.ErrValidation)
	}
	if e.AuthTag, err = base64.StdEncoding.DecodeString(wire.AuthTag); err != nil {
		return fmt.Errorf("%w: invalid base64 auth tag", domain.ErrValidation)
	}
	e.Algorithm = wire.Algorithm
	return nil
}

// MarshalBinary emits a length-tagged record: one version byte, then
// algorithm, salt, iv, auth tag and ciphertext each prefixed with a
// big-endian uint32 length.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	fields := [][]byte{[]byte(e.Algorithm), e.Salt, e.IV, e.AuthTag, e.Ciphertext}
	size := 1
	for _, f := range fields {
		size += 4 + len(f)
	}
	out := make([]byte, 0, size)
	out = append(out, envelopeVersion)
	for _, f := range fields {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(f)))
		out = append(out, l[:]...)
		out = append(out, f...)
	}
	return out, nil
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) < 1 || data[0] != envelopeVersion {
		return fmt.Errorf("%w: unsupported envelope version", domain.ErrValidation)
	}
	rest := data[1:]
	fields := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		if len(rest) < 4 {
			return fmt.Errorf("%w: truncated envelope", domain.ErrValidation)
		}
		l := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < l {
			return fmt.Errorf("%w: truncated envelope field", domain.ErrValidation)
		}
		field := make([]byte, l)
		copy(field, rest[:l])
		fields = append(fields, field)
		rest = rest[l:]
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: trailing envelope bytes", domain.ErrValidation)
	}
	e.Algorithm = string(fields[0])
	e.Salt = fields[1]
	e.IV = fields[2]
	e.AuthTag = fields[3]
	e.Ciphertext = fields[4]
	return nil
}
