package db

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"

	"firmadoc/internal/domain"
)

var errDBUnavailable = errors.New("db unavailable")

func newUUID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	bytes[6] = (bytes[6] & 0x0f) | 0x40
	bytes[8] = (bytes[8] & 0x3f) | 0x80
	hexStr := hex.EncodeToString(bytes)
	return hexStr[0:8] + "-" + hexStr[8:12] + "-" + hexStr[12:16] + "-" + hexStr[16:20] + "-" + hexStr[20:32], nil
}

func NewUUID() (string, error) {
	return newUUID()
}

func copyBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func marshalSignature(sig *domain.Signature) ([]byte, error) {
	if sig == nil {
		return nil, nil
	}
	return json.Marshal(signatureJSON(*sig))
}

func unmarshalSignature(data []byte) (*domain.Signature, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var wire signatureJSONModel
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	sig := wire.toDomain()
	return &sig, nil
}

func marshalSignatures(sigs []domain.Signature) ([]byte, error) {
	wire := make([]signatureJSONModel, 0, len(sigs))
	for _, sig := range sigs {
		wire = append(wire, signatureJSON(sig))
	}
	return json.Marshal(wire)
}

func unmarshalSignatures(data []byte) ([]domain.Signature, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var wire []signatureJSONModel
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Signature, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}
