package domain

import "errors"

var (
	ErrValidation           = errors.New("invalid input")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrKeyNotFound          = errors.New("signing key not found")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrStateConflict        = errors.New("state conflict")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrSigningFailed        = errors.New("signing failed")
	ErrNoBaseline           = errors.New("no integrity baseline recorded")
)
