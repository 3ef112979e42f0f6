package domain

import "context"

// Identity carries the user attributes the signing core needs. The
// id/email/document triple is also the input to passphrase derivation,
// so any caller able to supply the same triple can unlock the
// document's private key. That trust boundary is intentional: the
// passphrase is never stored, only re-derived.
type Identity struct {
	ID       int64
	Email    string
	Document string
	Name     string
	Role     string
}

type UserDirectory interface {
	FindUserByID(ctx context.Context, id int64) (*Identity, error)
}
