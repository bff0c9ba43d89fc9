package errors

import stderrors "errors"

// Error classes shared by every ledger package. Package level sentinels wrap
// exactly one class so callers can branch with errors.Is without knowing the
// concrete sentinel.
var (
	ErrValidation       = stderrors.New("validation failed")
	ErrAuthorization    = stderrors.New("unauthorized")
	ErrConcurrency      = stderrors.New("concurrent update conflict")
	ErrNotFound         = stderrors.New("not found")
	ErrAlreadyFinalized = stderrors.New("already finalized")
)

// Class identifies the category of a ledger error.
type Class string

const (
	ClassValidation       Class = "validation"
	ClassAuthorization    Class = "authorization"
	ClassConcurrency      Class = "concurrency"
	ClassNotFound         Class = "not_found"
	ClassAlreadyFinalized Class = "already_finalized"
	ClassInternal         Class = "internal"
)

// ClassOf reports the class of err. Errors outside the taxonomy are internal.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrValidation):
		return ClassValidation
	case stderrors.Is(err, ErrAuthorization):
		return ClassAuthorization
	case stderrors.Is(err, ErrAlreadyFinalized):
		return ClassAlreadyFinalized
	case stderrors.Is(err, ErrNotFound):
		return ClassNotFound
	case stderrors.Is(err, ErrConcurrency):
		return ClassConcurrency
	default:
		return ClassInternal
	}
}

// Retryable reports whether the caller may transparently retry the operation.
// Only concurrency conflicts qualify; everything else is surfaced.
func Retryable(err error) bool {
	return ClassOf(err) == ClassConcurrency
}
