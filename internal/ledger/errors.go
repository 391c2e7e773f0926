package ledger

import "errors"

var (
	// ErrNotAuthenticated means no user identity reached the ledger. Callers
	// redirect to login; retrying cannot help.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrValidation covers missing or malformed input, including an
	// unresolvable transaction type and a category whose kind disagrees with
	// the transaction's.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced row does not exist or belongs
	// to another user.
	ErrNotFound = errors.New("not found")

	// ErrHasDependents blocks deleting an account or category that still has
	// transactions referencing it.
	ErrHasDependents = errors.New("has dependent transactions")

	// ErrPersistence wraps store-level rejections. The ledger never retries.
	ErrPersistence = errors.New("persistence error")

	// ErrPartialFailure means the transaction row committed but the account
	// balance update did not, leaving the cached balance behind its history.
	// Must never be collapsed into ErrPersistence: it is the one failure that
	// leaves inconsistent state and needs the reconcile path.
	ErrPartialFailure = errors.New("transaction recorded but balance update failed")
)
