package posting

import "errors"

var (
	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicatePosting indicates a posting with the same duplicate hash
	// already committed. Detected inside the posting transaction before any
	// side effect survives.
	ErrDuplicatePosting = errors.New("duplicate posting")
	// ErrNotCancelable guards cancellation: only TO_DELIVER and FINALIZED
	// documents can be reversed, and only once.
	ErrNotCancelable = errors.New("document not cancelable")
	// ErrReversalInconsistency indicates the original postings or line
	// snapshots cannot be reconstructed; cancellation is blocked rather than
	// posting an approximate reversal.
	ErrReversalInconsistency = errors.New("reversal inconsistency")
	// ErrValidation indicates a malformed posting request.
	ErrValidation = errors.New("invalid posting request")
)
