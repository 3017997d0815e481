package pending

import "errors"

// Validation failures surfaced to the form and dashboard. Store failures are
// returned as wrapped errors from the persistence layer and are not part of
// this taxonomy.
var (
	// ErrNotFound means no record matches the token or id.
	ErrNotFound = errors.New("pending signout not found")

	// ErrAlreadyResolved means the record left the pending state; the token
	// is no longer usable for submission.
	ErrAlreadyResolved = errors.New("pending signout already resolved")

	// ErrDeadlineExpired means the server clock is past the record's
	// deadline. Student path only; admins may resolve at any time.
	ErrDeadlineExpired = errors.New("submission deadline has passed")

	// ErrInvalidTime means the sign-out time is missing, unparseable, or not
	// strictly after the sign-in instant.
	ErrInvalidTime = errors.New("sign-out time must be after sign-in")

	// ErrCrossDay means the sign-out falls on a different calendar day than
	// the sign-in in the reference timezone. Overnight sessions are treated
	// as data-entry errors rather than large hour counts.
	ErrCrossDay = errors.New("sign-out must be on the same day as sign-in")
)
