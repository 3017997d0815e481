package store

import "context"

// Collection keys. Each key holds a whole JSON-encoded list that is read and
// replaced wholesale on every mutation.
const (
	KeyStudents        = "students"
	KeyAttendance      = "attendance"
	KeyPendingSignouts = "pending_signouts"
)

// RecordStore is the persistence contract for the three collections. Get
// decodes the stored list into out and leaves it empty when the key has never
// been written; Set replaces the list. Implementations provide no
// transactional guarantees across Get/Set, callers serialize their own
// read-modify-write cycles.
type RecordStore interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, val any) error
}
