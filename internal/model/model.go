package model

import "time"

// Pending sign-out statuses. A record only ever moves pending -> resolved in
// storage; "expired" is a display status computed from the deadline at read
// time and is never written back.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusExpired  = "expired"
)

// Resolvers for a pending sign-out.
const (
	ResolvedByStudent = "student"
	ResolvedByAdmin   = "admin"
)

// Attendance event actions.
const (
	ActionSignIn  = "signin"
	ActionSignOut = "signout"
)

// Student represents a registered lab member.
type Student struct {
	UFID      string    `json:"ufid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceEvent represents a single attendance log entry. A signout event
// created for a forgotten departure carries PendingTimestamp until the linked
// pending record resolves and overwrites Timestamp with the real instant.
// PendingTimestamp serializes without omitempty: the cleared false must
// round-trip, or a stale true survives in reused decode buffers.
type AttendanceEvent struct {
	ID               string     `json:"id"`
	UFID             string     `json:"ufid"`
	Name             string     `json:"name,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
	Action           string     `json:"action"`
	PendingTimestamp bool       `json:"pending_timestamp"`
	PendingRecordID  string     `json:"pending_record_id,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// PendingSignout tracks a session whose end time was not captured at
// departure. Token is the sole public lookup key for the student form and is
// only honored while Status is pending.
type PendingSignout struct {
	ID                 string     `json:"id"`
	UFID               string     `json:"ufid"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Token              string     `json:"token"`
	SignInAt           time.Time  `json:"sign_in_at"`
	Deadline           time.Time  `json:"deadline"`
	Status             string     `json:"status"`
	SubmittedSignOutAt *time.Time `json:"submitted_sign_out_at,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy         string     `json:"resolved_by,omitempty"`
	PresentOnly        bool       `json:"present_only,omitempty"`
}

// DisplayStatus reports what the dashboard should show for the record at the
// given instant: a stored pending record past its deadline reads as expired,
// but stays pending in storage and remains admin-resolvable.
func (p PendingSignout) DisplayStatus(now time.Time) string {
	if p.Status == StatusPending && now.After(p.Deadline) {
		return StatusExpired
	}
	return p.Status
}

// HoursWorked returns the credited session length in hours, zero until the
// record is resolved. The stored times keep full precision; rounding for
// display happens at the edge.
func (p PendingSignout) HoursWorked() float64 {
	if p.SubmittedSignOutAt == nil {
		return 0
	}
	h := p.SubmittedSignOutAt.Sub(p.SignInAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}
