package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"labtrack/internal/model"
	"labtrack/internal/store"
)

// Service is the pending sign-out engine: it creates, looks up, and resolves
// pending records, and propagates resolved times back into the attendance
// log. All mutations run behind a single mutex, which serializes the
// read-modify-write cycles against the whole-list store within this process;
// writers in other processes remain last-writer-wins.
type Service struct {
	mu      sync.Mutex
	records store.RecordStore
	loc     *time.Location
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Now reports the engine's current time. Callers that render display
// status must use this clock, not their own, so views and resolution
// decisions agree.
func (s *Service) Now() time.Time { return s.now() }

// NewService creates an engine over the given record store. loc is the
// reference timezone used for all calendar-day comparisons and clock-time
// reconstruction.
func NewService(records store.RecordStore, loc *time.Location, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{records: records, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a pending sign-out. An empty id is assigned a fresh uuid;
// re-submitting an existing id is a no-op that returns the stored record, so
// a retrying caller never duplicates.
func (s *Service) Create(ctx context.Context, id, ufid, name, email string, signInAt, deadline time.Time) (model.PendingSignout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return model.PendingSignout{}, err
	}
	if id != "" {
		for _, r := range recs {
			if r.ID == id {
				return r, nil
			}
		}
	} else {
		id = uuid.NewString()
	}

	token, err := s.uniqueToken(recs)
	if err != nil {
		return model.PendingSignout{}, fmt.Errorf("generate token: %w", err)
	}

	rec := model.PendingSignout{
		ID:       id,
		UFID:     ufid,
		Name:     name,
		Email:    email,
		Token:    token,
		SignInAt: signInAt.UTC(),
		Deadline: deadline.UTC(),
		Status:   model.StatusPending,
	}
	recs = append(recs, rec)
	if err := s.records.Set(ctx, store.KeyPendingSignouts, recs); err != nil {
		return model.PendingSignout{}, err
	}
	return rec, nil
}

func (s *Service) uniqueToken(recs []model.PendingSignout) (string, error) {
	for {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		taken := false
		for _, r := range recs {
			if r.Token == token {
				taken = true
				break
			}
		}
		if !taken {
			return token, nil
		}
	}
}

// LookupByToken returns the record for the student form. It returns records
// in any status so the caller can tell "not found" from "already resolved"
// from "deadline passed".
func (s *Service) LookupByToken(ctx context.Context, token string) (model.PendingSignout, error) {
	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return model.PendingSignout{}, err
	}
	for _, r := range recs {
		if r.Token == token {
			return r, nil
		}
	}
	return model.PendingSignout{}, ErrNotFound
}

// ResolveByStudent closes a pending record from the token form. clockTime is
// an "HH:MM" wall-clock time; the full instant is reconstructed on the
// sign-in's calendar date in the reference timezone.
func (s *Service) ResolveByStudent(ctx context.Context, token, clockTime string) (model.PendingSignout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, idx, recs, err := s.findByToken(ctx, token)
	if err != nil {
		return model.PendingSignout{}, err
	}
	// Status and deadline are rejected before the clock time is even parsed,
	// so a dead link reports why it is dead rather than nitpicking input.
	if rec.Status != model.StatusPending {
		return model.PendingSignout{}, ErrAlreadyResolved
	}
	if s.now().After(rec.Deadline) {
		return model.PendingSignout{}, ErrDeadlineExpired
	}
	signOutAt, err := s.reconstruct(rec.SignInAt, clockTime)
	if err != nil {
		return model.PendingSignout{}, ErrInvalidTime
	}
	return s.resolveStudent(ctx, recs, idx, signOutAt)
}

// ResolveByStudentAt is the instant-based variant of ResolveByStudent, for
// callers that already hold a full sign-out timestamp. Preconditions are
// checked in order: existence, pending status, deadline, time validity,
// same-day.
func (s *Service) ResolveByStudentAt(ctx context.Context, token string, signOutAt time.Time) (model.PendingSignout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, recs, err := s.findByToken(ctx, token)
	if err != nil {
		return model.PendingSignout{}, err
	}
	return s.resolveStudent(ctx, recs, idx, signOutAt.UTC())
}

// findByToken loads the collection and locates the record. Callers hold s.mu.
func (s *Service) findByToken(ctx context.Context, token string) (model.PendingSignout, int, []model.PendingSignout, error) {
	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return model.PendingSignout{}, 0, nil, err
	}
	for i, r := range recs {
		if r.Token == token {
			return r, i, recs, nil
		}
	}
	return model.PendingSignout{}, 0, nil, ErrNotFound
}

func (s *Service) resolveStudent(ctx context.Context, recs []model.PendingSignout, idx int, signOutAt time.Time) (model.PendingSignout, error) {
	rec := recs[idx]
	if rec.Status != model.StatusPending {
		return model.PendingSignout{}, ErrAlreadyResolved
	}
	now := s.now()
	if now.After(rec.Deadline) {
		return model.PendingSignout{}, ErrDeadlineExpired
	}
	if !signOutAt.After(rec.SignInAt) {
		return model.PendingSignout{}, ErrInvalidTime
	}
	if !s.sameDay(rec.SignInAt, signOutAt) {
		return model.PendingSignout{}, ErrCrossDay
	}

	rec.Status = model.StatusResolved
	rec.ResolvedBy = model.ResolvedByStudent
	rec.ResolvedAt = &now
	rec.SubmittedSignOutAt = &signOutAt
	recs[idx] = rec
	if err := s.records.Set(ctx, store.KeyPendingSignouts, recs); err != nil {
		return model.PendingSignout{}, err
	}
	if err := s.reconcile(ctx, rec); err != nil {
		return model.PendingSignout{}, err
	}
	return rec, nil
}

// AdminResolution carries the dashboard's closing input. PresentOnly credits
// zero hours; otherwise SignOutAt is required.
type AdminResolution struct {
	SignOutAt   *time.Time
	PresentOnly bool
}

// ResolveByAdmin closes a pending record from the dashboard. There is no
// deadline or same-day check: the admin is trusted to correct anomalies.
func (s *Service) ResolveByAdmin(ctx context.Context, id string, res AdminResolution) (model.PendingSignout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return model.PendingSignout{}, err
	}
	idx := -1
	for i, r := range recs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.PendingSignout{}, ErrNotFound
	}
	rec := recs[idx]
	if rec.Status != model.StatusPending {
		return model.PendingSignout{}, ErrAlreadyResolved
	}

	now := s.now()
	switch {
	case res.PresentOnly:
		signOutAt := rec.SignInAt
		rec.SubmittedSignOutAt = &signOutAt
		rec.PresentOnly = true
	case res.SignOutAt != nil:
		signOutAt := res.SignOutAt.UTC()
		if !signOutAt.After(rec.SignInAt) {
			return model.PendingSignout{}, ErrInvalidTime
		}
		rec.SubmittedSignOutAt = &signOutAt
	default:
		return model.PendingSignout{}, ErrInvalidTime
	}

	rec.Status = model.StatusResolved
	rec.ResolvedBy = model.ResolvedByAdmin
	rec.ResolvedAt = &now
	recs[idx] = rec
	if err := s.records.Set(ctx, store.KeyPendingSignouts, recs); err != nil {
		return model.PendingSignout{}, err
	}
	if err := s.reconcile(ctx, rec); err != nil {
		return model.PendingSignout{}, err
	}
	return rec, nil
}

// reconcile overwrites the provisional signout event's timestamp with the
// resolved instant. A missing event is not an error, the attendance log may
// have been edited independently.
func (s *Service) reconcile(ctx context.Context, rec model.PendingSignout) error {
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return err
	}
	idx := -1
	for i, e := range events {
		if e.PendingRecordID == rec.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// fallback: match on student with a still-provisional signout
		for i, e := range events {
			if e.UFID == rec.UFID && e.PendingTimestamp && e.Action == model.ActionSignOut {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil
	}
	events[idx].Timestamp = *rec.SubmittedSignOutAt
	events[idx].PendingTimestamp = false
	events[idx].ResolvedAt = rec.ResolvedAt
	return s.records.Set(ctx, store.KeyAttendance, events)
}

// List returns all pending sign-out records plus counts keyed by display
// status for the dashboard.
func (s *Service) List(ctx context.Context) ([]model.PendingSignout, map[string]int, error) {
	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return nil, nil, err
	}
	now := s.now()
	counts := map[string]int{
		model.StatusPending:  0,
		model.StatusResolved: 0,
		model.StatusExpired:  0,
	}
	for _, r := range recs {
		counts[r.DisplayStatus(now)]++
	}
	return recs, counts, nil
}

// Cleanup removes resolved records older than maxAgeDays. Records still
// pending are kept regardless of age; they stay resolvable until someone
// closes or deletes them.
func (s *Service) Cleanup(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		return 0, errors.New("max age must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []model.PendingSignout
	if err := s.records.Get(ctx, store.KeyPendingSignouts, &recs); err != nil {
		return 0, err
	}
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)
	kept := recs[:0]
	removed := 0
	for _, r := range recs {
		if r.Status == model.StatusResolved && r.ResolvedAt != nil && r.ResolvedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.records.Set(ctx, store.KeyPendingSignouts, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// reconstruct combines an "HH:MM" clock time with the sign-in's calendar date
// in the reference timezone. time.Date resolves the UTC offset that applies
// on that specific date, so submissions on a DST transition date land on the
// correct absolute instant.
func (s *Service) reconstruct(signInAt time.Time, clockTime string) (time.Time, error) {
	tod, err := time.Parse("15:04", clockTime)
	if err != nil {
		return time.Time{}, err
	}
	local := signInAt.In(s.loc)
	out := time.Date(local.Year(), local.Month(), local.Day(), tod.Hour(), tod.Minute(), 0, 0, s.loc)
	return out.UTC(), nil
}

func (s *Service) sameDay(a, b time.Time) bool {
	la, lb := a.In(s.loc), b.In(s.loc)
	ay, am, ad := la.Date()
	by, bm, bd := lb.Date()
	return ay == by && am == bm && ad == bd
}
