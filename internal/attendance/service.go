package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"labtrack/internal/model"
	"labtrack/internal/pending"
	"labtrack/internal/store"
)

var (
	// ErrNotSignedIn means there is no open session to close.
	ErrNotSignedIn = errors.New("student is not signed in")
	// ErrUnknownStudent means the ufid is not on the roster.
	ErrUnknownStudent = errors.New("unknown student")
)

// Service records sign-in/sign-out events and opens pending sign-outs for
// sessions that ended without one. Mutations serialize behind a mutex, same
// trade-off as the pending engine: in-process writers are safe, cross-process
// writers are last-writer-wins.
type Service struct {
	mu            sync.Mutex
	records       store.RecordStore
	pend          *pending.Service
	pendingWindow time.Duration
	now           func() time.Time
}

// NewService creates an attendance service. pendingWindow is how long after
// sign-in a forgotten sign-out stays student-resolvable.
func NewService(records store.RecordStore, pend *pending.Service, pendingWindow time.Duration) *Service {
	if pendingWindow <= 0 {
		pendingWindow = 24 * time.Hour
	}
	return &Service{records: records, pend: pend, pendingWindow: pendingWindow, now: time.Now}
}

func (s *Service) student(ctx context.Context, ufid string) (model.Student, error) {
	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return model.Student{}, err
	}
	for _, st := range students {
		if st.UFID == ufid {
			return st, nil
		}
	}
	return model.Student{}, ErrUnknownStudent
}

// openSignIn returns the most recent signin event for ufid that has no
// later signout, or nil.
func openSignIn(events []model.AttendanceEvent, ufid string) *model.AttendanceEvent {
	var open *model.AttendanceEvent
	for i := range events {
		e := &events[i]
		if e.UFID != ufid {
			continue
		}
		switch e.Action {
		case model.ActionSignIn:
			if open == nil || e.Timestamp.After(open.Timestamp) {
				open = e
			}
		case model.ActionSignOut:
			if open != nil && !e.Timestamp.Before(open.Timestamp) {
				open = nil
			}
		}
	}
	return open
}

// SignIn opens a session. Signing in twice without signing out returns the
// existing open event rather than stacking sessions.
func (s *Service) SignIn(ctx context.Context, ufid string) (model.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.student(ctx, ufid)
	if err != nil {
		return model.AttendanceEvent{}, err
	}
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return model.AttendanceEvent{}, err
	}
	if open := openSignIn(events, ufid); open != nil {
		return *open, nil
	}
	evt := model.AttendanceEvent{
		ID:        uuid.NewString(),
		UFID:      ufid,
		Name:      st.Name,
		Timestamp: s.now().UTC(),
		Action:    model.ActionSignIn,
	}
	events = append(events, evt)
	if err := s.records.Set(ctx, store.KeyAttendance, events); err != nil {
		return model.AttendanceEvent{}, err
	}
	return evt, nil
}

// SignOut closes the open session with the current server time.
func (s *Service) SignOut(ctx context.Context, ufid string) (model.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.student(ctx, ufid)
	if err != nil {
		return model.AttendanceEvent{}, err
	}
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return model.AttendanceEvent{}, err
	}
	if openSignIn(events, ufid) == nil {
		return model.AttendanceEvent{}, ErrNotSignedIn
	}
	evt := model.AttendanceEvent{
		ID:        uuid.NewString(),
		UFID:      ufid,
		Name:      st.Name,
		Timestamp: s.now().UTC(),
		Action:    model.ActionSignOut,
	}
	events = append(events, evt)
	if err := s.records.Set(ctx, store.KeyAttendance, events); err != nil {
		return model.AttendanceEvent{}, err
	}
	return evt, nil
}

// ForgotSignOut converts an open session into a provisional pair: a signout
// event carrying the sign-in timestamp, flagged provisional, plus a pending
// sign-out record the student can resolve through the token form until the
// deadline.
func (s *Service) ForgotSignOut(ctx context.Context, ufid string) (model.PendingSignout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.student(ctx, ufid)
	if err != nil {
		return model.PendingSignout{}, err
	}
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return model.PendingSignout{}, err
	}
	open := openSignIn(events, ufid)
	if open == nil {
		return model.PendingSignout{}, ErrNotSignedIn
	}

	rec, err := s.pend.Create(ctx, "", ufid, st.Name, st.Email, open.Timestamp, open.Timestamp.Add(s.pendingWindow))
	if err != nil {
		return model.PendingSignout{}, err
	}

	events = append(events, model.AttendanceEvent{
		ID:               uuid.NewString(),
		UFID:             ufid,
		Name:             st.Name,
		Timestamp:        open.Timestamp,
		Action:           model.ActionSignOut,
		PendingTimestamp: true,
		PendingRecordID:  rec.ID,
	})
	if err := s.records.Set(ctx, store.KeyAttendance, events); err != nil {
		return model.PendingSignout{}, err
	}
	return rec, nil
}

// List returns events newest first with basic filters.
func (s *Service) List(ctx context.Context, ufid, action string, limit, offset int) ([]model.AttendanceEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return nil, 0, err
	}
	filtered := events[:0:0]
	for _, e := range events {
		if ufid != "" && e.UFID != ufid {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.After(filtered[j].Timestamp) })
	total := len(filtered)
	if offset >= total {
		return []model.AttendanceEvent{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

// StudentStats is one dashboard row.
type StudentStats struct {
	UFID         string  `json:"ufid"`
	Name         string  `json:"name"`
	Sessions     int     `json:"sessions"`
	Hours        float64 `json:"hours"`
	OpenSession  bool    `json:"open_session"`
	PendingCount int     `json:"pending_count"`
}

// Stats aggregates hours per student. Provisional signouts contribute zero
// hours until their pending record resolves and reconciliation rewrites the
// event timestamp.
func (s *Service) Stats(ctx context.Context) ([]StudentStats, error) {
	var events []model.AttendanceEvent
	if err := s.records.Get(ctx, store.KeyAttendance, &events); err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	byUFID := make(map[string]*StudentStats)
	lastIn := make(map[string]*model.AttendanceEvent)
	for i := range events {
		e := events[i]
		row, ok := byUFID[e.UFID]
		if !ok {
			row = &StudentStats{UFID: e.UFID, Name: e.Name}
			byUFID[e.UFID] = row
		}
		if e.Name != "" {
			row.Name = e.Name
		}
		switch e.Action {
		case model.ActionSignIn:
			lastIn[e.UFID] = &events[i]
		case model.ActionSignOut:
			if in, ok := lastIn[e.UFID]; ok {
				row.Sessions++
				if e.PendingTimestamp {
					row.PendingCount++
				} else if e.Timestamp.After(in.Timestamp) {
					row.Hours += e.Timestamp.Sub(in.Timestamp).Hours()
				}
				delete(lastIn, e.UFID)
			}
		}
	}
	for ufid := range lastIn {
		byUFID[ufid].OpenSession = true
	}

	out := make([]StudentStats, 0, len(byUFID))
	for _, row := range byUFID {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UFID < out[j].UFID })
	return out, nil
}
