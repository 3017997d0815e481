package roster

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"labtrack/internal/model"
	"labtrack/internal/store"
)

var (
	// ErrNotFound means no student matches the ufid.
	ErrNotFound = errors.New("student not found")
	// ErrDuplicate means the ufid is already registered.
	ErrDuplicate = errors.New("ufid already registered")
	// ErrInvalid means required fields are missing.
	ErrInvalid = errors.New("ufid and name are required")
)

// Service manages the student roster.
type Service struct {
	mu      sync.Mutex
	records store.RecordStore
	now     func() time.Time
}

// NewService creates a roster service.
func NewService(records store.RecordStore) *Service {
	return &Service{records: records, now: time.Now}
}

// Create registers a student.
func (s *Service) Create(ctx context.Context, ufid, name, email string) (model.Student, error) {
	ufid, name, email = strings.TrimSpace(ufid), strings.TrimSpace(name), strings.TrimSpace(email)
	if ufid == "" || name == "" {
		return model.Student{}, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return model.Student{}, err
	}
	for _, st := range students {
		if st.UFID == ufid {
			return model.Student{}, ErrDuplicate
		}
	}
	st := model.Student{UFID: ufid, Name: name, Email: email, CreatedAt: s.now().UTC()}
	students = append(students, st)
	if err := s.records.Set(ctx, store.KeyStudents, students); err != nil {
		return model.Student{}, err
	}
	return st, nil
}

// Get returns a student by ufid.
func (s *Service) Get(ctx context.Context, ufid string) (model.Student, error) {
	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return model.Student{}, err
	}
	for _, st := range students {
		if st.UFID == ufid {
			return st, nil
		}
	}
	return model.Student{}, ErrNotFound
}

// List returns the roster, optionally filtered by a case-insensitive name or
// ufid substring.
func (s *Service) List(ctx context.Context, search string) ([]model.Student, error) {
	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return nil, err
	}
	if search != "" {
		needle := strings.ToLower(search)
		filtered := students[:0:0]
		for _, st := range students {
			if strings.Contains(strings.ToLower(st.Name), needle) || strings.Contains(st.UFID, search) {
				filtered = append(filtered, st)
			}
		}
		students = filtered
	}
	sort.Slice(students, func(i, j int) bool { return students[i].UFID < students[j].UFID })
	return students, nil
}

// Update changes a student's name and email.
func (s *Service) Update(ctx context.Context, ufid, name, email string) (model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return model.Student{}, err
	}
	for i, st := range students {
		if st.UFID != ufid {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			st.Name = name
		}
		if email = strings.TrimSpace(email); email != "" {
			st.Email = email
		}
		students[i] = st
		if err := s.records.Set(ctx, store.KeyStudents, students); err != nil {
			return model.Student{}, err
		}
		return st, nil
	}
	return model.Student{}, ErrNotFound
}

// Delete removes a student from the roster. Attendance history is kept.
func (s *Service) Delete(ctx context.Context, ufid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var students []model.Student
	if err := s.records.Get(ctx, store.KeyStudents, &students); err != nil {
		return err
	}
	kept := students[:0]
	found := false
	for _, st := range students {
		if st.UFID == ufid {
			found = true
			continue
		}
		kept = append(kept, st)
	}
	if !found {
		return ErrNotFound
	}
	return s.records.Set(ctx, store.KeyStudents, kept)
}
