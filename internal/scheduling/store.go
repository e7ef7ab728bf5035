package scheduling

import (
	"context"
	"sync"
)

// Store owns the appointment collection of every clinic. Implementations
// must return copies: callers are free to mutate what they receive.
type Store interface {
	Insert(ctx context.Context, appt *Appointment) error
	Update(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, clinicID, id string) (*Appointment, error)
	ListByClinic(ctx context.Context, clinicID string) ([]*Appointment, error)
}

// MemoryStore keeps appointments per clinic in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	clinics map[string][]*Appointment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clinics: make(map[string][]*Appointment)}
}

// Insert appends a copy of appt to its clinic.
func (s *MemoryStore) Insert(ctx context.Context, appt *Appointment) error {
	if appt == nil || appt.ClinicID == "" || appt.ID == "" {
		return validationErr("appointment with id and clinic id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.clinics[appt.ClinicID] {
		if existing.ID == appt.ID {
			return validationErr("duplicate appointment id %s", appt.ID)
		}
	}
	s.clinics[appt.ClinicID] = append(s.clinics[appt.ClinicID], appt.Clone())
	return nil
}

// Update replaces the stored record in place.
func (s *MemoryStore) Update(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return validationErr("appointment required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.clinics[appt.ClinicID]
	for i, existing := range list {
		if existing.ID == appt.ID {
			list[i] = appt.Clone()
			return nil
		}
	}
	return ErrNotFound
}

// Get returns a copy of one appointment.
func (s *MemoryStore) Get(ctx context.Context, clinicID, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, existing := range s.clinics[clinicID] {
		if existing.ID == id {
			return existing.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ListByClinic returns copies of every appointment in the clinic.
func (s *MemoryStore) ListByClinic(ctx context.Context, clinicID string) ([]*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.clinics[clinicID]
	out := make([]*Appointment, 0, len(list))
	for _, appt := range list {
		out = append(out, appt.Clone())
	}
	return out, nil
}
