// Package memory holds map-backed repositories with the same semantics as
// the postgres ones. Failures can be injected per operation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

// Operation names accepted by Fail.
const (
	OpAccountRegister   = "accounts.register"
	OpAccountDelete     = "accounts.delete"
	OpCredentialDelete  = "credentials.delete"
	OpDoctorUpdate      = "doctors.update"
	OpDoctorDelete      = "doctors.delete"
	OpDoctorAddSlot     = "doctors.add_slot"
	OpDoctorRemoveSlot  = "doctors.remove_slot"
	OpAppointmentCreate = "appointments.create"
	OpAppointmentUpdate = "appointments.update"
	OpOutboxCreate      = "outbox.create"
)

type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]model.Account
	credentials  map[uuid.UUID]model.Credential
	doctors      map[uuid.UUID]model.DoctorProfile
	appointments map[uuid.UUID]model.Appointment
	outbox       []model.OutboxEvent
	revoked      map[string]bool
	failures     map[string]error
	writes       int
}

func NewStore() *Store {
	return &Store{
		accounts:     map[uuid.UUID]model.Account{},
		credentials:  map[uuid.UUID]model.Credential{},
		doctors:      map[uuid.UUID]model.DoctorProfile{},
		appointments: map[uuid.UUID]model.Appointment{},
		failures:     map[string]error{},
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Writes counts successful mutations across all collections.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// OutboxEvents returns a copy of everything enqueued so far.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboxEvent(nil), s.outbox...)
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

func (s *Store) Accounts() repository.AccountRepository         { return accountRepo{s} }
func (s *Store) Credentials() repository.CredentialRepository   { return credentialRepo{s} }
func (s *Store) Doctors() repository.DoctorRepository           { return doctorRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentRepo{s} }
func (s *Store) Outbox() *OutboxWriter                          { return &OutboxWriter{s} }

type accountRepo struct{ s *Store }

func (r accountRepo) Register(_ context.Context, account *model.Account, cred *model.Credential, profile *model.DoctorProfile) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountRegister); err != nil {
		return err
	}
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	for _, c := range s.credentials {
		if c.Email == cred.Email {
			return repository.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt, account.UpdatedAt = now, now
	cred.AccountID, cred.CreatedAt = account.ID, now
	s.accounts[account.ID] = *account
	s.credentials[account.ID] = *cred
	if profile != nil {
		profile.ID = account.ID
		profile.CreatedAt, profile.UpdatedAt = now, now
		if profile.AvailableSlots == nil {
			profile.AvailableSlots = pq.StringArray{}
		}
		s.doctors[profile.ID] = copyDoctor(*profile)
	}
	s.writes++
	return nil
}

func (r accountRepo) Get(_ context.Context, id uuid.UUID) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r accountRepo) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			a := a
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r accountRepo) List(_ context.Context, filters *model.AccountFilters) ([]*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Account{}
	for _, a := range r.s.accounts {
		if filters != nil && filters.Role != "" && a.Role != filters.Role {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r accountRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAccountDelete); err != nil {
		return err
	}
	if _, ok := s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.doctors, id)
	s.writes++
	return nil
}

type credentialRepo struct{ s *Store }

func (r credentialRepo) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.credentials {
		if c.Email == email {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r credentialRepo) Delete(_ context.Context, accountID uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpCredentialDelete); err != nil {
		return err
	}
	if _, ok := s.credentials[accountID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.credentials, accountID)
	s.writes++
	return nil
}

type doctorRepo struct{ s *Store }

func copyDoctor(d model.DoctorProfile) model.DoctorProfile {
	d.AvailableSlots = append(pq.StringArray{}, d.AvailableSlots...)
	return d
}

func (r doctorRepo) Get(_ context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d = copyDoctor(d)
	return &d, nil
}

func (r doctorRepo) GetBySlug(_ context.Context, slug string) (*model.DoctorProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.doctors {
		if d.Slug == slug {
			d = copyDoctor(d)
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r doctorRepo) List(_ context.Context, filters *model.DoctorFilters) ([]*model.DoctorProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.DoctorProfile{}
	for _, d := range r.s.doctors {
		if filters != nil && filters.Status != "" && d.Status != filters.Status {
			continue
		}
		d = copyDoctor(d)
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (r doctorRepo) Update(_ context.Context, profile *model.DoctorProfile) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDoctorUpdate); err != nil {
		return err
	}
	cur, ok := s.doctors[profile.ID]
	if !ok {
		return repository.ErrNotFound
	}
	profile.UpdatedAt = time.Now().UTC()
	next := copyDoctor(*profile)
	next.Slug = cur.Slug
	next.CreatedAt = cur.CreatedAt
	next.AvailableSlots = cur.AvailableSlots
	s.doctors[profile.ID] = next
	s.writes++
	return nil
}

func (r doctorRepo) SetSlots(_ context.Context, id uuid.UUID, slots []string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.AvailableSlots = append(pq.StringArray{}, slots...)
	d.UpdatedAt = time.Now().UTC()
	s.doctors[id] = d
	s.writes++
	return nil
}

func (r doctorRepo) AddSlot(_ context.Context, id uuid.UUID, slot string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDoctorAddSlot); err != nil {
		return err
	}
	d, ok := s.doctors[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range d.AvailableSlots {
		if existing == slot {
			return nil
		}
	}
	d.AvailableSlots = append(d.AvailableSlots, slot)
	s.doctors[id] = d
	s.writes++
	return nil
}

func (r doctorRepo) RemoveSlot(_ context.Context, id uuid.UUID, slot string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDoctorRemoveSlot); err != nil {
		return err
	}
	d, ok := s.doctors[id]
	if !ok {
		return repository.ErrNotFound
	}
	kept := pq.StringArray{}
	for _, existing := range d.AvailableSlots {
		if existing != slot {
			kept = append(kept, existing)
		}
	}
	d.AvailableSlots = kept
	s.doctors[id] = d
	s.writes++
	return nil
}

func (r doctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDoctorDelete); err != nil {
		return err
	}
	if _, ok := s.doctors[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.doctors, id)
	s.writes++
	return nil
}

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) Create(_ context.Context, a *model.Appointment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAppointmentCreate); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = now, now
	s.appointments[a.ID] = *a
	s.writes++
	return nil
}

func (r appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r appointmentRepo) Update(_ context.Context, a *model.Appointment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpAppointmentUpdate); err != nil {
		return err
	}
	cur, ok := s.appointments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	cur.Status = a.Status
	cur.ConfirmedAt = a.ConfirmedAt
	cur.RejectedAt = a.RejectedAt
	cur.CancelledAt = a.CancelledAt
	cur.CompletedAt = a.CompletedAt
	cur.DecidedBy = a.DecidedBy
	cur.CancelledBy = a.CancelledBy
	cur.UpdatedAt = a.UpdatedAt
	s.appointments[a.ID] = cur
	s.writes++
	return nil
}

func (r appointmentRepo) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if filters != nil {
			if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
				continue
			}
			if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
				continue
			}
			if filters.Status != "" && a.Status.Normalize() != filters.Status {
				continue
			}
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].SlotKey(), out[j].SlotKey()
		if ki != kj {
			return ki > kj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// OutboxWriter records enqueued events in memory.
type OutboxWriter struct{ s *Store }

func (w *OutboxWriter) Create(_ context.Context, event *model.OutboxEvent) error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpOutboxCreate); err != nil {
		return err
	}
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	s.outbox = append(s.outbox, *event)
	s.writes++
	return nil
}

// Sessions returns a SessionStore that ignores ttl.
func (s *Store) Sessions() repository.SessionStore { return sessionStore{s} }

type sessionStore struct{ s *Store }

func (r sessionStore) Revoke(_ context.Context, sessionID string, _ time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.revoked == nil {
		r.s.revoked = map[string]bool{}
	}
	r.s.revoked[sessionID] = true
	return nil
}

func (r sessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.revoked[sessionID], nil
}
