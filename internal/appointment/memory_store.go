package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store backing the component, API and reconcile tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	appointments  map[uuid.UUID]Appointment
	transactions  map[uuid.UUID]Transaction
	patients      map[uuid.UUID]Patient
	practitioners map[uuid.UUID]Practitioner
	procedures    map[uuid.UUID]Procedure
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		appointments:  make(map[uuid.UUID]Appointment),
		transactions:  make(map[uuid.UUID]Transaction),
		patients:      make(map[uuid.UUID]Patient),
		practitioners: make(map[uuid.UUID]Practitioner),
		procedures:    make(map[uuid.UUID]Procedure),
	}
}

// AddPractitioner seeds a practitioner and returns it with a generated id when none was set.
func (s *MemoryStore) AddPractitioner(p Practitioner) Practitioner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.practitioners[p.ID] = p
	return p
}

func (s *MemoryStore) AddProcedure(p Procedure) Procedure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.procedures[p.ID] = p
	return p
}

func (s *MemoryStore) AddPatient(p Patient) Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.patients[p.ID] = p
	return p
}

// AddAppointment inserts a as-is, bypassing the booking flow.
func (s *MemoryStore) AddAppointment(a Appointment) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.appointments[a.ID] = a
	return a
}

// Transactions returns every transaction linked to appointmentID.
func (s *MemoryStore) Transactions(appointmentID uuid.UUID) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, t := range s.transactions {
		if t.AppointmentID == appointmentID {
			out = append(out, t)
		}
	}
	return out
}

// AppointmentCount returns the number of stored appointments, cancelled included.
func (s *MemoryStore) AppointmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments)
}

func (s *MemoryStore) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

func excluded(status Status, exclude []Status) bool {
	for _, s := range exclude {
		if s == status {
			return true
		}
	}
	return false
}

func sortAppointments(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Date.Compare(list[j].Date); c != 0 {
			return c < 0
		}
		if list[i].StartTime != list[j].StartTime {
			return list[i].StartTime < list[j].StartTime
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

func (s *MemoryStore) ListAppointments(ctx context.Context, q Query) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	exclude := q.Excluded()
	var out []Appointment
	for _, a := range s.appointments {
		if a.Date.Before(q.From) || a.Date.After(q.To) {
			continue
		}
		if q.PractitionerID != nil && a.PractitionerID != *q.PractitionerID {
			continue
		}
		if excluded(a.Status, exclude) {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a := Appointment{
		ID:                uuid.New(),
		PatientID:         in.PatientID,
		PractitionerID:    in.PractitionerID,
		Date:              in.Date,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Status:            in.Status,
		Kind:              in.Kind,
		Notes:             in.Notes,
		BillingType:       in.BillingType,
		PaymentMethod:     in.PaymentMethod,
		AuthorizationCode: in.AuthorizationCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.appointments[a.ID] = a
	return &a, nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, id uuid.UUID, p Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Empty() {
		return ErrEmptyPatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a = p.Apply(a)
	a.UpdatedAt = s.now()
	s.appointments[id] = a
	return nil
}

func (s *MemoryStore) CreateTransaction(ctx context.Context, in NewTransaction) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[in.AppointmentID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	now := s.now()
	t := Transaction{
		ID:            uuid.New(),
		AppointmentID: in.AppointmentID,
		PatientID:     in.PatientID,
		Description:   in.Description,
		AmountCents:   in.AmountCents,
		ProcedureCode: in.ProcedureCode,
		Status:        in.Status,
		BillingStatus: in.BillingStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.transactions[t.ID] = t
	return &t, nil
}

func (s *MemoryStore) SearchPatients(ctx context.Context, term string) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term = strings.ToLower(strings.TrimSpace(term))
	var out []Patient
	for _, p := range s.patients {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) ||
			(p.Email != nil && strings.Contains(strings.ToLower(*p.Email), term)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreatePatient(ctx context.Context, in NewPatient) (*Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := Patient{
		ID:            uuid.New(),
		Name:          in.Name,
		Email:         in.Email,
		Phone:         in.Phone,
		BillingType:   in.BillingType,
		PaymentMethod: in.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.patients[p.ID] = p
	return &p, nil
}

func (s *MemoryStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Practitioner, 0, len(s.practitioners))
	for _, p := range s.practitioners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListProcedures(ctx context.Context, term string) ([]Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term = strings.ToLower(strings.TrimSpace(term))
	var out []Procedure
	for _, p := range s.procedures {
		if term == "" || strings.Contains(strings.ToLower(p.Name), term) ||
			strings.HasPrefix(strings.ToLower(p.Code), term) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procedures[id]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListUnbilled(ctx context.Context, since Date) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	billed := make(map[uuid.UUID]bool, len(s.transactions))
	for _, t := range s.transactions {
		billed[t.AppointmentID] = true
	}
	var out []Appointment
	for _, a := range s.appointments {
		if a.IsBlock() || a.Status == StatusCancelled || a.Date.Before(since) || billed[a.ID] {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}
