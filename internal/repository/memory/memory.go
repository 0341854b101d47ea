// Package memory holds in-memory repository implementations backing the
// service tests. They mirror the postgres semantics, including the
// conditional-update claim.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type ScheduleRepository struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*model.WeeklyTemplate
	overrides map[string]*model.DailyOverride
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{
		templates: make(map[uuid.UUID]*model.WeeklyTemplate),
		overrides: make(map[string]*model.DailyOverride),
	}
}

func overrideKey(doctorID uuid.UUID, date model.Date) string {
	return doctorID.String() + "/" + date.String()
}

func (r *ScheduleRepository) UpsertTemplate(_ context.Context, tmpl *model.WeeklyTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tmpl
	r.templates[tmpl.DoctorID] = &copied
	return nil
}

func (r *ScheduleRepository) GetTemplate(_ context.Context, doctorID uuid.UUID) (*model.WeeklyTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tmpl, ok := r.templates[doctorID]
	if !ok {
		return nil, nil
	}
	copied := *tmpl
	return &copied, nil
}

func (r *ScheduleRepository) DeleteTemplate(_ context.Context, doctorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.templates[doctorID]
	delete(r.templates, doctorID)
	return ok, nil
}

func (r *ScheduleRepository) UpsertOverride(_ context.Context, override *model.DailyOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if override.ID == uuid.Nil {
		override.ID = uuid.New()
	}
	copied := *override
	r.overrides[overrideKey(override.DoctorID, override.Date)] = &copied
	return nil
}

func (r *ScheduleRepository) GetOverride(_ context.Context, doctorID uuid.UUID, date model.Date) (*model.DailyOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	override, ok := r.overrides[overrideKey(doctorID, date)]
	if !ok {
		return nil, nil
	}
	copied := *override
	return &copied, nil
}

func (r *ScheduleRepository) ListOverrides(_ context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.DailyOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.DailyOverride
	for _, override := range r.overrides {
		if override.DoctorID != doctorID {
			continue
		}
		if override.Date.Before(from) || override.Date.After(to) {
			continue
		}
		copied := *override
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *ScheduleRepository) DeleteOverride(_ context.Context, doctorID uuid.UUID, date model.Date) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := overrideKey(doctorID, date)
	_, ok := r.overrides[key]
	delete(r.overrides, key)
	return ok, nil
}

type SlotRepository struct {
	mu    sync.Mutex
	slots map[string]*model.AppointmentSlot
}

func NewSlotRepository() *SlotRepository {
	return &SlotRepository{slots: make(map[string]*model.AppointmentSlot)}
}

func (r *SlotRepository) Get(_ context.Context, key model.SlotKey) (*model.AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[key.String()]
	if !ok {
		return nil, nil
	}
	copied := *slot
	return &copied, nil
}

func (r *SlotRepository) ListByDate(_ context.Context, doctorID uuid.UUID, date model.Date) ([]*model.AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AppointmentSlot
	for _, slot := range r.slots {
		if slot.DoctorID == doctorID && slot.Date.Equal(date) {
			copied := *slot
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *SlotRepository) ListAvailable(_ context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AppointmentSlot
	for _, slot := range r.slots {
		if slot.DoctorID != doctorID || !slot.Bookable() {
			continue
		}
		if slot.Date.Before(from) || slot.Date.After(to) {
			continue
		}
		copied := *slot
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *SlotRepository) UpsertOpen(_ context.Context, slots []*model.AppointmentSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, slot := range slots {
		key := slot.Key().String()
		if existing, ok := r.slots[key]; ok {
			existing.ScheduledOpen = true
			existing.DurationMinutes = slot.DurationMinutes
			existing.UpdatedAt = now
			continue
		}
		copied := *slot
		copied.ScheduledOpen = true
		copied.CreatedAt = now
		copied.UpdatedAt = now
		r.slots[key] = &copied
	}
	return nil
}

func keepSet(keep []model.TimeOfDay) map[model.TimeOfDay]bool {
	set := make(map[model.TimeOfDay]bool, len(keep))
	for _, t := range keep {
		set[t] = true
	}
	return set
}

func (r *SlotRepository) DeleteUnbookedExcept(_ context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := keepSet(keep)
	var removed int64
	for key, slot := range r.slots {
		if slot.DoctorID != doctorID || !slot.Date.Equal(date) {
			continue
		}
		if slot.AppointmentID == nil && !set[slot.Time] {
			delete(r.slots, key)
			removed++
		}
	}
	return removed, nil
}

func (r *SlotRepository) CloseBookedExcept(_ context.Context, doctorID uuid.UUID, date model.Date, keep []model.TimeOfDay) ([]*model.AppointmentSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := keepSet(keep)
	var closed []*model.AppointmentSlot
	for _, slot := range r.slots {
		if slot.DoctorID != doctorID || !slot.Date.Equal(date) {
			continue
		}
		if slot.AppointmentID != nil && slot.ScheduledOpen && !set[slot.Time] {
			slot.ScheduledOpen = false
			copied := *slot
			closed = append(closed, &copied)
		}
	}
	return closed, nil
}

func (r *SlotRepository) DeleteUnbookedFrom(_ context.Context, doctorID uuid.UUID, from model.Date) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, slot := range r.slots {
		if slot.DoctorID != doctorID || slot.Date.Before(from) {
			continue
		}
		if slot.AppointmentID == nil {
			delete(r.slots, key)
			removed++
		}
	}
	return removed, nil
}

func (r *SlotRepository) Claim(_ context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[key.String()]
	if !ok || !slot.Bookable() {
		return false, nil
	}
	id := appointmentID
	slot.AppointmentID = &id
	return true, nil
}

func (r *SlotRepository) Release(_ context.Context, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	released := false
	for _, slot := range r.slots {
		if slot.AppointmentID != nil && *slot.AppointmentID == appointmentID {
			slot.AppointmentID = nil
			released = true
		}
	}
	return released, nil
}

func (r *SlotRepository) ReleaseKey(_ context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[key.String()]
	if !ok || slot.AppointmentID == nil || *slot.AppointmentID != appointmentID {
		return false, nil
	}
	slot.AppointmentID = nil
	return true, nil
}

type AppointmentRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*model.Appointment
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func (r *AppointmentRepository) Create(_ context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	copied := *appointment
	r.appointments[appointment.ID] = &copied
	return nil
}

func (r *AppointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appointment, ok := r.appointments[id]
	if !ok {
		return nil, nil
	}
	copied := *appointment
	return &copied, nil
}

func (r *AppointmentRepository) Update(_ context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *appointment
	r.appointments[appointment.ID] = &copied
	return nil
}

func (r *AppointmentRepository) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Appointment
	for _, appointment := range r.appointments {
		if filters.DoctorID != uuid.Nil && appointment.DoctorID != filters.DoctorID {
			continue
		}
		if filters.PatientID != uuid.Nil && appointment.PatientID != filters.PatientID {
			continue
		}
		if filters.Status != "" && appointment.Status != filters.Status {
			continue
		}
		if !filters.From.IsZero() && appointment.Date.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && appointment.Date.After(filters.To) {
			continue
		}
		copied := *appointment
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *AppointmentRepository) ExistsLive(_ context.Context, key model.SlotKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, appointment := range r.appointments {
		if appointment.SlotKey() == key && appointment.Status.Live() {
			return true, nil
		}
	}
	return false, nil
}

func (r *AppointmentRepository) ListUpcoming(_ context.Context, subjectID uuid.UUID, role string, from model.Date, limit int) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Appointment
	for _, appointment := range r.appointments {
		owner := appointment.PatientID
		if role == "doctor" {
			owner = appointment.DoctorID
		}
		if owner != subjectID || appointment.Date.Before(from) || !appointment.Status.Live() {
			continue
		}
		copied := *appointment
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepository) CountByStatus(_ context.Context, doctorID uuid.UUID) (map[model.AppointmentStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.AppointmentStatus]int)
	for _, appointment := range r.appointments {
		if appointment.DoctorID == doctorID {
			counts[appointment.Status]++
		}
	}
	return counts, nil
}

type OutboxRepository struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

func (r *OutboxRepository) Create(_ context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *OutboxRepository) GetPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutboxEvent
	now := time.Now()
	for _, event := range r.events {
		if len(out) >= limit {
			break
		}
		switch event.Status {
		case model.OutboxStatusPending:
			out = append(out, event)
		case model.OutboxStatusRetry:
			if event.RetryAt != nil && !event.RetryAt.After(now) {
				out = append(out, event)
			}
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.ID == id {
			now := time.Now()
			event.Status = model.OutboxStatusProcessed
			event.ProcessedAt = &now
		}
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.ID == id {
			event.RetryCount++
			event.ErrorMessage = &errMsg
			event.RetryAt = retryAt
			if retryAt != nil {
				event.Status = model.OutboxStatusRetry
			} else {
				event.Status = model.OutboxStatusFailed
			}
		}
	}
	return nil
}

// Events returns a snapshot for assertions.
func (r *OutboxRepository) Events() []*model.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.OutboxEvent, len(r.events))
	copy(out, r.events)
	return out
}

var (
	_ repository.ScheduleRepository    = (*ScheduleRepository)(nil)
	_ repository.SlotRepository       = (*SlotRepository)(nil)
	_ repository.AppointmentRepository = (*AppointmentRepository)(nil)
	_ repository.OutboxRepository      = (*OutboxRepository)(nil)
)
