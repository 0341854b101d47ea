package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service/booking"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
)

// Actor is the authenticated caller as the middleware resolved it.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Service manages the appointment lifecycle. Slot ownership always moves
// through the booking service: claim before an appointment becomes live,
// release before it leaves a live state.
type Service struct {
	appointmentRepo repository.AppointmentRepository
	outboxRepo      repository.OutboxRepository
	booking         *booking.Service
	logger          *logger.Logger
}

func NewService(
	appointmentRepo repository.AppointmentRepository,
	outboxRepo repository.OutboxRepository,
	bookingSvc *booking.Service,
	l *logger.Logger,
) *Service {
	return &Service{
		appointmentRepo: appointmentRepo,
		outboxRepo:      outboxRepo,
		booking:         bookingSvc,
		logger:          l,
	}
}

// Create books a slot and records the appointment. The claim happens first:
// if the conditional update loses the race there is nothing to undo. A
// failure persisting the appointment afterwards releases the claim so the
// slot is not stranded.
func (s *Service) Create(ctx context.Context, actor Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if actor.Role != auth.RolePatient {
		return nil, apperrors.Forbidden("only patients can book appointments")
	}
	if err := validateStart(req.Date, req.Time); err != nil {
		return nil, err
	}

	appointment := &model.Appointment{
		ID:        uuid.New(),
		PatientID: actor.ID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		Time:      req.Time,
		Type:      req.Type,
		Notes:     req.Notes,
		Status:    model.AppointmentStatusScheduled,
	}

	key := appointment.SlotKey()

	// Advisory pre-check; the conditional claim below is the authoritative
	// one. This catches the rare closed-but-booked slot whose key a patient
	// retries after a schedule conflict.
	if taken, err := s.appointmentRepo.ExistsLive(ctx, key); err != nil {
		return nil, apperrors.Storage("appointment lookup", err)
	} else if taken {
		return nil, apperrors.SlotUnavailable()
	}

	if err := s.booking.Claim(ctx, key, appointment.ID); err != nil {
		return nil, err
	}

	slot, err := s.booking.Slot(ctx, key)
	if err == nil && slot != nil {
		appointment.DurationMinutes = slot.DurationMinutes
	}

	if err := s.appointmentRepo.Create(ctx, appointment); err != nil {
		if _, releaseErr := s.booking.ReleaseKey(ctx, key, appointment.ID); releaseErr != nil {
			s.logger.Error(releaseErr, "failed to release slot after create failure", map[string]interface{}{
				"appointment_id": appointment.ID,
			})
		}
		return nil, apperrors.Storage("appointment create", err)
	}

	s.emit(ctx, model.EventAppointmentCreated, appointment)
	s.logger.Info("appointment created", map[string]interface{}{
		"appointment_id": appointment.ID,
		"doctor_id":      appointment.DoctorID,
		"date":           appointment.Date.String(),
		"time":           appointment.Time.String(),
	})
	return appointment, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appointment); err != nil {
		return nil, err
	}
	return appointment, nil
}

// List scopes the filters to the caller: doctors see their own calendar,
// patients their own bookings.
func (s *Service) List(ctx context.Context, actor Actor, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	switch actor.Role {
	case auth.RoleDoctor:
		filters.DoctorID = actor.ID
	case auth.RolePatient:
		filters.PatientID = actor.ID
	default:
		return nil, apperrors.Forbidden("unknown role")
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.Validation("unknown appointment status", nil)
	}

	appointments, err := s.appointmentRepo.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Storage("appointment list", err)
	}
	return appointments, nil
}

func (s *Service) ListUpcoming(ctx context.Context, actor Actor, limit int) ([]*model.Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	appointments, err := s.appointmentRepo.ListUpcoming(ctx, actor.ID, actor.Role, model.Today(), limit)
	if err != nil {
		return nil, apperrors.Storage("appointment list", err)
	}
	return appointments, nil
}

// Cancel releases the slot and marks the appointment cancelled. Repeating a
// cancel is a no-op success. The release runs first so a crash between the
// two steps frees the slot rather than stranding it; the status update is
// retried by the client in that window.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*model.Appointment, error) {
	appointment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appointment); err != nil {
		return nil, err
	}

	if appointment.Status == model.AppointmentStatusCancelled {
		return appointment, nil
	}
	if !appointment.Status.CanTransitionTo(model.AppointmentStatusCancelled) {
		return nil, apperrors.Conflict("appointment can no longer be cancelled", nil)
	}

	if _, err := s.booking.Release(ctx, appointment.ID); err != nil {
		return nil, err
	}

	appointment.Status = model.AppointmentStatusCancelled
	if reason != "" {
		appointment.CancelReason = &reason
	}
	if err := s.appointmentRepo.Update(ctx, appointment); err != nil {
		return nil, apperrors.Storage("appointment update", err)
	}

	s.emit(ctx, model.EventAppointmentCancelled, appointment)
	s.logger.Info("appointment cancelled", map[string]interface{}{
		"appointment_id": appointment.ID,
		"by_role":        actor.Role,
	})
	return appointment, nil
}

// Reschedule moves a live appointment to a new slot with the same doctor.
// The new slot is claimed before the old one is released, so the appointment
// never floats without a slot; on a mid-flight failure the new claim is
// unwound.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	appointment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appointment); err != nil {
		return nil, err
	}
	if !appointment.Status.Live() {
		return nil, apperrors.Conflict("only scheduled or confirmed appointments can be rescheduled", nil)
	}
	if err := validateStart(req.Date, req.Time); err != nil {
		return nil, err
	}

	oldKey := appointment.SlotKey()
	newKey := model.SlotKey{DoctorID: appointment.DoctorID, Date: req.Date, Time: req.Time}
	if oldKey == newKey {
		return appointment, nil
	}

	if err := s.booking.Claim(ctx, newKey, appointment.ID); err != nil {
		return nil, err
	}

	appointment.Date = req.Date
	appointment.Time = req.Time
	if err := s.appointmentRepo.Update(ctx, appointment); err != nil {
		if _, releaseErr := s.booking.ReleaseKey(ctx, newKey, appointment.ID); releaseErr != nil {
			s.logger.Error(releaseErr, "failed to unwind reschedule claim", map[string]interface{}{
				"appointment_id": appointment.ID,
			})
		}
		return nil, apperrors.Storage("appointment update", err)
	}

	if _, err := s.booking.ReleaseKey(ctx, oldKey, appointment.ID); err != nil {
		// The move itself succeeded; the stale hold is only logged because
		// the next regeneration or cancel clears it.
		s.logger.Error(err, "failed to release old slot after reschedule", map[string]interface{}{
			"appointment_id": appointment.ID,
		})
	}

	s.logger.Info("appointment rescheduled", map[string]interface{}{
		"appointment_id": appointment.ID,
		"date":           appointment.Date.String(),
		"time":           appointment.Time.String(),
	})
	return appointment, nil
}

// UpdateStatus drives the confirm / complete / no-show transitions. Only the
// appointment's doctor may call it; cancellation has its own path because it
// releases the slot.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, next model.AppointmentStatus) (*model.Appointment, error) {
	appointment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleDoctor || actor.ID != appointment.DoctorID {
		return nil, apperrors.Forbidden("only the appointment's doctor can change its status")
	}

	if !next.Valid() {
		return nil, apperrors.Validation("unknown appointment status", nil)
	}
	if next == model.AppointmentStatusCancelled {
		return nil, apperrors.Validation("use the cancel operation to cancel", nil)
	}
	if !appointment.Status.CanTransitionTo(next) {
		return nil, apperrors.Conflict("invalid status transition", nil)
	}
	if next == model.AppointmentStatusNoShow && !appointment.StartsBefore(time.Now()) {
		return nil, apperrors.Validation("cannot mark no-show before the appointment starts", nil)
	}

	appointment.Status = next
	if err := s.appointmentRepo.Update(ctx, appointment); err != nil {
		return nil, apperrors.Storage("appointment update", err)
	}

	// Terminal states other than cancellation keep history but must not hold
	// the slot past the visit.
	if next == model.AppointmentStatusNoShow {
		if _, err := s.booking.Release(ctx, appointment.ID); err != nil {
			s.logger.Error(err, "failed to release slot after no-show", map[string]interface{}{
				"appointment_id": appointment.ID,
			})
		}
	}

	return appointment, nil
}

// Stats returns the doctor's appointment counts grouped by status.
func (s *Service) Stats(ctx context.Context, actor Actor, doctorID uuid.UUID) (map[model.AppointmentStatus]int, error) {
	if actor.Role != auth.RoleDoctor || actor.ID != doctorID {
		return nil, apperrors.Forbidden("cannot view another doctor's statistics")
	}
	counts, err := s.appointmentRepo.CountByStatus(ctx, doctorID)
	if err != nil {
		return nil, apperrors.Storage("appointment stats", err)
	}
	return counts, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.appointmentRepo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Storage("appointment lookup", err)
	}
	if appointment == nil {
		return nil, apperrors.NotFound("appointment", nil)
	}
	return appointment, nil
}

func (s *Service) emit(ctx context.Context, eventType string, appointment *model.Appointment) {
	payload := model.AppointmentEventPayload{
		AppointmentID: appointment.ID,
		PatientID:     appointment.PatientID,
		DoctorID:      appointment.DoctorID,
		Date:          appointment.Date,
		Time:          appointment.Time,
		Type:          appointment.Type,
	}
	if err := s.outboxRepo.Create(ctx, eventType, payload); err != nil {
		// Notifications are best-effort; the booking itself already
		// committed.
		s.logger.Error(err, "failed to record outbox event", map[string]interface{}{
			"event_type":     eventType,
			"appointment_id": appointment.ID,
		})
	}
}

func authorize(actor Actor, appointment *model.Appointment) error {
	switch actor.Role {
	case auth.RoleDoctor:
		if actor.ID == appointment.DoctorID {
			return nil
		}
	case auth.RolePatient:
		if actor.ID == appointment.PatientID {
			return nil
		}
	}
	return apperrors.Forbidden("appointment belongs to someone else")
}

func validateStart(date model.Date, tod model.TimeOfDay) error {
	if !tod.Valid() {
		return apperrors.Validation("time out of range", nil)
	}
	if !date.At(tod).After(time.Now()) {
		return apperrors.Validation("appointment start must be in the future", nil)
	}
	return nil
}
