package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/config"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/lock"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

// Service regenerates the materialized slot table from templates and
// overrides. Runs for one doctor are serialized by a Redis lease so two
// writers never reconcile the same rows concurrently.
type Service struct {
	scheduleRepo repository.ScheduleRepository
	slotRepo     repository.SlotRepository
	outboxRepo   repository.OutboxRepository
	locker       lock.Locker
	metrics      *metrics.Metrics
	logger       *logger.Logger
	cfg          config.SchedulingConfig
}

func NewService(
	scheduleRepo repository.ScheduleRepository,
	slotRepo repository.SlotRepository,
	outboxRepo repository.OutboxRepository,
	locker lock.Locker,
	m *metrics.Metrics,
	l *logger.Logger,
	cfg config.SchedulingConfig,
) *Service {
	return &Service{
		scheduleRepo: scheduleRepo,
		slotRepo:     slotRepo,
		outboxRepo:   outboxRepo,
		locker:       locker,
		metrics:      m,
		logger:       l,
		cfg:          cfg,
	}
}

// RegenerateHorizon rebuilds the doctor's slots from today through the
// configured horizon. Idempotent: a second run over unchanged schedule data
// leaves the table as it found it. A date that fails does not stop the run;
// the remaining dates are still reconciled and the failures reported together.
func (s *Service) RegenerateHorizon(ctx context.Context, doctorID uuid.UUID) error {
	return s.regenerate(ctx, doctorID, func(ctx context.Context) error {
		today := model.Today()
		var failed []string
		for i := 0; i < s.cfg.HorizonDays; i++ {
			date := today.AddDays(i)
			if err := s.regenerateDate(ctx, doctorID, date); err != nil {
				failed = append(failed, date.String())
				s.logger.Error(err, "failed to regenerate date", map[string]interface{}{
					"doctor_id": doctorID,
					"date":      date.String(),
				})
			}
		}
		if len(failed) > 0 {
			return apperrors.Storage(
				fmt.Sprintf("slot regeneration (%d of %d dates failed)", len(failed), s.cfg.HorizonDays),
				fmt.Errorf("dates: %s", strings.Join(failed, ", ")))
		}
		return nil
	})
}

// RegenerateDate rebuilds a single date, used after override changes.
func (s *Service) RegenerateDate(ctx context.Context, doctorID uuid.UUID, date model.Date) error {
	return s.regenerate(ctx, doctorID, func(ctx context.Context) error {
		return s.regenerateDate(ctx, doctorID, date)
	})
}

// ClearFrom removes all unbooked slots for the doctor from the date onward,
// used when the weekly template is deleted. Booked slots survive so existing
// appointments keep their anchor rows.
func (s *Service) ClearFrom(ctx context.Context, doctorID uuid.UUID, from model.Date) error {
	return s.regenerate(ctx, doctorID, func(ctx context.Context) error {
		removed, err := s.slotRepo.DeleteUnbookedFrom(ctx, doctorID, from)
		if err != nil {
			return apperrors.Storage("slot cleanup", err)
		}
		s.metrics.SlotsRemoved.Add(float64(removed))
		s.logger.Info("cleared unbooked slots", map[string]interface{}{
			"doctor_id": doctorID,
			"from":      from.String(),
			"removed":   removed,
		})
		return nil
	})
}

func (s *Service) regenerate(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.locker.WithLock(ctx, regenLockKey(doctorID), fn)
	s.metrics.RegenerationLatency.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		s.metrics.RegenerationRuns.WithLabelValues("contended").Inc()
		return apperrors.Conflict("schedule regeneration already in progress", err)
	case err != nil:
		s.metrics.RegenerationRuns.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.RegenerationRuns.WithLabelValues("success").Inc()
	return nil
}

// regenerateDate reconciles one doctor-date in three steps: upsert the
// resolved grid, delete unbooked strays, and close booked strays. Order
// matters — booked rows are never deleted, only closed and flagged.
func (s *Service) regenerateDate(ctx context.Context, doctorID uuid.UUID, date model.Date) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	tmpl, err := s.scheduleRepo.GetTemplate(ctx, doctorID)
	if err != nil {
		return apperrors.Storage("template lookup", err)
	}
	override, err := s.scheduleRepo.GetOverride(ctx, doctorID, date)
	if err != nil {
		return apperrors.Storage("override lookup", err)
	}

	day := Resolve(tmpl, override, date)

	var times []model.TimeOfDay
	duration := s.cfg.DefaultSlotMinutes
	if tmpl != nil {
		duration = tmpl.SlotDurationMinutes
	}
	if day.Open {
		times = TimeGrid(day.Start, day.End, duration, day.Exclusions)
	}

	if len(times) > 0 {
		slots := make([]*model.AppointmentSlot, 0, len(times))
		for _, t := range times {
			slots = append(slots, &model.AppointmentSlot{
				DoctorID:        doctorID,
				Date:            date,
				Time:            t,
				DurationMinutes: duration,
			})
		}
		if err := s.slotRepo.UpsertOpen(ctx, slots); err != nil {
			return apperrors.Storage("slot upsert", err)
		}
		s.metrics.SlotsGenerated.Add(float64(len(slots)))
	}

	removed, err := s.slotRepo.DeleteUnbookedExcept(ctx, doctorID, date, times)
	if err != nil {
		return apperrors.Storage("slot reconciliation", err)
	}
	s.metrics.SlotsRemoved.Add(float64(removed))

	closed, err := s.slotRepo.CloseBookedExcept(ctx, doctorID, date, times)
	if err != nil {
		return apperrors.Storage("slot reconciliation", err)
	}
	for _, slot := range closed {
		s.flagConflict(ctx, slot)
	}

	return nil
}

// flagConflict records a booked slot that regeneration pushed outside the
// doctor's availability. The appointment is kept; resolution is a human
// decision driven by the emitted event.
func (s *Service) flagConflict(ctx context.Context, slot *model.AppointmentSlot) {
	s.metrics.ScheduleConflicts.Inc()
	s.logger.Warn("booked slot no longer covered by schedule", map[string]interface{}{
		"doctor_id":      slot.DoctorID,
		"date":           slot.Date.String(),
		"time":           slot.Time.String(),
		"appointment_id": slot.AppointmentID,
	})

	if slot.AppointmentID == nil {
		return
	}
	payload := model.ScheduleConflictPayload{
		DoctorID:      slot.DoctorID,
		Date:          slot.Date,
		Time:          slot.Time,
		AppointmentID: *slot.AppointmentID,
	}
	if err := s.outboxRepo.Create(ctx, model.EventScheduleConflict, payload); err != nil {
		s.logger.Error(err, "failed to record schedule conflict event", map[string]interface{}{
			"appointment_id": *slot.AppointmentID,
		})
	}
}

func regenLockKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("schedule:regen:%s", doctorID)
}
