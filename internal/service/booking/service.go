package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

// Service is the only path through which appointments take and give back
// slots. Claim is a single conditional update, so under concurrent booking
// of the same slot exactly one caller wins and the rest get a conflict.
type Service struct {
	slotRepo repository.SlotRepository
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewService(slotRepo repository.SlotRepository, m *metrics.Metrics, l *logger.Logger) *Service {
	return &Service{
		slotRepo: slotRepo,
		metrics:  m,
		logger:   l,
	}
}

// Slot fetches the slot row, nil when none exists.
func (s *Service) Slot(ctx context.Context, key model.SlotKey) (*model.AppointmentSlot, error) {
	slot, err := s.slotRepo.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Storage("slot lookup", err)
	}
	return slot, nil
}

// IsAvailable is the advisory pre-check. The claim re-checks atomically, so a
// true here may still lose the race.
func (s *Service) IsAvailable(ctx context.Context, key model.SlotKey) (bool, error) {
	slot, err := s.slotRepo.Get(ctx, key)
	if err != nil {
		return false, apperrors.Storage("slot lookup", err)
	}
	if slot == nil {
		return false, nil
	}
	return slot.Bookable(), nil
}

// Claim books the slot for the appointment or returns the slot-unavailable
// conflict. No row, closed slot and already-booked slot are indistinguishable
// to the caller: in every case the slot cannot be booked.
func (s *Service) Claim(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) error {
	claimed, err := s.slotRepo.Claim(ctx, key, appointmentID)
	if err != nil {
		s.metrics.SlotClaims.WithLabelValues("error").Inc()
		return apperrors.Storage("slot claim", err)
	}
	if !claimed {
		s.metrics.SlotClaims.WithLabelValues("conflict").Inc()
		s.metrics.ClaimConflict.Inc()
		return apperrors.SlotUnavailable()
	}
	s.metrics.SlotClaims.WithLabelValues("success").Inc()
	return nil
}

// Release frees whatever slot the appointment holds. Idempotent: releasing
// an appointment that holds nothing reports false without error.
func (s *Service) Release(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	released, err := s.slotRepo.Release(ctx, appointmentID)
	if err != nil {
		return false, apperrors.Storage("slot release", err)
	}
	if released {
		s.metrics.SlotReleases.Inc()
	}
	return released, nil
}

// ReleaseKey frees one slot held by the appointment, leaving any other slot
// it holds alone. Used to drop the old slot after a reschedule claims the
// new one.
func (s *Service) ReleaseKey(ctx context.Context, key model.SlotKey, appointmentID uuid.UUID) (bool, error) {
	released, err := s.slotRepo.ReleaseKey(ctx, key, appointmentID)
	if err != nil {
		return false, apperrors.Storage("slot release", err)
	}
	if released {
		s.metrics.SlotReleases.Inc()
	}
	return released, nil
}
