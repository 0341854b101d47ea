package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/telehealth-api/config"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service/availability"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
)

// Service owns templates, overrides and block times. Every mutation that
// changes resolved availability triggers slot regeneration before returning,
// so readers of the slot table never see a stale schedule for long.
type Service struct {
	scheduleRepo repository.ScheduleRepository
	slotRepo     repository.SlotRepository
	regenerator  *availability.Service
	cache        *gocache.Cache
	logger       *logger.Logger
	cfg          config.SchedulingConfig
}

func NewService(
	scheduleRepo repository.ScheduleRepository,
	slotRepo repository.SlotRepository,
	regenerator *availability.Service,
	l *logger.Logger,
	cfg config.SchedulingConfig,
) *Service {
	return &Service{
		scheduleRepo: scheduleRepo,
		slotRepo:     slotRepo,
		regenerator:  regenerator,
		cache:        gocache.New(cfg.TemplateCacheTTL, 2*cfg.TemplateCacheTTL),
		logger:       l,
		cfg:          cfg,
	}
}

// SetTemplate replaces the doctor's weekly template and regenerates the full
// horizon. Only the doctor may change their own template.
func (s *Service) SetTemplate(ctx context.Context, actorID, doctorID uuid.UUID, req *model.SetTemplateRequest) (*model.WeeklyTemplate, error) {
	if actorID != doctorID {
		return nil, apperrors.Forbidden("cannot modify another doctor's schedule")
	}

	tmpl := &model.WeeklyTemplate{
		DoctorID:            doctorID,
		Days:                req.Days,
		SlotDurationMinutes: req.SlotDurationMinutes,
	}
	if err := tmpl.Validate(); err != nil {
		return nil, apperrors.Validation("invalid weekly template", err)
	}

	if err := s.scheduleRepo.UpsertTemplate(ctx, tmpl); err != nil {
		return nil, apperrors.Storage("template upsert", err)
	}
	s.cache.Delete(templateCacheKey(doctorID))

	if err := s.regenerator.RegenerateHorizon(ctx, doctorID); err != nil {
		return nil, err
	}

	s.logger.Info("weekly template replaced", map[string]interface{}{
		"doctor_id":     doctorID,
		"slot_duration": tmpl.SlotDurationMinutes,
	})
	return tmpl, nil
}

// GetTemplate serves reads through a short-lived cache; the cache is
// invalidated on every write so regeneration always sees fresh data.
func (s *Service) GetTemplate(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyTemplate, error) {
	key := templateCacheKey(doctorID)
	if cached, found := s.cache.Get(key); found {
		return cached.(*model.WeeklyTemplate), nil
	}

	tmpl, err := s.scheduleRepo.GetTemplate(ctx, doctorID)
	if err != nil {
		return nil, apperrors.Storage("template lookup", err)
	}
	if tmpl == nil {
		return nil, apperrors.NotFound("weekly template", nil)
	}

	s.cache.Set(key, tmpl, gocache.DefaultExpiration)
	return tmpl, nil
}

// DeleteTemplate removes the template and clears unbooked future slots.
// Booked slots and their appointments are untouched.
func (s *Service) DeleteTemplate(ctx context.Context, actorID, doctorID uuid.UUID) error {
	if actorID != doctorID {
		return apperrors.Forbidden("cannot modify another doctor's schedule")
	}

	deleted, err := s.scheduleRepo.DeleteTemplate(ctx, doctorID)
	if err != nil {
		return apperrors.Storage("template delete", err)
	}
	if !deleted {
		return apperrors.NotFound("weekly template", nil)
	}
	s.cache.Delete(templateCacheKey(doctorID))

	return s.regenerator.ClearFrom(ctx, doctorID, model.Today())
}

// SetOverride creates or replaces the override for one date and regenerates
// that date.
func (s *Service) SetOverride(ctx context.Context, actorID, doctorID uuid.UUID, req *model.CreateOverrideRequest) (*model.DailyOverride, error) {
	if actorID != doctorID {
		return nil, apperrors.Forbidden("cannot modify another doctor's schedule")
	}

	override := &model.DailyOverride{
		DoctorID:   doctorID,
		Date:       req.Date,
		Available:  req.Available,
		Start:      req.Start,
		End:        req.End,
		BlockTimes: req.BlockTimes,
		Reason:     req.Reason,
	}
	if err := override.Validate(); err != nil {
		return nil, apperrors.Validation("invalid daily override", err)
	}
	if override.Date.Before(model.Today()) {
		return nil, apperrors.Validation("override date is in the past", nil)
	}

	if err := s.scheduleRepo.UpsertOverride(ctx, override); err != nil {
		return nil, apperrors.Storage("override upsert", err)
	}

	if err := s.regenerator.RegenerateDate(ctx, doctorID, override.Date); err != nil {
		return nil, err
	}

	s.logger.Info("daily override set", map[string]interface{}{
		"doctor_id": doctorID,
		"date":      override.Date.String(),
		"available": override.Available,
	})
	return override, nil
}

func (s *Service) ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.DailyOverride, error) {
	if to.IsZero() {
		to = from.AddDays(s.cfg.HorizonDays - 1)
	}
	if to.Before(from) {
		return nil, apperrors.Validation("range end precedes start", nil)
	}
	overrides, err := s.scheduleRepo.ListOverrides(ctx, doctorID, from, to)
	if err != nil {
		return nil, apperrors.Storage("override list", err)
	}
	return overrides, nil
}

// DeleteOverride removes the override so the date falls back to the weekly
// template, then regenerates the date.
func (s *Service) DeleteOverride(ctx context.Context, actorID, doctorID uuid.UUID, date model.Date) error {
	if actorID != doctorID {
		return apperrors.Forbidden("cannot modify another doctor's schedule")
	}

	deleted, err := s.scheduleRepo.DeleteOverride(ctx, doctorID, date)
	if err != nil {
		return apperrors.Storage("override delete", err)
	}
	if !deleted {
		return apperrors.NotFound("daily override", nil)
	}

	return s.regenerator.RegenerateDate(ctx, doctorID, date)
}

// AddBlockTime appends an exclusion window to a date, creating an
// availability-preserving override when none exists yet.
func (s *Service) AddBlockTime(ctx context.Context, actorID, doctorID uuid.UUID, req *model.AddBlockTimeRequest) (*model.DailyOverride, error) {
	if actorID != doctorID {
		return nil, apperrors.Forbidden("cannot modify another doctor's schedule")
	}

	block := model.BlockTimeSlot{
		Start:       req.Start,
		End:         req.End,
		Reason:      req.Reason,
		Description: req.Description,
	}
	if err := block.Validate(); err != nil {
		return nil, apperrors.Validation("invalid block time", err)
	}
	if req.Date.Before(model.Today()) {
		return nil, apperrors.Validation("block time date is in the past", nil)
	}

	override, err := s.scheduleRepo.GetOverride(ctx, doctorID, req.Date)
	if err != nil {
		return nil, apperrors.Storage("override lookup", err)
	}
	if override == nil {
		override = &model.DailyOverride{
			DoctorID:  doctorID,
			Date:      req.Date,
			Available: true,
		}
	}

	for _, existing := range override.BlockTimes {
		if existing.Overlaps(block.Start, block.End) {
			return nil, apperrors.Conflict(
				fmt.Sprintf("block time overlaps existing %s-%s", existing.Start, existing.End), nil)
		}
	}
	override.BlockTimes = append(override.BlockTimes, block)

	if err := s.scheduleRepo.UpsertOverride(ctx, override); err != nil {
		return nil, apperrors.Storage("override upsert", err)
	}

	if err := s.regenerator.RegenerateDate(ctx, doctorID, req.Date); err != nil {
		return nil, err
	}
	return override, nil
}

// BlockTimeReasons returns the closed reason catalog for client pickers.
func (s *Service) BlockTimeReasons() []model.BlockTimeReason {
	return model.BlockTimeReasons()
}

// DayView assembles template, override, stored slots and the resolved
// effective availability for one doctor-date.
func (s *Service) DayView(ctx context.Context, doctorID uuid.UUID, date model.Date) (*model.DayView, error) {
	tmpl, err := s.scheduleRepo.GetTemplate(ctx, doctorID)
	if err != nil {
		return nil, apperrors.Storage("template lookup", err)
	}
	override, err := s.scheduleRepo.GetOverride(ctx, doctorID, date)
	if err != nil {
		return nil, apperrors.Storage("override lookup", err)
	}
	slots, err := s.slotRepo.ListByDate(ctx, doctorID, date)
	if err != nil {
		return nil, apperrors.Storage("slot list", err)
	}

	return &model.DayView{
		DoctorID:     doctorID,
		Date:         date,
		Weekday:      model.WeekdayOf(date.Weekday()),
		Template:     tmpl,
		Override:     override,
		Slots:        slots,
		EffectiveDay: availability.Resolve(tmpl, override, date),
	}, nil
}

// AvailableSlots lists bookable slots inside the horizon. Requests beyond the
// horizon are clamped, not rejected.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.AppointmentSlot, error) {
	today := model.Today()
	if from.Before(today) {
		from = today
	}
	horizon := today.AddDays(s.cfg.HorizonDays - 1)
	if to.IsZero() || to.After(horizon) {
		to = horizon
	}
	if to.Before(from) {
		return []*model.AppointmentSlot{}, nil
	}

	slots, err := s.slotRepo.ListAvailable(ctx, doctorID, from, to)
	if err != nil {
		return nil, apperrors.Storage("slot list", err)
	}
	return slots, nil
}

// Regenerate exposes a manual full-horizon rebuild, used by the maintenance
// endpoint and the worker's nightly roll-forward.
func (s *Service) Regenerate(ctx context.Context, actorID, doctorID uuid.UUID) error {
	if actorID != doctorID {
		return apperrors.Forbidden("cannot regenerate another doctor's schedule")
	}
	return s.regenerator.RegenerateHorizon(ctx, doctorID)
}

func templateCacheKey(doctorID uuid.UUID) string {
	return "template:" + doctorID.String()
}
