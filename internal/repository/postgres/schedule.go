package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/model"
)

func (r *scheduleRepository) UpsertTemplate(ctx context.Context, tmpl *model.WeeklyTemplate) error {
	query := `
		INSERT INTO weekly_templates (doctor_id, days, slot_duration_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (doctor_id) DO UPDATE
		SET days = EXCLUDED.days,
		    slot_duration_minutes = EXCLUDED.slot_duration_minutes,
		    updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	tmpl.UpdatedAt = now
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query, tmpl.DoctorID, tmpl.Days, tmpl.SlotDurationMinutes, now)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly template: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetTemplate(ctx context.Context, doctorID uuid.UUID) (*model.WeeklyTemplate, error) {
	query := `
		SELECT doctor_id, days, slot_duration_minutes, created_at, updated_at
		FROM weekly_templates
		WHERE doctor_id = $1
	`
	var tmpl model.WeeklyTemplate
	err := r.db.GetContext(ctx, &tmpl, query, doctorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get weekly template: %w", err)
	}
	return &tmpl, nil
}

func (r *scheduleRepository) DeleteTemplate(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM weekly_templates WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return false, fmt.Errorf("failed to delete weekly template: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *scheduleRepository) UpsertOverride(ctx context.Context, override *model.DailyOverride) error {
	query := `
		INSERT INTO daily_overrides (
			id, doctor_id, override_date, is_available,
			start_time, end_time, block_times, reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (doctor_id, override_date) DO UPDATE
		SET is_available = EXCLUDED.is_available,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    block_times = EXCLUDED.block_times,
		    reason = EXCLUDED.reason,
		    updated_at = EXCLUDED.updated_at
	`
	if override.ID == uuid.Nil {
		override.ID = uuid.New()
	}
	now := time.Now()
	override.UpdatedAt = now
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		override.ID,
		override.DoctorID,
		override.Date,
		override.Available,
		override.Start,
		override.End,
		override.BlockTimes,
		override.Reason,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily override: %w", err)
	}
	return nil
}

func (r *scheduleRepository) GetOverride(ctx context.Context, doctorID uuid.UUID, date model.Date) (*model.DailyOverride, error) {
	query := `
		SELECT id, doctor_id, override_date, is_available,
		       start_time, end_time, block_times, reason,
		       created_at, updated_at
		FROM daily_overrides
		WHERE doctor_id = $1 AND override_date = $2
	`
	var override model.DailyOverride
	err := r.db.GetContext(ctx, &override, query, doctorID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily override: %w", err)
	}
	return &override, nil
}

func (r *scheduleRepository) ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to model.Date) ([]*model.DailyOverride, error) {
	query := `
		SELECT id, doctor_id, override_date, is_available,
		       start_time, end_time, block_times, reason,
		       created_at, updated_at
		FROM daily_overrides
		WHERE doctor_id = $1 AND override_date BETWEEN $2 AND $3
		ORDER BY override_date ASC
	`
	var overrides []*model.DailyOverride
	err := r.db.SelectContext(ctx, &overrides, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily overrides: %w", err)
	}
	return overrides, nil
}

func (r *scheduleRepository) DeleteOverride(ctx context.Context, doctorID uuid.UUID, date model.Date) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM daily_overrides WHERE doctor_id = $1 AND override_date = $2`,
		doctorID, date,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete daily override: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
