package appointment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository/memory"
	"github.com/jwalitptl/telehealth-api/internal/service/booking"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "appointment")

type fixture struct {
	svc             *Service
	appointmentRepo *memory.AppointmentRepository
	slotRepo        *memory.SlotRepository
	outboxRepo      *memory.OutboxRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	appointmentRepo := memory.NewAppointmentRepository()
	slotRepo := memory.NewSlotRepository()
	outboxRepo := memory.NewOutboxRepository()
	l := logger.NewLogger(nil)

	bookingSvc := booking.NewService(slotRepo, testMetrics, l)
	return &fixture{
		svc:             NewService(appointmentRepo, outboxRepo, bookingSvc, l),
		appointmentRepo: appointmentRepo,
		slotRepo:        slotRepo,
		outboxRepo:      outboxRepo,
	}
}

func (f *fixture) seedSlot(t *testing.T, key model.SlotKey) {
	t.Helper()
	require.NoError(t, f.slotRepo.UpsertOpen(context.Background(), []*model.AppointmentSlot{{
		DoctorID:        key.DoctorID,
		Date:            key.Date,
		Time:            key.Time,
		DurationMinutes: 30,
	}}))
}

func patient() Actor { return Actor{ID: uuid.New(), Role: auth.RolePatient} }

func futureKey(doctorID uuid.UUID) model.SlotKey {
	return model.SlotKey{
		DoctorID: doctorID,
		Date:     model.Today().AddDays(1),
		Time:     model.NewTimeOfDay(10, 0),
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("books the slot and records the appointment", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID,
			Date:     key.Date,
			Time:     key.Time,
			Type:     model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusScheduled, appointment.Status)
		assert.Equal(t, actor.ID, appointment.PatientID)
		assert.Equal(t, 30, appointment.DurationMinutes)

		slot, err := f.slotRepo.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, slot.AppointmentID)
		assert.Equal(t, appointment.ID, *slot.AppointmentID)

		events := f.outboxRepo.Events()
		require.Len(t, events, 1)
		assert.Equal(t, model.EventAppointmentCreated, events[0].EventType)
	})

	t.Run("doctor cannot book", func(t *testing.T) {
		f := newFixture(t)
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		_, err := f.svc.Create(ctx, Actor{ID: key.DoctorID, Role: auth.RoleDoctor}, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID,
			Date:     key.Date,
			Time:     key.Time,
			Type:     model.AppointmentTypeConsultation,
		})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	})

	t.Run("taken slot is a conflict", func(t *testing.T) {
		f := newFixture(t)
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		req := &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID,
			Date:     key.Date,
			Time:     key.Time,
			Type:     model.AppointmentTypeConsultation,
		}
		_, err := f.svc.Create(ctx, patient(), req)
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, patient(), req)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	})

	t.Run("start in the past is rejected", func(t *testing.T) {
		f := newFixture(t)
		key := model.SlotKey{DoctorID: uuid.New(), Date: model.Today().AddDays(-1), Time: model.NewTimeOfDay(10, 0)}
		f.seedSlot(t, key)

		_, err := f.svc.Create(ctx, patient(), &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID,
			Date:     key.Date,
			Time:     key.Time,
			Type:     model.AppointmentTypeConsultation,
		})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("releases the slot and is idempotent", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		cancelled, err := f.svc.Cancel(ctx, actor, appointment.ID, "feeling better")
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelReason)
		assert.Equal(t, "feeling better", *cancelled.CancelReason)

		slot, err := f.slotRepo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, slot.AppointmentID, "slot must be bookable again")

		again, err := f.svc.Cancel(ctx, actor, appointment.ID, "")
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusCancelled, again.Status)

		events := f.outboxRepo.Events()
		require.Len(t, events, 2)
		assert.Equal(t, model.EventAppointmentCancelled, events[1].EventType)
	})

	t.Run("stranger cannot cancel", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, patient(), appointment.ID, "")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	})

	t.Run("completed appointment cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		appointment := &model.Appointment{
			ID:        uuid.New(),
			PatientID: actor.ID,
			DoctorID:  uuid.New(),
			Date:      model.Today().AddDays(-1),
			Time:      model.NewTimeOfDay(10, 0),
			Type:      model.AppointmentTypeConsultation,
			Status:    model.AppointmentStatusCompleted,
		}
		require.NoError(t, f.appointmentRepo.Create(ctx, appointment))

		_, err := f.svc.Cancel(ctx, actor, appointment.ID, "")
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	})
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()

	t.Run("moves to the new slot and frees the old one", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		oldKey := futureKey(uuid.New())
		newKey := model.SlotKey{DoctorID: oldKey.DoctorID, Date: oldKey.Date, Time: model.NewTimeOfDay(14, 0)}
		f.seedSlot(t, oldKey)
		f.seedSlot(t, newKey)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: oldKey.DoctorID, Date: oldKey.Date, Time: oldKey.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		moved, err := f.svc.Reschedule(ctx, actor, appointment.ID, &model.RescheduleAppointmentRequest{
			Date: newKey.Date, Time: newKey.Time,
		})
		require.NoError(t, err)
		assert.Equal(t, newKey.Time, moved.Time)

		oldSlot, err := f.slotRepo.Get(ctx, oldKey)
		require.NoError(t, err)
		assert.Nil(t, oldSlot.AppointmentID)

		newSlot, err := f.slotRepo.Get(ctx, newKey)
		require.NoError(t, err)
		require.NotNil(t, newSlot.AppointmentID)
		assert.Equal(t, appointment.ID, *newSlot.AppointmentID)
	})

	t.Run("taken target keeps the old slot", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		oldKey := futureKey(uuid.New())
		newKey := model.SlotKey{DoctorID: oldKey.DoctorID, Date: oldKey.Date, Time: model.NewTimeOfDay(14, 0)}
		f.seedSlot(t, oldKey)
		f.seedSlot(t, newKey)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: oldKey.DoctorID, Date: oldKey.Date, Time: oldKey.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		_, err = f.svc.Create(ctx, patient(), &model.CreateAppointmentRequest{
			DoctorID: newKey.DoctorID, Date: newKey.Date, Time: newKey.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		_, err = f.svc.Reschedule(ctx, actor, appointment.ID, &model.RescheduleAppointmentRequest{
			Date: newKey.Date, Time: newKey.Time,
		})
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

		oldSlot, err := f.slotRepo.Get(ctx, oldKey)
		require.NoError(t, err)
		require.NotNil(t, oldSlot.AppointmentID)
		assert.Equal(t, appointment.ID, *oldSlot.AppointmentID)
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("doctor confirms", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		doctor := Actor{ID: key.DoctorID, Role: auth.RoleDoctor}
		updated, err := f.svc.UpdateStatus(ctx, doctor, appointment.ID, model.AppointmentStatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusConfirmed, updated.Status)

		// Patients never drive status transitions.
		_, err = f.svc.UpdateStatus(ctx, actor, appointment.ID, model.AppointmentStatusCompleted)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	})

	t.Run("no-show requires the start to have passed", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		doctor := Actor{ID: key.DoctorID, Role: auth.RoleDoctor}
		_, err = f.svc.UpdateStatus(ctx, doctor, appointment.ID, model.AppointmentStatusNoShow)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	})

	t.Run("no-show after start releases the slot", func(t *testing.T) {
		f := newFixture(t)
		doctorID := uuid.New()
		appointment := &model.Appointment{
			ID:        uuid.New(),
			PatientID: uuid.New(),
			DoctorID:  doctorID,
			Date:      model.Today().AddDays(-1),
			Time:      model.NewTimeOfDay(10, 0),
			Type:      model.AppointmentTypeConsultation,
			Status:    model.AppointmentStatusScheduled,
		}
		require.NoError(t, f.appointmentRepo.Create(ctx, appointment))
		key := appointment.SlotKey()
		f.seedSlot(t, key)
		claimed, err := f.slotRepo.Claim(ctx, key, appointment.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		doctor := Actor{ID: doctorID, Role: auth.RoleDoctor}
		updated, err := f.svc.UpdateStatus(ctx, doctor, appointment.ID, model.AppointmentStatusNoShow)
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusNoShow, updated.Status)

		slot, err := f.slotRepo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, slot.AppointmentID)
	})

	t.Run("invalid transition is a conflict", func(t *testing.T) {
		f := newFixture(t)
		actor := patient()
		key := futureKey(uuid.New())
		f.seedSlot(t, key)

		appointment, err := f.svc.Create(ctx, actor, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)

		doctor := Actor{ID: key.DoctorID, Role: auth.RoleDoctor}
		_, err = f.svc.UpdateStatus(ctx, doctor, appointment.ID, model.AppointmentStatusCompleted)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	})
}

func TestListScopesToCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	actor := patient()
	other := patient()
	doctorID := uuid.New()

	for i, a := range []Actor{actor, other} {
		key := model.SlotKey{
			DoctorID: doctorID,
			Date:     model.Today().AddDays(1),
			Time:     model.NewTimeOfDay(9+i, 0),
		}
		f.seedSlot(t, key)
		_, err := f.svc.Create(ctx, a, &model.CreateAppointmentRequest{
			DoctorID: key.DoctorID, Date: key.Date, Time: key.Time,
			Type: model.AppointmentTypeConsultation,
		})
		require.NoError(t, err)
	}

	mine, err := f.svc.List(ctx, actor, &model.AppointmentFilters{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, actor.ID, mine[0].PatientID)

	all, err := f.svc.List(ctx, Actor{ID: doctorID, Role: auth.RoleDoctor}, &model.AppointmentFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	doctorID := uuid.New()
	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusScheduled,
		model.AppointmentStatusScheduled,
		model.AppointmentStatusCancelled,
	} {
		require.NoError(t, f.appointmentRepo.Create(ctx, &model.Appointment{
			ID:        uuid.New(),
			PatientID: uuid.New(),
			DoctorID:  doctorID,
			Date:      model.Today(),
			Time:      model.NewTimeOfDay(9, 0),
			Status:    status,
		}))
	}

	counts, err := f.svc.Stats(ctx, Actor{ID: doctorID, Role: auth.RoleDoctor}, doctorID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.AppointmentStatusScheduled])
	assert.Equal(t, 1, counts[model.AppointmentStatusCancelled])

	_, err = f.svc.Stats(ctx, Actor{ID: uuid.New(), Role: auth.RoleDoctor}, doctorID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}
