package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "booking")

func newService(t *testing.T) (*Service, *memory.SlotRepository) {
	t.Helper()
	slotRepo := memory.NewSlotRepository()
	return NewService(slotRepo, testMetrics, logger.NewLogger(nil)), slotRepo
}

func seedSlot(t *testing.T, repo *memory.SlotRepository, key model.SlotKey) {
	t.Helper()
	require.NoError(t, repo.UpsertOpen(context.Background(), []*model.AppointmentSlot{{
		DoctorID:        key.DoctorID,
		Date:            key.Date,
		Time:            key.Time,
		DurationMinutes: 30,
	}}))
}

func TestClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	key := model.SlotKey{DoctorID: uuid.New(), Date: model.Today(), Time: model.NewTimeOfDay(9, 0)}
	seedSlot(t, repo, key)

	available, err := svc.IsAvailable(ctx, key)
	require.NoError(t, err)
	assert.True(t, available)

	appointmentID := uuid.New()
	require.NoError(t, svc.Claim(ctx, key, appointmentID))

	available, err = svc.IsAvailable(ctx, key)
	require.NoError(t, err)
	assert.False(t, available)

	// Second claim of the same slot is a conflict.
	err = svc.Claim(ctx, key, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	released, err := svc.Release(ctx, appointmentID)
	require.NoError(t, err)
	assert.True(t, released)

	// Releasing again is a no-op, not an error.
	released, err = svc.Release(ctx, appointmentID)
	require.NoError(t, err)
	assert.False(t, released)

	available, err = svc.IsAvailable(ctx, key)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestClaimMissingSlot(t *testing.T) {
	svc, _ := newService(t)

	key := model.SlotKey{DoctorID: uuid.New(), Date: model.Today(), Time: model.NewTimeOfDay(9, 0)}
	err := svc.Claim(context.Background(), key, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	available, err := svc.IsAvailable(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, available)
}

// Many concurrent claims of one slot must produce exactly one winner.
func TestConcurrentClaimsSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	key := model.SlotKey{DoctorID: uuid.New(), Date: model.Today(), Time: model.NewTimeOfDay(10, 0)}
	seedSlot(t, repo, key)

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Claim(ctx, key, uuid.New()); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("claims did not finish")
	}

	assert.Equal(t, 1, winners)
}

func TestReleaseKeyOnlyTouchesGivenSlot(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	doctorID := uuid.New()
	oldKey := model.SlotKey{DoctorID: doctorID, Date: model.Today(), Time: model.NewTimeOfDay(9, 0)}
	newKey := model.SlotKey{DoctorID: doctorID, Date: model.Today(), Time: model.NewTimeOfDay(10, 0)}
	seedSlot(t, repo, oldKey)
	seedSlot(t, repo, newKey)

	appointmentID := uuid.New()
	require.NoError(t, svc.Claim(ctx, oldKey, appointmentID))
	require.NoError(t, svc.Claim(ctx, newKey, appointmentID))

	released, err := svc.ReleaseKey(ctx, oldKey, appointmentID)
	require.NoError(t, err)
	assert.True(t, released)

	available, err := svc.IsAvailable(ctx, oldKey)
	require.NoError(t, err)
	assert.True(t, available)

	available, err = svc.IsAvailable(ctx, newKey)
	require.NoError(t, err)
	assert.False(t, available, "the new slot must stay claimed")
}
