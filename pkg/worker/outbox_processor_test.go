package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository/memory"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "worker")

type recordingHandler struct {
	err     error
	handled []*model.OutboxEvent
}

func (h *recordingHandler) Handle(_ context.Context, event *model.OutboxEvent) error {
	h.handled = append(h.handled, event)
	return h.err
}

func newProcessor(t *testing.T, handler Handler, cfg OutboxProcessorConfig) (*OutboxProcessor, *memory.OutboxRepository) {
	t.Helper()
	repo := memory.NewOutboxRepository()
	return NewOutboxProcessor(repo, handler, cfg, logger.NewLogger(nil), testMetrics), repo
}

func defaultConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}
}

func TestProcessEventsMarksProcessed(t *testing.T) {
	ctx := context.Background()
	handler := &recordingHandler{}
	processor, repo := newProcessor(t, handler, defaultConfig())

	require.NoError(t, repo.Create(ctx, model.EventAppointmentCreated, map[string]string{"k": "v"}))
	require.NoError(t, repo.Create(ctx, model.EventAppointmentCancelled, map[string]string{"k": "v"}))

	require.NoError(t, processor.processEvents(ctx))

	assert.Len(t, handler.handled, 2)
	for _, event := range repo.Events() {
		assert.Equal(t, model.OutboxStatusProcessed, event.Status)
		assert.NotNil(t, event.ProcessedAt)
	}

	// A processed event is not picked up again.
	handler.handled = nil
	require.NoError(t, processor.processEvents(ctx))
	assert.Empty(t, handler.handled)
}

func TestFailingEventBacksOffThenParks(t *testing.T) {
	ctx := context.Background()
	handler := &recordingHandler{err: errors.New("broker down")}
	cfg := defaultConfig()
	cfg.RetryAttempts = 2
	processor, repo := newProcessor(t, handler, cfg)

	require.NoError(t, repo.Create(ctx, model.EventScheduleConflict, map[string]string{"k": "v"}))

	require.NoError(t, processor.processEvents(ctx))

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].RetryAt)
	assert.True(t, events[0].RetryAt.After(time.Now()))

	// Force the retry due and exhaust the budget.
	past := time.Now().Add(-time.Second)
	events[0].RetryAt = &past

	require.NoError(t, processor.processEvents(ctx))

	events = repo.Events()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].RetryCount)
	assert.Nil(t, events[0].RetryAt)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, "broker down", *events[0].ErrorMessage)
}

func TestBatchSizeLimitsPickup(t *testing.T) {
	ctx := context.Background()
	handler := &recordingHandler{}
	cfg := defaultConfig()
	cfg.BatchSize = 2
	processor, repo := newProcessor(t, handler, cfg)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, model.EventAppointmentCreated, map[string]int{"n": i}))
	}

	require.NoError(t, processor.processEvents(ctx))
	assert.Len(t, handler.handled, 2)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	repo := memory.NewOutboxRepository()
	handler := &recordingHandler{}
	l := logger.NewLogger(nil)

	bad := defaultConfig()
	bad.BatchSize = 0
	assert.Panics(t, func() { NewOutboxProcessor(repo, handler, bad, l, testMetrics) })

	bad = defaultConfig()
	bad.PollInterval = 0
	assert.Panics(t, func() { NewOutboxProcessor(repo, handler, bad, l, testMetrics) })

	bad = defaultConfig()
	bad.RetryAttempts = 0
	assert.Panics(t, func() { NewOutboxProcessor(repo, handler, bad, l, testMetrics) })

	bad = defaultConfig()
	bad.RetryDelay = 0
	assert.Panics(t, func() { NewOutboxProcessor(repo, handler, bad, l, testMetrics) })
}
