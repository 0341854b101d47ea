package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/telehealth-api/internal/email"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
)

// Channels on which scheduling events are fanned out to downstream
// consumers (patient messaging, calendars, analytics).
const (
	ChannelAppointments = "appointments"
	ChannelConflicts    = "schedule-conflicts"
)

// Service turns outbox events into broker messages and, for schedule
// conflicts, an alert to the operations inbox. Patient contact details are
// owned by downstream consumers, never by this service.
type Service struct {
	broker   messaging.Broker
	emailSvc email.Service
	alertsTo string
	logger   *logger.Logger
}

func NewService(broker messaging.Broker, emailSvc email.Service, alertsTo string, l *logger.Logger) *Service {
	return &Service{
		broker:   broker,
		emailSvc: emailSvc,
		alertsTo: alertsTo,
		logger:   l,
	}
}

// Handle dispatches one outbox event. Errors bubble up so the processor can
// schedule a retry.
func (s *Service) Handle(ctx context.Context, event *model.OutboxEvent) error {
	switch event.EventType {
	case model.EventAppointmentCreated, model.EventAppointmentCancelled:
		return s.broker.Publish(ctx, ChannelAppointments, json.RawMessage(event.Payload))
	case model.EventScheduleConflict:
		return s.handleConflict(ctx, event)
	default:
		// Unknown types are dropped, not retried: retrying can never fix
		// them.
		s.logger.Warn("dropping outbox event of unknown type", map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.EventType,
		})
		return nil
	}
}

func (s *Service) handleConflict(ctx context.Context, event *model.OutboxEvent) error {
	if err := s.broker.Publish(ctx, ChannelConflicts, json.RawMessage(event.Payload)); err != nil {
		return err
	}

	if s.alertsTo == "" {
		return nil
	}

	var payload model.ScheduleConflictPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode conflict payload: %w", err)
	}

	subject := fmt.Sprintf("Schedule conflict for doctor %s on %s", payload.DoctorID, payload.Date)
	content := fmt.Sprintf(
		"Appointment %s at %s %s is booked on a slot the doctor's schedule no longer covers. "+
			"The booking was kept and needs manual rescheduling.",
		payload.AppointmentID, payload.Date, payload.Time,
	)
	return s.emailSvc.SendScheduleConflictAlert(ctx, s.alertsTo, subject, content)
}
