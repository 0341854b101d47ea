package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository/memory"
	appointmentSvc "github.com/jwalitptl/telehealth-api/internal/service/appointment"
	"github.com/jwalitptl/telehealth-api/internal/service/booking"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "appointmenthandler")

type fixture struct {
	router   *gin.Engine
	slotRepo *memory.SlotRepository
}

// newFixture builds the handler behind a stub that injects the caller's
// identity the way Authenticate would.
func newFixture(t *testing.T, subjectID uuid.UUID, role string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slotRepo := memory.NewSlotRepository()
	l := logger.NewLogger(nil)
	svc := appointmentSvc.NewService(
		memory.NewAppointmentRepository(),
		memory.NewOutboxRepository(),
		booking.NewService(slotRepo, testMetrics, l),
		l,
	)
	h := NewHandler(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextSubjectID, subjectID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	})
	router.POST("/appointments", h.Create)
	router.GET("/appointments", h.List)
	router.GET("/appointments/:id", h.Get)
	router.POST("/appointments/:id/cancel", h.Cancel)

	return &fixture{router: router, slotRepo: slotRepo}
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

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestCreateEndpoint(t *testing.T) {
	patientID := uuid.New()
	f := newFixture(t, patientID, auth.RolePatient)

	key := model.SlotKey{
		DoctorID: uuid.New(),
		Date:     model.Today().AddDays(1),
		Time:     model.NewTimeOfDay(10, 0),
	}
	f.seedSlot(t, key)

	body := gin.H{
		"doctor_id": key.DoctorID,
		"date":      key.Date.String(),
		"time":      key.Time.String(),
		"type":      "consultation",
	}

	w := f.do(t, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decode(t, w)
	require.True(t, env.Success)
	var created model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, patientID, created.PatientID)
	assert.Equal(t, model.AppointmentStatusScheduled, created.Status)

	// Same slot again: 409 with the user-facing conflict code.
	w = f.do(t, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusConflict, w.Code)
	env = decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestCreateEndpointRejectsBadBody(t *testing.T) {
	f := newFixture(t, uuid.New(), auth.RolePatient)

	w := f.do(t, http.MethodPost, "/appointments", gin.H{"type": "house_call"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEndpointScoping(t *testing.T) {
	patientID := uuid.New()
	f := newFixture(t, patientID, auth.RolePatient)

	key := model.SlotKey{
		DoctorID: uuid.New(),
		Date:     model.Today().AddDays(1),
		Time:     model.NewTimeOfDay(9, 0),
	}
	f.seedSlot(t, key)

	w := f.do(t, http.MethodPost, "/appointments", gin.H{
		"doctor_id": key.DoctorID,
		"date":      key.Date.String(),
		"time":      key.Time.String(),
		"type":      "follow_up",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Appointment
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))

	w = f.do(t, http.MethodGet, fmt.Sprintf("/appointments/%s", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/appointments/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelEndpointAllowsEmptyBody(t *testing.T) {
	patientID := uuid.New()
	f := newFixture(t, patientID, auth.RolePatient)

	key := model.SlotKey{
		DoctorID: uuid.New(),
		Date:     model.Today().AddDays(1),
		Time:     model.NewTimeOfDay(14, 0),
	}
	f.seedSlot(t, key)

	w := f.do(t, http.MethodPost, "/appointments", gin.H{
		"doctor_id": key.DoctorID,
		"date":      key.Date.String(),
		"time":      key.Time.String(),
		"type":      "consultation",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Appointment
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &created))

	w = f.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cancelled model.Appointment
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &cancelled))
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestListEndpointFiltersByStatus(t *testing.T) {
	patientID := uuid.New()
	f := newFixture(t, patientID, auth.RolePatient)

	doctorID := uuid.New()
	for i := 0; i < 2; i++ {
		key := model.SlotKey{
			DoctorID: doctorID,
			Date:     model.Today().AddDays(1),
			Time:     model.NewTimeOfDay(9+i, 0),
		}
		f.seedSlot(t, key)
		w := f.do(t, http.MethodPost, "/appointments", gin.H{
			"doctor_id": key.DoctorID,
			"date":      key.Date.String(),
			"time":      key.Time.String(),
			"type":      "consultation",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodGet, "/appointments?status=scheduled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []*model.Appointment
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Len(t, list, 2)

	w = f.do(t, http.MethodGet, "/appointments?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &list))
	assert.Empty(t, list)
}
