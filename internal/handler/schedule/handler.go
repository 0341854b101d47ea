package schedule

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	scheduleSvc "github.com/jwalitptl/telehealth-api/internal/service/schedule"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type Handler struct {
	service *scheduleSvc.Service
}

func NewHandler(service *scheduleSvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) SetTemplate(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.SetTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid request body", err))
		return
	}

	tmpl, err := h.service.SetTemplate(c.Request.Context(), middleware.SubjectID(c), doctorID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tmpl)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	tmpl, err := h.service.GetTemplate(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tmpl)
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.service.DeleteTemplate(c.Request.Context(), middleware.SubjectID(c), doctorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": true})
}

func (h *Handler) SetOverride(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.CreateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid request body", err))
		return
	}

	override, err := h.service.SetOverride(c.Request.Context(), middleware.SubjectID(c), doctorID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, override)
}

func (h *Handler) ListOverrides(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	overrides, err := h.service.ListOverrides(c.Request.Context(), doctorID, from, to)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, overrides)
}

func (h *Handler) DeleteOverride(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid date", err))
		return
	}

	if err := h.service.DeleteOverride(c.Request.Context(), middleware.SubjectID(c), doctorID, date); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"deleted": true})
}

func (h *Handler) AddBlockTime(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var req model.AddBlockTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid request body", err))
		return
	}

	override, err := h.service.AddBlockTime(c.Request.Context(), middleware.SubjectID(c), doctorID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, override)
}

func (h *Handler) BlockTimeReasons(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.service.BlockTimeReasons())
}

func (h *Handler) DayView(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validation("invalid date", err))
		return
	}

	view, err := h.service.DayView(c.Request.Context(), doctorID, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

// AvailableSlots is the patient-facing browse endpoint. Missing range bounds
// default to the scheduling horizon.
func (h *Handler) AvailableSlots(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	slots, err := h.service.AvailableSlots(c.Request.Context(), doctorID, from, to)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) Regenerate(c *gin.Context) {
	doctorID, err := pathUUID(c, "id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.service.Regenerate(c.Request.Context(), middleware.SubjectID(c), doctorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"regenerated": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid "+name, err)
	}
	return id, nil
}

// dateRange reads optional from/to query params; zero values mean the caller
// wants the service defaults.
func dateRange(c *gin.Context) (model.Date, model.Date, error) {
	var from, to model.Date
	var err error

	if raw := c.Query("from"); raw != "" {
		if from, err = model.ParseDate(raw); err != nil {
			return from, to, apperrors.Validation("invalid from date", err)
		}
	} else {
		from = model.Today()
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = model.ParseDate(raw); err != nil {
			return from, to, apperrors.Validation("invalid to date", err)
		}
	}
	return from, to, nil
}
