package consent

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/model"
	consentService "github.com/jwalitptl/homecare-api/internal/service/consent"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service consentService.ConsentService
}

func NewHandler(service consentService.ConsentService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consents := r.Group("/consents")
	{
		consents.GET("", h.ListConsents)
		consents.GET("/required", h.GetRequiredConsents)
		consents.POST("/accept", h.AcceptConsent)
		consents.POST("/revoke", h.RevokeConsent)
	}
}

func (h *Handler) ListConsents(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	records, err := h.service.ListConsents(c.Request.Context(), actor.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, records)
}

func (h *Handler) GetRequiredConsents(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patientID, ok := handler.OptionalQueryID(c, "patient_id")
	if !ok {
		return
	}

	required, err := h.service.GetRequiredConsents(c.Request.Context(), actor.ID, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, required)
}

func (h *Handler) AcceptConsent(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.AcceptConsentRequest
	if !handler.Bind(c, &req) {
		return
	}

	record, err := h.service.AcceptConsent(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}

func (h *Handler) RevokeConsent(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.RevokeConsentRequest
	if !handler.Bind(c, &req) {
		return
	}

	record, err := h.service.RevokeConsent(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}
