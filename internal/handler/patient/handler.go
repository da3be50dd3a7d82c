package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	patientService "github.com/jwalitptl/homecare-api/internal/service/patient"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service patientService.PatientService
	auth    *middleware.AuthMiddleware
}

func NewHandler(service patientService.PatientService, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.auth.RequireRole(auth.RoleCustomer), h.CreatePatient)
		patients.GET("", h.auth.RequireRole(auth.RoleCustomer), h.ListPatients)
		patients.GET("/:id", h.auth.RequireRole(auth.RoleCustomer, auth.RoleAdmin), h.GetPatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !handler.Bind(c, &req) {
		return
	}

	patient, err := h.service.CreatePatient(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, patient)
}

func (h *Handler) ListPatients(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patients, err := h.service.ListPatients(c.Request.Context(), actor.ID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patients)
}

func (h *Handler) GetPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	patient, err := h.service.GetPatient(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}
