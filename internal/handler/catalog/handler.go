package catalog

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	catalogService "github.com/jwalitptl/homecare-api/internal/service/catalog"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service catalogService.CatalogService
	auth    *middleware.AuthMiddleware
}

func NewHandler(service catalogService.CatalogService, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := h.auth.RequireRole(auth.RoleAdmin)

	r.GET("/services", h.ListServices)

	providers := r.Group("/providers")
	{
		providers.GET("", admin, h.ListProviders)
		providers.GET("/:id/services", h.ListProviderServices)
		providers.PUT("/:id/services", admin, h.SetProviderServices)
		providers.POST("/:id/services", admin, h.AddProviderService)
		providers.DELETE("/:id/services/:service_id", admin, h.RemoveProviderService)
		providers.PUT("/:id/availability", h.auth.RequireRole(auth.RoleAdmin, auth.RoleProvider), h.SetAvailability)
	}

	requests := r.Group("/service-requests")
	{
		requests.POST("", h.auth.RequireRole(auth.RoleProvider), h.SubmitServiceRequest)
		requests.GET("", h.auth.RequireRole(auth.RoleProvider, auth.RoleAdmin), h.ListServiceRequests)
		requests.POST("/:id/approve", admin, h.ApproveServiceRequest)
		requests.POST("/:id/reject", admin, h.RejectServiceRequest)
	}
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.service.ListServices(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

// ListProviders filters by ?service_id= and ?available=true.
func (h *Handler) ListProviders(c *gin.Context) {
	serviceID, ok := handler.OptionalQueryID(c, "service_id")
	if !ok {
		return
	}
	filter := model.ProviderServiceFilter{ServiceID: serviceID}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid available flag", err))
			return
		}
		filter.AvailableOnly = available
	}

	providers, err := h.service.ListProviders(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, providers)
}

func (h *Handler) ListProviderServices(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	services, err := h.service.ListProviderServices(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

// SetProviderServices replaces the provider's service set and reports the
// outcome of every individual change.
func (h *Handler) SetProviderServices(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.SetProviderServicesRequest
	if !handler.Bind(c, &req) {
		return
	}

	changes, err := h.service.AdminSetServices(c.Request.Context(), id, req.ServiceIDs)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"changes": changes})
}

func (h *Handler) AddProviderService(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.AddProviderServiceRequest
	if !handler.Bind(c, &req) {
		return
	}

	change, err := h.service.AddProviderService(c.Request.Context(), id, req.ServiceID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, change)
}

func (h *Handler) RemoveProviderService(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	serviceID, ok := handler.ParseID(c, "service_id")
	if !ok {
		return
	}

	change, err := h.service.RemoveProviderService(c.Request.Context(), id, serviceID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, change)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.SetAvailabilityRequest
	if !handler.Bind(c, &req) {
		return
	}

	provider, err := h.service.SetAvailability(c.Request.Context(), actor, id, *req.Available)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, provider)
}

func (h *Handler) SubmitServiceRequest(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.SubmitServiceRequest
	if !handler.Bind(c, &req) {
		return
	}

	request, err := h.service.SubmitServiceRequest(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, request)
}

func (h *Handler) ListServiceRequests(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	status := model.ServiceRequestStatus(strings.ToUpper(c.Query("status")))

	requests, err := h.service.ListServiceRequests(c.Request.Context(), actor, status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, requests)
}

func (h *Handler) ApproveServiceRequest(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	request, err := h.service.ApproveServiceRequest(c.Request.Context(), actor.ID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, request)
}

func (h *Handler) RejectServiceRequest(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.RejectServiceRequest
	if !handler.Bind(c, &req) {
		return
	}

	request, err := h.service.RejectServiceRequest(c.Request.Context(), actor.ID, id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, request)
}
