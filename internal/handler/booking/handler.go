package booking

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	bookingService "github.com/jwalitptl/homecare-api/internal/service/booking"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service bookingService.BookingService
	auth    *middleware.AuthMiddleware
}

func NewHandler(service bookingService.BookingService, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.auth.RequireRole(auth.RoleCustomer), h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/assign-provider", h.auth.RequireRole(auth.RoleAdmin), h.AssignProvider)
		bookings.PUT("/:id/cancel", h.auth.RequireRole(auth.RoleCustomer, auth.RoleAdmin), h.CancelBooking)
		bookings.PUT("/:id/start", h.auth.RequireRole(auth.RoleProvider), h.StartBooking)
		bookings.PUT("/:id/complete", h.auth.RequireRole(auth.RoleProvider, auth.RoleAdmin), h.CompleteBooking)
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateBookingRequest
	if !handler.Bind(c, &req) {
		return
	}

	booking, err := h.service.CreateBooking(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, booking)
}

// ListBookings serves the role scoped list, or the admin's unassigned work
// queue with ?unassigned=true.
func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	if raw := c.Query("unassigned"); raw != "" {
		unassigned, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid unassigned flag", err))
			return
		}
		if unassigned {
			if !actor.Is(auth.RoleAdmin) {
				httputil.RespondWithError(c, apperrors.Forbidden("only admins see unassigned work"))
				return
			}
			bookings, err := h.service.ListUnassignedWork(c.Request.Context())
			if err != nil {
				httputil.RespondWithError(c, err)
				return
			}
			httputil.RespondWithSuccess(c, bookings)
			return
		}
	}

	filters := model.BookingFilters{Status: model.BookingStatus(strings.ToUpper(c.Query("status")))}
	bookings, err := h.service.ListBookings(c.Request.Context(), actor, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, bookings)
}

func (h *Handler) GetBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) AssignProvider(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.AssignProviderRequest
	if !handler.Bind(c, &req) {
		return
	}

	booking, err := h.service.AssignProvider(c.Request.Context(), id, req.ProviderID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.CancelBookingRequest
	if c.Request.ContentLength != 0 && !handler.Bind(c, &req) {
		return
	}

	booking, err := h.service.CancelBooking(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, booking)
}

func (h *Handler) StartBooking(c *gin.Context) {
	h.transition(c, h.service.StartBooking)
}

func (h *Handler) CompleteBooking(c *gin.Context) {
	h.transition(c, h.service.CompleteBooking)
}

func (h *Handler) transition(c *gin.Context, apply func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*model.Booking, error)) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	booking, err := apply(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, booking)
}
