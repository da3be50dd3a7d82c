package payment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	paymentService "github.com/jwalitptl/homecare-api/internal/service/payment"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service paymentService.PaymentService
	auth    *middleware.AuthMiddleware
}

func NewHandler(service paymentService.PaymentService, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	customerOrAdmin := h.auth.RequireRole(auth.RoleCustomer, auth.RoleAdmin)

	payments := r.Group("/payments")
	{
		payments.POST("", h.auth.RequireRole(auth.RoleCustomer), h.InitiatePayment)
		payments.GET("/:id", customerOrAdmin, h.GetPayment)
		payments.POST("/:id/confirm", customerOrAdmin, h.ConfirmPayment)
	}
	r.GET("/bookings/:id/payments", customerOrAdmin, h.ListBookingPayments)
}

func (h *Handler) InitiatePayment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.InitiatePaymentRequest
	if !handler.Bind(c, &req) {
		return
	}

	intent, err := h.service.InitiatePayment(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, intent)
}

func (h *Handler) GetPayment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	intent, err := h.service.GetPayment(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, intent)
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	intent, err := h.service.ConfirmPayment(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, intent)
}

func (h *Handler) ListBookingPayments(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	intents, err := h.service.ListBookingPayments(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, intents)
}
