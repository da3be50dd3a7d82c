package rejection

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/homecare-api/internal/handler"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	rejectionService "github.com/jwalitptl/homecare-api/internal/service/rejection"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/httputil"
)

type Handler struct {
	service rejectionService.RejectionService
	auth    *middleware.AuthMiddleware
}

func NewHandler(service rejectionService.RejectionService, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	requests := r.Group("/rejection-requests")
	{
		requests.POST("", h.auth.RequireRole(auth.RoleProvider), h.RequestRejection)
		requests.GET("", h.auth.RequireRole(auth.RoleAdmin), h.ListRejections)
		requests.POST("/:id/approve", h.auth.RequireRole(auth.RoleAdmin), h.resolve(model.DecisionApprove))
		requests.POST("/:id/deny", h.auth.RequireRole(auth.RoleAdmin), h.resolve(model.DecisionDeny))
	}
}

func (h *Handler) RequestRejection(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateRejectionRequest
	if !handler.Bind(c, &req) {
		return
	}

	rejection, err := h.service.RequestRejection(c.Request.Context(), actor.ID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, rejection)
}

// ListRejections defaults to pending requests, oldest first.
func (h *Handler) ListRejections(c *gin.Context) {
	bookingID, ok := handler.OptionalQueryID(c, "booking_id")
	if !ok {
		return
	}
	status := model.RejectionStatus(strings.ToUpper(c.Query("status")))

	requests, err := h.service.ListRejections(c.Request.Context(), status, bookingID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, requests)
}

// resolve serves approve and deny. The decision comes from the route, the
// body only carries audit notes.
func (h *Handler) resolve(decision model.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := handler.Actor(c)
		if !ok {
			return
		}
		id, ok := handler.ParseID(c, "id")
		if !ok {
			return
		}
		var req model.ResolveRejectionRequest
		if c.Request.ContentLength != 0 && !handler.Bind(c, &req) {
			return
		}

		outcome, err := h.service.Resolve(c.Request.Context(), actor.ID, id, decision, req.AdminNotes)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		httputil.RespondWithSuccess(c, outcome)
	}
}
