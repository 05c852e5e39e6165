package handler

import (
	"context"
	"net/http"

	"erequisition/internal/middleware"
	"erequisition/internal/service"
	"erequisition/pkg/pagination"
	"erequisition/pkg/response"

	"github.com/gin-gonic/gin"
)

type LeaveHandler struct {
	leaveService service.LeaveService
}

func NewLeaveHandler(leaveService service.LeaveService) *LeaveHandler {
	return &LeaveHandler{leaveService: leaveService}
}

func (h *LeaveHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/leave-requests")
	group.Use(middleware.RequireAuth())
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.POST("/:id/approve", h.Approve)
		group.POST("/:id/deny", h.Deny)
	}
}

// List returns leave requests visible to the caller
// @Summary      List leave requests
// @Tags         leave
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Param        status  query     string  false  "submitted, approved or denied"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/leave-requests [get]
func (h *LeaveHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	items, total, err := h.leaveService.List(c.Request.Context(), actor, service.LeaveListFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// Create submits a leave request
// @Summary      Request leave
// @Description  Business days are counted Monday through Friday
// @Tags         leave
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LeaveInput  true  "Leave request"
// @Success      201      {object}  response.Response{data=service.LeaveResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/leave-requests [post]
func (h *LeaveHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var in service.LeaveInput
	if !bindJSON(c, &in) {
		return
	}

	leave, err := h.leaveService.Create(c.Request.Context(), actor, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, leave))
}

// Get returns one leave request
// @Summary      Get leave request
// @Tags         leave
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Leave request ID"
// @Success      200  {object}  response.Response{data=service.LeaveResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/leave-requests/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	leave, err := h.leaveService.Get(c.Request.Context(), actor, id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, leave))
}

// Approve grants a submitted leave request
// @Summary      Approve leave
// @Tags         leave
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                    true   "Leave request ID"
// @Param        payload  body      service.DecisionInput  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.LeaveResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/leave-requests/{id}/approve [post]
func (h *LeaveHandler) Approve(c *gin.Context) {
	h.decide(c, h.leaveService.Approve)
}

// Deny rejects a submitted leave request
// @Summary      Deny leave
// @Tags         leave
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                    true  "Leave request ID"
// @Param        payload  body      service.DecisionInput  true  "Reason for the denial"
// @Success      200      {object}  response.Response{data=service.LeaveResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/leave-requests/{id}/deny [post]
func (h *LeaveHandler) Deny(c *gin.Context) {
	h.decide(c, h.leaveService.Deny)
}

func (h *LeaveHandler) decide(c *gin.Context, fn func(ctx context.Context, actor service.Actor, id uint, in service.DecisionInput) (*service.LeaveResponse, error)) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.DecisionInput
	if !bindOptionalJSON(c, &in) {
		return
	}

	leave, err := fn(c.Request.Context(), actor, id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, leave))
}
