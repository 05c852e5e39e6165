package handler

import (
	"net/http"
	"strconv"

	"erequisition/internal/middleware"
	"erequisition/internal/model"
	"erequisition/internal/service"
	"erequisition/pkg/pagination"
	"erequisition/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequireRole(string(model.RoleAdmin)))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves the append-only workflow history, newest first
// @Summary      Get audit logs
// @Description  Filters by entity type (Requisition, LeaveRequest, User) and entity id
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Param        entity_type  query     string  false  "Entity type"
// @Param        entity_id    query     int     false  "Entity ID"
// @Success      200          {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	filter := service.AuditFilter{
		EntityType: c.Query("entity_type"),
		Page:       p.Page,
		Limit:      p.Limit,
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid entity_id")
			return
		}
		entityID := uint(id)
		filter.EntityID = &entityID
	}

	logs, total, err := h.auditService.List(c.Request.Context(), actor, filter)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, logs, total, p.Page, p.Limit))
}
