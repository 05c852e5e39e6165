package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"erequisition/internal/middleware"
	"erequisition/internal/model"
	"erequisition/internal/service"
	"erequisition/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reportService service.ReportService
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/dashboard", middleware.RequireAuth(), h.Dashboard)

	group := router.Group("/api/reports")
	group.Use(middleware.RequireRole(string(model.RoleAdmin)))
	{
		group.GET("", h.Report)
		group.GET("/export", h.Export)
	}
}

// Dashboard returns the role-specific overview counters
// @Summary      Dashboard overview
// @Description  Admins get approval and pipeline counters; employees get their own counters
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.OverviewResponse}
// @Router       /api/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	overview, err := h.reportService.Overview(c.Request.Context(), actor)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, overview))
}

// Report aggregates requisitions created in the period
// @Summary      Requisition report
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date (YYYY-MM-DD)"
// @Param        to    query     string  false  "End date (YYYY-MM-DD), inclusive"
// @Success      200   {object}  response.Response{data=service.ReportResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/reports [get]
func (h *ReportHandler) Report(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var in service.ReportPeriodInput
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}

	report, err := h.reportService.Report(c.Request.Context(), actor, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// Export downloads the requisitions of the period as a spreadsheet
// @Summary      Export requisitions
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        from  query  string  false  "Start date (YYYY-MM-DD)"
// @Param        to    query  string  false  "End date (YYYY-MM-DD), inclusive"
// @Success      200
// @Failure      400  {object}  response.Response
// @Router       /api/reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var in service.ReportPeriodInput
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}

	// buffered so a failed export still gets a JSON error
	var buf bytes.Buffer
	if err := h.reportService.ExportXLSX(c.Request.Context(), actor, in, &buf); err != nil {
		renderError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "requisitions.xlsx"))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
