package handler

import (
	"context"
	"fmt"
	"net/http"

	"erequisition/internal/middleware"
	"erequisition/internal/service"
	"erequisition/pkg/pagination"
	"erequisition/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequisitionHandler struct {
	requisitionService service.RequisitionService
}

func NewRequisitionHandler(requisitionService service.RequisitionService) *RequisitionHandler {
	return &RequisitionHandler{requisitionService: requisitionService}
}

func (h *RequisitionHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/requisitions")
	group.Use(middleware.RequireAuth())
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.PUT("/:id", h.Update)
		group.POST("/:id/attachments", h.UploadAttachment)
		group.GET("/:id/attachments/:attachmentId", h.DownloadAttachment)

		group.POST("/:id/submit", h.Submit)
		group.POST("/:id/stage1-approve", h.decision(h.requisitionService.Stage1Approve))
		group.POST("/:id/final-approve", h.decision(h.requisitionService.FinalApprove))
		group.POST("/:id/request-modification", h.decision(h.requisitionService.RequestModification))
		group.POST("/:id/deny", h.decision(h.requisitionService.Deny))
		group.POST("/:id/start-processing", h.decision(h.requisitionService.StartProcessing))
		group.POST("/:id/mark-outstanding", h.decision(h.requisitionService.MarkOutstanding))
		group.POST("/:id/mark-paid", h.MarkPaid)
		group.POST("/:id/mark-fulfilled", h.MarkFulfilled)
		group.POST("/:id/confirm-fulfilment", h.ConfirmFulfilment)
		group.POST("/:id/close", h.Close)
	}
}

// List returns requisitions visible to the caller
// @Summary      List requisitions
// @Description  Admins see every requisition; employees see their own
// @Tags         requisitions
// @Security     BearerAuth
// @Produce      json
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Items per page (default 20)"
// @Param        status    query     string  false  "Status filter"
// @Param        branch    query     string  false  "Branch filter"
// @Param        category  query     string  false  "Category filter"
// @Param        type      query     string  false  "Requisition type filter"
// @Param        search    query     string  false  "Reference, purpose or project"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/requisitions [get]
func (h *RequisitionHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	items, total, err := h.requisitionService.List(c.Request.Context(), actor, service.RequisitionListFilter{
		Status:   c.Query("status"),
		Branch:   c.Query("branch"),
		Category: c.Query("category"),
		Type:     c.Query("type"),
		Search:   c.Query("search"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// Create drafts a new requisition
// @Summary      Create requisition
// @Description  Creates a draft. An omitted branch defaults to the requester's; currency follows the branch
// @Tags         requisitions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RequisitionInput  true  "Requisition"
// @Success      201      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requisitions [post]
func (h *RequisitionHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var in service.RequisitionInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requisitionService.Create(c.Request.Context(), actor, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, req))
}

// Get returns one requisition with its attachments and available actions
// @Summary      Get requisition
// @Tags         requisitions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.RequisitionResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requisitions/{id} [get]
func (h *RequisitionHandler) Get(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	req, err := h.requisitionService.Get(c.Request.Context(), actor, id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// Update edits a draft or a requisition sent back for modification
// @Summary      Update requisition
// @Tags         requisitions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                       true  "Requisition ID"
// @Param        payload  body      service.RequisitionInput  true  "Requisition"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requisitions/{id} [put]
func (h *RequisitionHandler) Update(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.RequisitionInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requisitionService.Update(c.Request.Context(), actor, id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// UploadAttachment stores a supporting document
// @Summary      Upload attachment
// @Tags         requisitions
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      int   true  "Requisition ID"
// @Param        file  formData  file  true  "Supporting document"
// @Success      201   {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/requisitions/{id}/attachments [post]
func (h *RequisitionHandler) UploadAttachment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "Unable to read uploaded file")
		return
	}
	defer f.Close()

	req, err := h.requisitionService.UploadAttachment(c.Request.Context(), actor, id, service.AttachmentUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, req))
}

// DownloadAttachment streams a stored document
// @Summary      Download attachment
// @Tags         requisitions
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id            path  int  true  "Requisition ID"
// @Param        attachmentId  path  int  true  "Attachment ID"
// @Success      200
// @Failure      404  {object}  response.Response
// @Router       /api/requisitions/{id}/attachments/{attachmentId} [get]
func (h *RequisitionHandler) DownloadAttachment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	attachmentID, ok := parseID(c, "attachmentId")
	if !ok {
		return
	}

	att, rc, err := h.requisitionService.OpenAttachment(c.Request.Context(), actor, id, attachmentID)
	if err != nil {
		renderError(c, err)
		return
	}
	defer rc.Close()

	contentType := att.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.FileSize, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", att.FileName),
	})
}

// Submit sends a draft for approval
// @Summary      Submit requisition
// @Tags         workflow
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.RequisitionResponse}
// @Failure      409  {object}  response.Response  "IllegalTransition or PotentialDuplicate"
// @Failure      422  {object}  response.Response  "AttachmentsRequired"
// @Router       /api/requisitions/{id}/submit [post]
func (h *RequisitionHandler) Submit(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	req, err := h.requisitionService.Submit(c.Request.Context(), actor, id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

type decisionFunc func(ctx context.Context, actor service.Actor, id uint, in service.DecisionInput) (*service.RequisitionResponse, error)

// decision adapts a transition whose only payload is an optional comment.
// @Summary      Workflow decision
// @Description  Applies stage1-approve, final-approve, request-modification, deny, start-processing or mark-outstanding
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                    true   "Requisition ID"
// @Param        payload  body      service.DecisionInput  false  "Optional comment"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requisitions/{id}/deny [post]
func (h *RequisitionHandler) decision(fn decisionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
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

		req, err := fn(c.Request.Context(), actor, id, in)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
	}
}

// MarkPaid records the payment
// @Summary      Mark paid
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                   true  "Requisition ID"
// @Param        payload  body      service.PaymentInput  true  "Payment details"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requisitions/{id}/mark-paid [post]
func (h *RequisitionHandler) MarkPaid(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.PaymentInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requisitionService.MarkPaid(c.Request.Context(), actor, id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// MarkFulfilled records the purchase and delivery outcome
// @Summary      Mark fulfilled
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                      true  "Requisition ID"
// @Param        payload  body      service.FulfilmentInput  true  "Fulfilment details"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response  "VarianceReasonRequired"
// @Router       /api/requisitions/{id}/mark-fulfilled [post]
func (h *RequisitionHandler) MarkFulfilled(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.FulfilmentInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requisitionService.MarkFulfilled(c.Request.Context(), actor, id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// ConfirmFulfilment lets the requester acknowledge receipt
// @Summary      Confirm fulfilment
// @Tags         workflow
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Requisition ID"
// @Success      200  {object}  response.Response{data=service.RequisitionResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requisitions/{id}/confirm-fulfilment [post]
func (h *RequisitionHandler) ConfirmFulfilment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	req, err := h.requisitionService.ConfirmFulfilment(c.Request.Context(), actor, id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// Close finishes a fulfilled requisition
// @Summary      Close requisition
// @Tags         workflow
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                   true  "Requisition ID"
// @Param        payload  body      service.ClosureInput  true  "Closure comment"
// @Success      200      {object}  response.Response{data=service.RequisitionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requisitions/{id}/close [post]
func (h *RequisitionHandler) Close(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in service.ClosureInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requisitionService.Close(c.Request.Context(), actor, id, in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}
