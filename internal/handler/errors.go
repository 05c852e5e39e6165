package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"erequisition/internal/middleware"
	"erequisition/internal/model"
	"erequisition/internal/service"
	"erequisition/pkg/response"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[service.ErrorKind]int{
	service.KindValidationFailed:       http.StatusBadRequest,
	service.KindIllegalTransition:      http.StatusConflict,
	service.KindAttachmentsRequired:    http.StatusUnprocessableEntity,
	service.KindPotentialDuplicate:     http.StatusConflict,
	service.KindVarianceReasonRequired: http.StatusUnprocessableEntity,
	service.KindNotFound:               http.StatusNotFound,
	service.KindUnauthorized:           http.StatusForbidden,
}

// renderError writes err using the status of its kind. Errors without a kind are
// reported as 500 and attached to the context for the request logger.
func renderError(c *gin.Context, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status, ok := kindStatus[svcErr.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, response.ErrorWithKind(status, string(svcErr.Kind), svcErr.Error()))
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, response.ErrorWithKind(http.StatusBadRequest, string(service.KindValidationFailed), message))
}

// actorFromContext reads the identity set by middleware.RequireRole.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	id, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return service.Actor{}, false
	}
	userID, ok := id.(uint)
	if !ok {
		return service.Actor{}, false
	}
	role, _ := c.Get(middleware.ContextUserRole)
	userRole, _ := role.(model.Role)
	return service.Actor{ID: userID, Role: userRole}, true
}

// mustActor aborts with 401 when the request carries no identity.
func mustActor(c *gin.Context) (service.Actor, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
	}
	return actor, ok
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+param)
		return 0, false
	}
	return uint(id), true
}

// bindOptionalJSON accepts an empty body for endpoints whose payload is optional.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}
