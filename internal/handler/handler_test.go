package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"erequisition/internal/middleware"
	"erequisition/internal/model"
	"erequisition/internal/repository"
	"erequisition/internal/service"
	"erequisition/internal/storage"
	"erequisition/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-secret"

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
}

type page struct {
	Items json.RawMessage `json:"items"`
	Total int64           `json:"total"`
	Pages int             `json:"pages"`
}

type requisitionBody struct {
	ID               uint     `json:"id"`
	ReferenceNo      string   `json:"reference_no"`
	Status           string   `json:"status"`
	AvailableActions []string `json:"available_actions"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) (*api, *model.User, *model.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitAuth(testSecret)

	db := testutil.NewDB(t)
	logger := zap.NewNop()
	store, err := storage.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)

	workflow := service.DefaultWorkflowConfig()
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	auditService := service.NewAuditService(repository.NewAuditRepository(db))
	notificationService := service.NewNotificationService(notificationRepo, userRepo, nil, nil, logger)
	userService := service.NewUserService(userRepo, auditService, testSecret, time.Hour, logger)
	requisitionService := service.NewRequisitionService(
		txManager,
		repository.NewRequisitionRepository(db, workflow.Stage2Threshold),
		repository.NewAttachmentRepository(db),
		userRepo, auditService, notificationService, store, workflow, logger,
	)
	leaveService := service.NewLeaveService(txManager, leaveRepo, userRepo, auditService, notificationService, logger)
	reportService := service.NewReportService(repository.NewReportRepository(db), leaveRepo, notificationRepo, logger)

	router := gin.New()
	NewUserHandler(userService, time.Hour).RegisterRoutes(router.Group(""))
	NewRequisitionHandler(requisitionService).RegisterRoutes(router.Group(""))
	NewLeaveHandler(leaveService).RegisterRoutes(router.Group(""))
	NewNotificationHandler(notificationService).RegisterRoutes(router.Group(""))
	NewAuditHandler(auditService).RegisterRoutes(router.Group(""))
	NewReportHandler(reportService).RegisterRoutes(router.Group(""))

	admin := testutil.CreateUser(t, db, "Ada Admin", model.RoleAdmin)
	employee := testutil.CreateUser(t, db, "Eve Employee", model.RoleEmployee)
	return &api{t: t, router: router}, admin, employee
}

func (a *api) login(u *model.User) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/login", "", map[string]string{"email": u.Email, "password": "password"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var token struct {
		Token string `json:"token"`
	}
	decode(a.t, rec, &token)
	require.NotEmpty(a.t, token.Token)
	return token.Token
}

func (a *api) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *api) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) createRequisition(token string, category model.RequisitionCategory, amount int, purpose string) requisitionBody {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/requisitions", token, map[string]interface{}{
		"branch":           "south_africa",
		"requisition_type": "cash",
		"category":         string(category),
		"amount":           amount,
		"purpose":          purpose,
		"needed_by":        time.Now().AddDate(0, 0, 10).Format("2006-01-02"),
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var req requisitionBody
	decode(a.t, rec, &req)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "error", env.Status)
	return env
}

func TestRenderError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
		kind string
	}{
		{service.ErrValidationFailed, http.StatusBadRequest, "ValidationFailed"},
		{service.ErrIllegalTransition, http.StatusConflict, "IllegalTransition"},
		{service.ErrAttachmentsRequired, http.StatusUnprocessableEntity, "AttachmentsRequired"},
		{service.ErrPotentialDuplicate, http.StatusConflict, "PotentialDuplicate"},
		{service.ErrVarianceReasonRequired, http.StatusUnprocessableEntity, "VarianceReasonRequired"},
		{service.ErrNotFound, http.StatusNotFound, "NotFound"},
		{service.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
		{fmt.Errorf("wrapped: %w", service.ErrNotFound), http.StatusNotFound, "NotFound"},
		{errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			renderError(c, tc.err)

			assert.Equal(t, tc.want, rec.Code)
			env := decodeError(t, rec)
			assert.Equal(t, tc.kind, env.Kind)
			if tc.kind == "" {
				assert.NotContains(t, env.Error, "connection reset")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	a, admin, _ := newAPI(t)

	rec := a.do(http.MethodPost, "/login", "", map[string]string{"email": admin.Email, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/login", "", map[string]string{"email": admin.Email, "password": "password"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "access_token", cookies[0].Name)

	// the session cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	rec = a.send(req, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me service.UserResponse
	decode(t, rec, &me)
	assert.Equal(t, admin.ID, me.ID)
	assert.Equal(t, "admin", me.Role)

	rec = a.do(http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequisitionWorkflowOverHTTP(t *testing.T) {
	a, admin, employee := newAPI(t)
	adminToken := a.login(admin)
	empToken := a.login(employee)

	req := a.createRequisition(empToken, model.CategoryOperations, 500, "Printer toner")
	assert.Equal(t, "draft", req.Status)
	assert.NotEmpty(t, req.ReferenceNo)

	path := fmt.Sprintf("/api/requisitions/%d", req.ID)

	rec := a.do(http.MethodPost, path+"/submit", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &req)
	assert.Equal(t, "submitted", req.Status)

	rec = a.do(http.MethodPost, path+"/stage1-approve", empToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized", decodeError(t, rec).Kind)

	rec = a.do(http.MethodPost, path+"/stage1-approve", adminToken, map[string]string{"comment": "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &req)
	assert.Equal(t, "approved", req.Status)

	rec = a.do(http.MethodPost, path+"/deny", adminToken, map[string]string{"comment": "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IllegalTransition", decodeError(t, rec).Kind)

	rec = a.do(http.MethodPost, path+"/start-processing", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, path+"/mark-paid", adminToken, map[string]string{"payment_method": "eft"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, path+"/mark-paid", adminToken, map[string]string{
		"payment_method":    "eft",
		"payment_reference": "EFT-1",
		"payment_date":      time.Now().Format("2006-01-02"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &req)
	assert.Equal(t, "paid", req.Status)

	rec = a.do(http.MethodPost, path+"/mark-fulfilled", adminToken, map[string]interface{}{
		"purchase_status":  "received",
		"delivery_status":  "delivered",
		"actual_amount":    650,
		"fulfilment_notes": "Delivered to reception",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VarianceReasonRequired", decodeError(t, rec).Kind)

	// employees only see their own requisitions
	rec = a.do(http.MethodGet, "/api/requisitions", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list page
	decode(t, rec, &list)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, 1, list.Pages)

	rec = a.do(http.MethodGet, "/api/audit-logs?entity_type=Requisition&entity_id="+fmt.Sprint(req.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Equal(t, int64(5), list.Total)

	rec = a.do(http.MethodGet, "/api/audit-logs", empToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecisionCommentsAndLookups(t *testing.T) {
	a, admin, employee := newAPI(t)
	adminToken := a.login(admin)
	empToken := a.login(employee)

	req := a.createRequisition(empToken, model.CategoryTravel, 1200, "Flights to Lusaka")
	path := fmt.Sprintf("/api/requisitions/%d", req.ID)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, path+"/submit", empToken, nil).Code)

	rec := a.do(http.MethodPost, path+"/deny", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationFailed", decodeError(t, rec).Kind)

	rec = a.do(http.MethodPost, path+"/request-modification", adminToken, map[string]string{"comment": "Add the itinerary"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &req)
	assert.Equal(t, "modification_requested", req.Status)

	rec = a.do(http.MethodGet, "/api/requisitions/9999", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/api/requisitions/abc", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/requisitions", empToken, map[string]interface{}{"branch": "south_africa"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttachmentsOverHTTP(t *testing.T) {
	a, admin, employee := newAPI(t)
	adminToken := a.login(admin)
	empToken := a.login(employee)

	req := a.createRequisition(empToken, model.CategoryProcurement, 3000, "Laptop for new hire")
	path := fmt.Sprintf("/api/requisitions/%d", req.ID)

	rec := a.do(http.MethodPost, path+"/submit", empToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "AttachmentsRequired", decodeError(t, rec).Kind)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "quote.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 quote"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	upload := httptest.NewRequest(http.MethodPost, path+"/attachments", &body)
	upload.Header.Set("Content-Type", mw.FormDataContentType())
	rec = a.send(upload, empToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var withFiles struct {
		Attachments []model.RequisitionAttachment `json:"attachments"`
	}
	decode(t, rec, &withFiles)
	require.Len(t, withFiles.Attachments, 1)
	att := withFiles.Attachments[0]

	rec = a.do(http.MethodGet, fmt.Sprintf("%s/attachments/%d", path, att.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 quote", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "quote.pdf")

	rec = a.do(http.MethodPost, path+"/submit", empToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	missing := httptest.NewRequest(http.MethodPost, path+"/attachments", nil)
	rec = a.send(missing, empToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaveAndNotificationsOverHTTP(t *testing.T) {
	a, admin, employee := newAPI(t)
	adminToken := a.login(admin)
	empToken := a.login(employee)

	start := time.Now().AddDate(0, 0, 7)
	for start.Weekday() != time.Monday {
		start = start.AddDate(0, 0, 1)
	}
	rec := a.do(http.MethodPost, "/api/leave-requests", empToken, map[string]string{
		"reason":     "annual",
		"start_date": start.Format("2006-01-02"),
		"end_date":   start.AddDate(0, 0, 4).Format("2006-01-02"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var leave service.LeaveResponse
	decode(t, rec, &leave)
	assert.Equal(t, 5, leave.Days)

	rec = a.do(http.MethodGet, "/api/notifications/unread-count", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int64
	decode(t, rec, &count)
	assert.Equal(t, int64(1), count["unread"])

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/leave-requests/%d/approve", leave.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &leave)
	assert.Equal(t, model.LeaveStatusApproved, leave.Status)

	rec = a.do(http.MethodGet, "/api/notifications?unread=true", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list page
	decode(t, rec, &list)
	assert.Equal(t, int64(1), list.Total)

	var items []service.NotificationResponse
	require.NoError(t, json.Unmarshal(list.Items, &items))
	require.Len(t, items, 1)

	// another user's notification is reported as missing
	rec = a.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", items[0].ID), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", items[0].ID), empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/api/notifications/read-all", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated map[string]int64
	decode(t, rec, &updated)
	assert.Equal(t, int64(1), updated["updated"])
}

func TestReportsOverHTTP(t *testing.T) {
	a, admin, employee := newAPI(t)
	adminToken := a.login(admin)
	empToken := a.login(employee)

	a.createRequisition(empToken, model.CategoryOperations, 800, "Office chairs")

	rec := a.do(http.MethodGet, "/api/reports", empToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/api/reports?from=2020-13-01", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/reports", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report service.ReportResponse
	decode(t, rec, &report)
	assert.Equal(t, int64(1), report.Summary.OverallCount)

	rec = a.do(http.MethodGet, "/api/reports/export", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec = a.do(http.MethodGet, "/api/dashboard", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview service.OverviewResponse
	decode(t, rec, &overview)
	require.NotNil(t, overview.MyRequisitions)
	assert.Equal(t, int64(1), *overview.MyRequisitions)
	assert.Nil(t, overview.PendingApprovals)
}
