package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"erequisition/internal/model"
	"erequisition/internal/repository"
	"erequisition/internal/storage"
	"erequisition/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPusher struct {
	mu   sync.Mutex
	sent map[uint]int
}

func (p *recordingPusher) SendToUser(userID uint, _ []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[uint]int{}
	}
	p.sent[userID]++
	return true
}

func (p *recordingPusher) count(userID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[userID]
}

type harness struct {
	t      *testing.T
	db     *gorm.DB
	ctx    context.Context
	clock  *testClock
	pusher *recordingPusher

	requisitions  RequisitionService
	leaves        LeaveService
	reports       ReportService
	notifications NotificationService
	audit         AuditService
	users         UserService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, DefaultWorkflowConfig())
}

func newHarnessWithConfig(t *testing.T, cfg WorkflowConfig) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	logger := zap.NewNop()
	clock := &testClock{now: time.Now()}
	pusher := &recordingPusher{}

	store, err := storage.NewLocalStore(t.TempDir(), logger)
	require.NoError(t, err)

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	auditSvc := NewAuditService(repository.NewAuditRepository(db))
	notifySvc := NewNotificationService(repository.NewNotificationRepository(db), userRepo, pusher, nil, logger)

	return &harness{
		t:      t,
		db:     db,
		ctx:    context.Background(),
		clock:  clock,
		pusher: pusher,
		requisitions: NewRequisitionService(
			txManager,
			repository.NewRequisitionRepository(db, cfg.Stage2Threshold),
			repository.NewAttachmentRepository(db),
			userRepo,
			auditSvc,
			notifySvc,
			store,
			cfg,
			logger,
			WithClock(clock.Now),
		),
		leaves: NewLeaveService(txManager, repository.NewLeaveRepository(db), userRepo, auditSvc, notifySvc, logger, WithClock(clock.Now)),
		reports: NewReportService(
			repository.NewReportRepository(db),
			repository.NewLeaveRepository(db),
			repository.NewNotificationRepository(db),
			logger,
			WithClock(clock.Now),
		),
		notifications: notifySvc,
		audit:         auditSvc,
		users:         NewUserService(userRepo, auditSvc, "test-secret", time.Hour, logger),
	}
}

func (h *harness) user(name string, role model.Role) Actor {
	u := testutil.CreateUser(h.t, h.db, name, role)
	return Actor{ID: u.ID, Role: u.Role}
}

func (h *harness) input(amount int64, purpose string) RequisitionInput {
	return RequisitionInput{
		Branch:          string(model.BranchSouthAfrica),
		RequisitionType: string(model.RequisitionTypeCash),
		Category:        string(model.CategoryOperations),
		Amount:          decimal.NewFromInt(amount),
		Purpose:         purpose,
		NeededBy:        h.clock.Now().AddDate(0, 0, 7).Format("2006-01-02"),
	}
}

func (h *harness) notificationCount(userID uint, kind string) int64 {
	var count int64
	require.NoError(h.t, h.db.Model(&model.Notification{}).
		Where("user_id = ? AND type = ?", userID, kind).
		Count(&count).Error)
	return count
}

func (h *harness) auditActions(entityType string, entityID uint) []string {
	var actions []string
	require.NoError(h.t, h.db.Model(&model.AuditEvent{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Pluck("action", &actions).Error)
	return actions
}
