package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"erequisition/internal/metrics"
	"erequisition/internal/model"
	"erequisition/internal/repository"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

type LeaveInput struct {
	Reason    string `json:"reason" binding:"required"`
	StartDate string `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate   string `json:"end_date" binding:"required"`   // YYYY-MM-DD
	Notes     string `json:"notes"`
}

type LeaveListFilter struct {
	Status string
	Page   int
	Limit  int
}

type LeaveResponse struct {
	model.LeaveRequest
	EmployeeName string `json:"employee_name"`
	ReasonLabel  string `json:"reason_label"`
	StatusLabel  string `json:"status_label"`
	StatusColor  string `json:"status_color"`
}

type LeaveService interface {
	Create(ctx context.Context, actor Actor, in LeaveInput) (*LeaveResponse, error)
	Approve(ctx context.Context, actor Actor, id uint, in DecisionInput) (*LeaveResponse, error)
	Deny(ctx context.Context, actor Actor, id uint, in DecisionInput) (*LeaveResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (*LeaveResponse, error)
	List(ctx context.Context, actor Actor, filter LeaveListFilter) ([]LeaveResponse, int64, error)
}

type leaveService struct {
	txManager     repository.TransactionManager
	repo          repository.LeaveRepository
	users         repository.UserRepository
	audit         AuditService
	notifications NotificationService
	logger        *zap.Logger
	now           func() time.Time
}

func NewLeaveService(
	txManager repository.TransactionManager,
	repo repository.LeaveRepository,
	users repository.UserRepository,
	audit AuditService,
	notifications NotificationService,
	logger *zap.Logger,
	opts ...Option,
) LeaveService {
	o := buildOptions(opts)
	return &leaveService{
		txManager:     txManager,
		repo:          repo,
		users:         users,
		audit:         audit,
		notifications: notifications,
		logger:        logger,
		now:           o.now,
	}
}

var validLeaveReasons = []model.LeaveReason{
	model.LeaveAnnual, model.LeaveSick, model.LeaveFamilyResponsibility,
	model.LeaveStudy, model.LeaveUnpaid, model.LeaveOther,
}

func (s *leaveService) Create(ctx context.Context, actor Actor, in LeaveInput) (*LeaveResponse, error) {
	reason := model.LeaveReason(in.Reason)
	if !lo.Contains(validLeaveReasons, reason) {
		return nil, s.fail(validationError("reason %q is not supported", in.Reason))
	}

	now := s.now()
	start, err := parseDate("start_date", in.StartDate, now.Location())
	if err != nil {
		return nil, s.fail(err)
	}
	end, err := parseDate("end_date", in.EndDate, now.Location())
	if err != nil {
		return nil, s.fail(err)
	}
	if start.Before(startOfDay(now)) {
		return nil, s.fail(validationError("start_date cannot be in the past"))
	}
	if end.Before(start) {
		return nil, s.fail(validationError("end_date must be on or after start_date"))
	}
	// a weekend-only range is accepted and stored with zero days
	days := model.CountBusinessDays(start, end)

	leave := &model.LeaveRequest{
		EmployeeID: actor.ID,
		Reason:     reason,
		StartDate:  start,
		EndDate:    end,
		Days:       days,
		Notes:      strings.TrimSpace(in.Notes),
		Status:     model.LeaveStatusSubmitted,
	}

	box := newOutbox(s.notifications)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, leave); err != nil {
			return fmt.Errorf("failed to create leave request: %w", err)
		}
		if err := s.audit.Record(txCtx, model.EntityLeaveRequest, leave.ID, model.ActionLeaveSubmitted, &actor.ID, map[string]interface{}{
			"reason": reason,
			"days":   days,
		}); err != nil {
			return err
		}

		admins, err := s.users.AdminIDs(txCtx, actor.ID)
		if err != nil {
			return fmt.Errorf("failed to load approvers: %w", err)
		}
		return box.notifyAll(txCtx, admins, s.leaveNotice(leave, model.NotifyLeaveSubmitted,
			"Leave Request Submitted",
			fmt.Sprintf("A %s request for %d day(s) from %s is awaiting approval.",
				reason.Display().Label, days, start.Format("2006-01-02")),
		))
	})
	if err != nil {
		return nil, s.fail(err)
	}

	box.flush()
	metrics.RecordTransition(model.EntityLeaveRequest, model.ActionLeaveSubmitted)
	s.logger.Info("Leave request submitted",
		zap.Uint("leave_id", leave.ID),
		zap.Uint("employee_id", actor.ID),
		zap.Int("days", days))

	return s.Get(ctx, actor, leave.ID)
}

func (s *leaveService) Approve(ctx context.Context, actor Actor, id uint, in DecisionInput) (*LeaveResponse, error) {
	return s.decide(ctx, actor, id, model.LeaveStatusApproved, strings.TrimSpace(in.Comment))
}

func (s *leaveService) Deny(ctx context.Context, actor Actor, id uint, in DecisionInput) (*LeaveResponse, error) {
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		return nil, s.fail(validationError("comment is required when denying leave"))
	}
	return s.decide(ctx, actor, id, model.LeaveStatusDenied, comment)
}

func (s *leaveService) decide(ctx context.Context, actor Actor, id uint, outcome model.LeaveStatus, comment string) (*LeaveResponse, error) {
	if err := actor.requireAdmin("decide leave requests"); err != nil {
		return nil, s.fail(err)
	}

	action, kind, title := model.ActionLeaveApproved, model.NotifyLeaveApproved, "Leave Approved"
	if outcome == model.LeaveStatusDenied {
		action, kind, title = model.ActionLeaveDenied, model.NotifyLeaveDenied, "Leave Denied"
	}

	box := newOutbox(s.notifications)
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		leave, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFoundOr(err, "leave request", id)
		}
		if leave.EmployeeID == actor.ID {
			return illegalTransition("admins cannot decide their own leave request")
		}
		if leave.Status != model.LeaveStatusSubmitted {
			return illegalTransition("leave request %d is already %s", id, leave.Status)
		}

		now := s.now()
		leave.Status = outcome
		leave.DecidedAt = &now
		leave.DecidedByID = &actor.ID
		leave.DecisionComment = comment
		if err := s.repo.Save(txCtx, leave); err != nil {
			return fmt.Errorf("failed to update leave request: %w", err)
		}

		var meta map[string]interface{}
		if comment != "" {
			meta = map[string]interface{}{"comment": comment}
		}
		if err := s.audit.Record(txCtx, model.EntityLeaveRequest, leave.ID, action, &actor.ID, meta); err != nil {
			return err
		}

		message := fmt.Sprintf("Your leave from %s to %s was %s.",
			leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02"), outcome)
		if comment != "" {
			message += " " + comment
		}
		notice := s.leaveNotice(leave, kind, title, message)
		notice.UserID = leave.EmployeeID
		return box.add(txCtx, notice)
	})
	if err != nil {
		return nil, s.fail(err)
	}

	box.flush()
	metrics.RecordTransition(model.EntityLeaveRequest, action)
	s.logger.Info("Leave request decided",
		zap.Uint("leave_id", id),
		zap.String("status", string(outcome)),
		zap.Uint("actor_id", actor.ID))

	return s.Get(ctx, actor, id)
}

func (s *leaveService) Get(ctx context.Context, actor Actor, id uint) (*LeaveResponse, error) {
	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "leave request", id)
	}
	if !actor.IsAdmin() && leave.EmployeeID != actor.ID {
		return nil, newError(KindUnauthorized, "not allowed to view leave request %d", id)
	}
	resp := toLeaveResponse(*leave)
	return &resp, nil
}

func (s *leaveService) List(ctx context.Context, actor Actor, filter LeaveListFilter) ([]LeaveResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.LeaveFilter{Status: filter.Status, Page: filter.Page, Limit: filter.Limit}
	if !actor.IsAdmin() {
		repoFilter.EmployeeID = &actor.ID
	}

	leaves, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch leave requests: %w", err)
	}
	return lo.Map(leaves, func(l model.LeaveRequest, _ int) LeaveResponse {
		return toLeaveResponse(l)
	}), total, nil
}

func (s *leaveService) fail(err error) error {
	if kind := KindOf(err); kind != "" {
		metrics.RecordRejection(string(kind))
	} else {
		s.logger.Error("Leave operation failed", zap.Error(err))
	}
	return err
}

func (s *leaveService) leaveNotice(leave *model.LeaveRequest, kind, title, message string) NotifyInput {
	id := leave.ID
	return NotifyInput{
		Type:        kind,
		Title:       title,
		Message:     message,
		RelatedType: model.EntityLeaveRequest,
		RelatedID:   &id,
	}
}

func toLeaveResponse(l model.LeaveRequest) LeaveResponse {
	status := l.Status.Display()
	resp := LeaveResponse{
		LeaveRequest: l,
		ReasonLabel:  l.Reason.Display().Label,
		StatusLabel:  status.Label,
		StatusColor:  status.Color,
	}
	if l.Employee != nil {
		resp.EmployeeName = l.Employee.Name
	}
	return resp
}
