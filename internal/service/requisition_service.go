package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"erequisition/internal/metrics"
	"erequisition/internal/model"
	"erequisition/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type RequisitionInput struct {
	Branch          string          `json:"branch"` // defaults to the requester's branch
	RequisitionType string          `json:"requisition_type"`
	Category        string          `json:"category"`
	RequisitionFor  string          `json:"requisition_for"`
	ProjectName     string          `json:"project_name"`
	ProjectCode     string          `json:"project_code"`
	CostCenter      string          `json:"cost_center"`
	BudgetCode      string          `json:"budget_code"`
	ClientRef       string          `json:"client_ref"`
	OrderRef        string          `json:"order_ref"`
	Amount          decimal.Decimal `json:"amount"`
	Purpose         string          `json:"purpose" binding:"required"`
	NeededBy        string          `json:"needed_by" binding:"required"` // YYYY-MM-DD
}

type DecisionInput struct {
	Comment string `json:"comment"`
}

type PaymentInput struct {
	PaymentMethod    string `json:"payment_method" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required"`
	PaymentDate      string `json:"payment_date" binding:"required"` // YYYY-MM-DD
	FinanceComment   string `json:"finance_comment"`
}

type FulfilmentInput struct {
	PurchaseStatus  string          `json:"purchase_status" binding:"required"`
	DeliveryStatus  string          `json:"delivery_status" binding:"required"`
	ActualAmount    decimal.Decimal `json:"actual_amount"`
	FulfilmentNotes string          `json:"fulfilment_notes" binding:"required"`
	VarianceReason  string          `json:"variance_reason"`
}

type ClosureInput struct {
	ClosureComment string `json:"closure_comment" binding:"required"`
}

type AttachmentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type RequisitionListFilter struct {
	Status   string
	Branch   string
	Category string
	Type     string
	Search   string
	Page     int
	Limit    int
}

type RequisitionResponse struct {
	model.Requisition
	ReferenceNo      string       `json:"reference_no"`
	RequesterName    string       `json:"requester_name"`
	StatusLabel      string       `json:"status_label"`
	StatusColor      string       `json:"status_color"`
	BranchLabel      string       `json:"branch_label"`
	CategoryLabel    string       `json:"category_label"`
	AvailableActions []Transition `json:"available_actions"`
}

// AttachmentStore persists attachment content outside the database.
type AttachmentStore interface {
	Save(r io.Reader, originalName string) (string, int64, error)
	Open(key string) (io.ReadCloser, error)
	Remove(key string) error
}

// --- Interface ---

type RequisitionService interface {
	Create(ctx context.Context, actor Actor, in RequisitionInput) (*RequisitionResponse, error)
	Update(ctx context.Context, actor Actor, id uint, in RequisitionInput) (*RequisitionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error)
	List(ctx context.Context, actor Actor, filter RequisitionListFilter) ([]RequisitionResponse, int64, error)
	UploadAttachment(ctx context.Context, actor Actor, id uint, upload AttachmentUpload) (*RequisitionResponse, error)
	OpenAttachment(ctx context.Context, actor Actor, id, attachmentID uint) (*model.RequisitionAttachment, io.ReadCloser, error)

	Submit(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error)
	Stage1Approve(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	FinalApprove(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	RequestModification(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	Deny(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	StartProcessing(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	MarkOutstanding(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error)
	MarkPaid(ctx context.Context, actor Actor, id uint, in PaymentInput) (*RequisitionResponse, error)
	MarkFulfilled(ctx context.Context, actor Actor, id uint, in FulfilmentInput) (*RequisitionResponse, error)
	ConfirmFulfilment(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error)
	Close(ctx context.Context, actor Actor, id uint, in ClosureInput) (*RequisitionResponse, error)

	// SendApprovalReminders notifies eligible admins about requisitions waiting
	// longer than after for a decision and returns the number of notifications.
	SendApprovalReminders(ctx context.Context, after time.Duration) (int, error)
}

type requisitionService struct {
	txManager     repository.TransactionManager
	repo          repository.RequisitionRepository
	attachments   repository.AttachmentRepository
	users         repository.UserRepository
	audit         AuditService
	notifications NotificationService
	store         AttachmentStore
	cfg           WorkflowConfig
	logger        *zap.Logger
	now           func() time.Time
}

func NewRequisitionService(
	txManager repository.TransactionManager,
	repo repository.RequisitionRepository,
	attachments repository.AttachmentRepository,
	users repository.UserRepository,
	audit AuditService,
	notifications NotificationService,
	store AttachmentStore,
	cfg WorkflowConfig,
	logger *zap.Logger,
	opts ...Option,
) RequisitionService {
	o := buildOptions(opts)
	return &requisitionService{
		txManager:     txManager,
		repo:          repo,
		attachments:   attachments,
		users:         users,
		audit:         audit,
		notifications: notifications,
		store:         store,
		cfg:           cfg,
		logger:        logger,
		now:           o.now,
	}
}

// --- Create / edit / read ---

func (s *requisitionService) Create(ctx context.Context, actor Actor, in RequisitionInput) (*RequisitionResponse, error) {
	requester, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, s.fail(notFoundOr(err, "user", actor.ID))
	}

	req := &model.Requisition{
		RequesterID: actor.ID,
		Branch:      requester.Branch,
		Status:      model.StatusDraft,
	}
	if err := s.applyInput(req, in); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create requisition: %w", err)
		}
		return s.audit.Record(txCtx, model.EntityRequisition, req.ID, model.ActionCreated, &actor.ID, map[string]interface{}{
			"reference_no":                 req.Reference(),
			"amount":                       req.Amount.StringFixed(2),
			"currency":                     req.Currency,
			"requires_additional_approval": req.RequiresAdditionalApproval,
		})
	})
	if err != nil {
		return nil, s.fail(err)
	}

	metrics.RecordTransition(model.EntityRequisition, model.ActionCreated)
	s.logger.Info("Requisition created",
		zap.Uint("requisition_id", req.ID),
		zap.String("reference_no", req.Reference()),
		zap.Uint("requester_id", actor.ID))

	return s.Get(ctx, actor, req.ID)
}

func (s *requisitionService) Update(ctx context.Context, actor Actor, id uint, in RequisitionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionUpdate, func(_ context.Context, req *model.Requisition, _ *outbox) (string, map[string]interface{}, error) {
		if err := s.applyInput(req, in); err != nil {
			return "", nil, err
		}
		return model.ActionUpdated, map[string]interface{}{
			"amount":  req.Amount.StringFixed(2),
			"purpose": req.Purpose,
		}, nil
	})
}

// applyInput validates in and copies it onto req. An empty branch keeps
// req.Branch.
func (s *requisitionService) applyInput(req *model.Requisition, in RequisitionInput) error {
	branch := lo.CoalesceOrEmpty(model.Branch(in.Branch), req.Branch)
	if !branch.Valid() {
		return validationError("branch %q is not supported", branch)
	}

	reqType := model.RequisitionType(lo.CoalesceOrEmpty(in.RequisitionType, string(model.RequisitionTypeCash)))
	if !lo.Contains(validTypes, reqType) {
		return validationError("requisition_type %q is not supported", in.RequisitionType)
	}

	category := model.RequisitionCategory(lo.CoalesceOrEmpty(in.Category, string(model.CategoryOperations)))
	if !lo.Contains(validCategories, category) {
		return validationError("category %q is not supported", in.Category)
	}

	var reqFor *model.RequisitionFor
	if in.RequisitionFor != "" {
		f := model.RequisitionFor(in.RequisitionFor)
		if !lo.Contains(validFor, f) {
			return validationError("requisition_for %q is not supported", in.RequisitionFor)
		}
		reqFor = &f
	}

	if !in.Amount.IsPositive() {
		return validationError("amount must be greater than zero")
	}

	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		return validationError("purpose is required")
	}

	now := s.now()
	neededBy, err := parseDate("needed_by", in.NeededBy, now.Location())
	if err != nil {
		return err
	}
	if neededBy.Before(startOfDay(now)) {
		return validationError("needed_by cannot be in the past")
	}

	req.Branch = branch
	req.Currency = branch.Currency()
	req.RequisitionType = reqType
	req.Category = category
	req.RequisitionFor = reqFor
	req.ProjectName = strings.TrimSpace(in.ProjectName)
	req.ProjectCode = strings.TrimSpace(in.ProjectCode)
	req.CostCenter = strings.TrimSpace(in.CostCenter)
	req.BudgetCode = strings.TrimSpace(in.BudgetCode)
	req.ClientRef = strings.TrimSpace(in.ClientRef)
	req.OrderRef = strings.TrimSpace(in.OrderRef)
	req.Amount = in.Amount.Round(2)
	req.Purpose = purpose
	req.NeededBy = neededBy
	return nil
}

func (s *requisitionService) Get(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "requisition", id)
	}
	if !actor.IsAdmin() && !req.IsRequester(actor.ID) {
		return nil, newError(KindUnauthorized, "not allowed to view requisition %d", id)
	}
	resp := toRequisitionResponse(*req, actor)
	return &resp, nil
}

func (s *requisitionService) List(ctx context.Context, actor Actor, filter RequisitionListFilter) ([]RequisitionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	repoFilter := repository.RequisitionFilter{
		Status:   filter.Status,
		Branch:   filter.Branch,
		Category: filter.Category,
		Type:     filter.Type,
		Search:   strings.TrimSpace(filter.Search),
		Page:     filter.Page,
		Limit:    filter.Limit,
	}
	if !actor.IsAdmin() {
		repoFilter.RequesterID = &actor.ID
	}

	reqs, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch requisitions: %w", err)
	}

	return lo.Map(reqs, func(r model.Requisition, _ int) RequisitionResponse {
		return toRequisitionResponse(r, actor)
	}), total, nil
}

func (s *requisitionService) UploadAttachment(ctx context.Context, actor Actor, id uint, upload AttachmentUpload) (*RequisitionResponse, error) {
	if upload.Body == nil || strings.TrimSpace(upload.FileName) == "" {
		return nil, s.fail(validationError("file is required"))
	}
	if upload.Size > s.cfg.AttachmentMaxBytes {
		return nil, s.fail(validationError("file exceeds the %d MB limit", s.cfg.AttachmentMaxBytes>>20))
	}

	// check access before touching storage
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(notFoundOr(err, "requisition", id))
	}
	if err := CheckTransition(TransitionUploadAttachment, current, actor); err != nil {
		return nil, s.fail(err)
	}

	key, size, err := s.store.Save(io.LimitReader(upload.Body, s.cfg.AttachmentMaxBytes+1), upload.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	if size > s.cfg.AttachmentMaxBytes {
		_ = s.store.Remove(key)
		return nil, s.fail(validationError("file exceeds the %d MB limit", s.cfg.AttachmentMaxBytes>>20))
	}

	resp, err := s.transition(ctx, actor, id, TransitionUploadAttachment, func(txCtx context.Context, req *model.Requisition, _ *outbox) (string, map[string]interface{}, error) {
		att := &model.RequisitionAttachment{
			RequisitionID: req.ID,
			FileName:      upload.FileName,
			FileType:      upload.ContentType,
			FileSize:      size,
			StoragePath:   key,
			UploadedByID:  actor.ID,
		}
		if err := s.attachments.Create(txCtx, att); err != nil {
			return "", nil, fmt.Errorf("failed to save attachment: %w", err)
		}
		return model.ActionAttachmentUploaded, map[string]interface{}{
			"attachment_id": att.ID,
			"file_name":     att.FileName,
			"file_size":     att.FileSize,
		}, nil
	})
	if err != nil {
		if rmErr := s.store.Remove(key); rmErr != nil {
			s.logger.Warn("Failed to remove orphaned attachment", zap.String("key", key), zap.Error(rmErr))
		}
		return nil, err
	}
	return resp, nil
}

func (s *requisitionService) OpenAttachment(ctx context.Context, actor Actor, id, attachmentID uint) (*model.RequisitionAttachment, io.ReadCloser, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, notFoundOr(err, "requisition", id)
	}
	if !actor.IsAdmin() && !req.IsRequester(actor.ID) {
		return nil, nil, newError(KindUnauthorized, "not allowed to download attachments of requisition %d", id)
	}

	att, err := s.attachments.FindByID(ctx, id, attachmentID)
	if err != nil {
		return nil, nil, notFoundOr(err, "attachment", attachmentID)
	}

	rc, err := s.store.Open(att.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return att, rc, nil
}

// --- Workflow transitions ---

func (s *requisitionService) Submit(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionSubmit, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		if lo.Contains(s.cfg.AttachmentRequiredCategories, req.Category) {
			count, err := s.attachments.CountByRequisition(txCtx, req.ID)
			if err != nil {
				return "", nil, fmt.Errorf("failed to count attachments: %w", err)
			}
			if count == 0 {
				return "", nil, newError(KindAttachmentsRequired, "%s requisitions need at least one supporting attachment", req.Category)
			}
		}

		now := s.now()
		since := now.AddDate(0, 0, -s.cfg.DuplicateLookbackDays)
		dup, err := s.repo.HasDuplicate(txCtx, req, since)
		if err != nil {
			return "", nil, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if dup {
			return "", nil, newError(KindPotentialDuplicate,
				"a requisition for %s %s with the same purpose was raised in the last %d days",
				req.Currency, req.Amount.StringFixed(2), s.cfg.DuplicateLookbackDays)
		}

		resubmission := req.Status == model.StatusModificationRequested
		req.Status = model.StatusSubmitted
		req.SubmittedAt = &now
		req.Stage1ApprovedAt = nil
		req.Stage1ApprovedByID = nil
		req.Stage1Comment = ""
		req.DecidedAt = nil
		req.DecidedByID = nil
		req.DecisionComment = ""
		req.ApprovalTurnaroundHours = nil

		admins, err := s.users.AdminIDs(txCtx, req.RequesterID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load approvers: %w", err)
		}
		if err := box.notifyAll(txCtx, admins, s.requisitionNotice(req, model.NotifyRequisitionSubmitted,
			"Requisition Submitted",
			fmt.Sprintf("Requisition %s (%s %s) is awaiting approval.", req.Reference(), req.Currency, req.Amount.StringFixed(2)),
		)); err != nil {
			return "", nil, err
		}

		return model.ActionSubmitted, map[string]interface{}{
			"resubmission":                 resubmission,
			"requires_additional_approval": req.RequiresAdditionalApproval,
		}, nil
	})
}

func (s *requisitionService) Stage1Approve(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionStage1Approve, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		now := s.now()
		comment := strings.TrimSpace(in.Comment)
		meta := map[string]interface{}{
			"requires_additional_approval": req.RequiresAdditionalApproval,
			"escalated":                    false,
		}

		req.Stage1ApprovedAt = &now
		req.Stage1ApprovedByID = &actor.ID
		req.Stage1Comment = comment

		fallback := false
		if req.RequiresAdditionalApproval {
			approvers, err := s.users.AdminIDs(txCtx, actor.ID, req.RequesterID)
			if err != nil {
				return "", nil, fmt.Errorf("failed to load final approvers: %w", err)
			}

			if len(approvers) > 0 {
				req.Status = model.StatusStage1Approved
				req.DecidedAt = nil
				req.DecidedByID = nil
				req.DecisionComment = ""
				req.ApprovalTurnaroundHours = nil
				meta["escalated"] = true

				if err := box.notifyAll(txCtx, approvers, s.requisitionNotice(req, model.NotifyRequisitionStage2Pending,
					"Final Approval Required",
					fmt.Sprintf("Requisition %s (%s %s) passed stage 1 and needs final approval.", req.Reference(), req.Currency, req.Amount.StringFixed(2)),
				)); err != nil {
					return "", nil, err
				}
				if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionStage1Approved,
					"Requisition Passed Stage 1",
					fmt.Sprintf("Your requisition %s passed stage 1 and is awaiting final approval.", req.Reference()),
				)); err != nil {
					return "", nil, err
				}
				return model.ActionStage1Approved, meta, nil
			}

			fallback = true
			meta["single_approver_fallback"] = true
		}

		req.Status = model.StatusApproved
		req.DecidedAt = &now
		req.DecidedByID = &actor.ID
		req.DecisionComment = comment
		req.ApprovalTurnaroundHours = turnaroundHours(req.SubmittedAt, now)

		message := fmt.Sprintf("Your requisition %s has been approved.", req.Reference())
		if fallback {
			message = fmt.Sprintf("Your requisition %s has been approved (single approver fallback).", req.Reference())
		}
		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionApproved, "Requisition Approved", message)); err != nil {
			return "", nil, err
		}
		return model.ActionStage1Approved, meta, nil
	})
}

func (s *requisitionService) FinalApprove(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionFinalApprove, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		now := s.now()
		req.Status = model.StatusApproved
		req.DecidedAt = &now
		req.DecidedByID = &actor.ID
		req.DecisionComment = strings.TrimSpace(in.Comment)
		req.ApprovalTurnaroundHours = turnaroundHours(req.SubmittedAt, now)

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionApproved,
			"Requisition Approved",
			fmt.Sprintf("Your requisition %s has received final approval.", req.Reference()),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionFinalApproved, nil, nil
	})
}

func (s *requisitionService) RequestModification(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionRequestModification, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		comment := strings.TrimSpace(in.Comment)
		if comment == "" {
			return "", nil, validationError("comment is required when requesting a modification")
		}
		req.Status = model.StatusModificationRequested
		req.DecisionComment = comment

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionModification,
			"Modification Requested",
			fmt.Sprintf("Changes were requested on requisition %s: %s", req.Reference(), comment),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionModificationRequested, map[string]interface{}{"comment": comment}, nil
	})
}

func (s *requisitionService) Deny(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionDeny, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		comment := strings.TrimSpace(in.Comment)
		if comment == "" {
			return "", nil, validationError("comment is required when denying a requisition")
		}
		now := s.now()
		req.Status = model.StatusDenied
		req.DecidedAt = &now
		req.DecidedByID = &actor.ID
		req.DecisionComment = comment
		if hours := turnaroundHours(req.SubmittedAt, now); hours != nil {
			req.ApprovalTurnaroundHours = hours
		}

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionDenied,
			"Requisition Denied",
			fmt.Sprintf("Your requisition %s was denied: %s", req.Reference(), comment),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionDenied, map[string]interface{}{"comment": comment}, nil
	})
}

func (s *requisitionService) StartProcessing(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionStartProcessing, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		now := s.now()
		req.Status = model.StatusProcessing
		req.ProcessedAt = &now
		req.ProcessedByID = &actor.ID
		if comment := strings.TrimSpace(in.Comment); comment != "" {
			req.FinanceComment = comment
		}

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionProcessing,
			"Requisition In Processing",
			fmt.Sprintf("Finance has started processing requisition %s.", req.Reference()),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionProcessingStarted, nil, nil
	})
}

func (s *requisitionService) MarkOutstanding(ctx context.Context, actor Actor, id uint, in DecisionInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionMarkOutstanding, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		reason := strings.TrimSpace(in.Comment)
		if reason == "" {
			return "", nil, validationError("a reason is required to mark a requisition outstanding")
		}
		req.Status = model.StatusOutstanding
		req.FinanceComment = reason

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionOutstanding,
			"Requisition Outstanding",
			fmt.Sprintf("Requisition %s is outstanding: %s", req.Reference(), reason),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionMarkedOutstanding, map[string]interface{}{"comment": reason}, nil
	})
}

func (s *requisitionService) MarkPaid(ctx context.Context, actor Actor, id uint, in PaymentInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionMarkPaid, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		method := model.PaymentMethod(in.PaymentMethod)
		if !lo.Contains(validPaymentMethods, method) {
			return "", nil, validationError("payment_method %q is not supported", in.PaymentMethod)
		}
		reference := strings.TrimSpace(in.PaymentReference)
		if reference == "" {
			return "", nil, validationError("payment_reference is required")
		}
		now := s.now()
		paidOn, err := parseDate("payment_date", in.PaymentDate, now.Location())
		if err != nil {
			return "", nil, err
		}

		req.Status = model.StatusPaid
		req.PaymentMethod = &method
		req.PaymentReference = reference
		req.PaymentDate = &paidOn
		if comment := strings.TrimSpace(in.FinanceComment); comment != "" {
			req.FinanceComment = comment
		}
		if req.ProcessedAt == nil {
			req.ProcessedAt = &now
		}
		if req.ProcessedByID == nil {
			req.ProcessedByID = &actor.ID
		}

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionPaid,
			"Requisition Paid",
			fmt.Sprintf("Requisition %s has been paid via %s (ref %s).", req.Reference(), method, reference),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionPaidOrDisbursed, map[string]interface{}{
			"payment_method":    method,
			"payment_reference": reference,
		}, nil
	})
}

func (s *requisitionService) MarkFulfilled(ctx context.Context, actor Actor, id uint, in FulfilmentInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionMarkFulfilled, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		purchase := model.PurchaseStatus(in.PurchaseStatus)
		if !lo.Contains(validPurchase, purchase) {
			return "", nil, validationError("purchase_status %q is not supported", in.PurchaseStatus)
		}
		delivery := model.DeliveryStatus(in.DeliveryStatus)
		if !lo.Contains(validDelivery, delivery) {
			return "", nil, validationError("delivery_status %q is not supported", in.DeliveryStatus)
		}
		if !in.ActualAmount.IsPositive() {
			return "", nil, validationError("actual_amount must be greater than zero")
		}
		notes := strings.TrimSpace(in.FulfilmentNotes)
		if notes == "" {
			return "", nil, validationError("fulfilment_notes is required")
		}
		actual := in.ActualAmount.Round(2)
		variance := strings.TrimSpace(in.VarianceReason)
		if req.HasVariance(actual) && variance == "" {
			return "", nil, newError(KindVarianceReasonRequired,
				"actual amount %s differs from requested %s; a variance reason is required",
				actual.StringFixed(2), req.Amount.StringFixed(2))
		}

		now := s.now()
		req.Status = model.StatusFulfilled
		req.PurchaseStatus = &purchase
		req.DeliveryStatus = &delivery
		req.ActualAmount = decimal.NewNullDecimal(actual)
		req.FulfilmentNotes = notes
		req.VarianceReason = variance
		req.FulfilledAt = &now
		req.FulfilledByID = &actor.ID

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionFulfilled,
			"Requisition Fulfilled",
			fmt.Sprintf("Requisition %s has been fulfilled. Please confirm closure readiness.", req.Reference()),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionFulfilled, map[string]interface{}{
			"actual_amount": actual.StringFixed(2),
			"variance":      actual.Sub(req.Amount).StringFixed(2),
		}, nil
	})
}

func (s *requisitionService) ConfirmFulfilment(ctx context.Context, actor Actor, id uint) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionConfirmFulfilment, func(_ context.Context, req *model.Requisition, _ *outbox) (string, map[string]interface{}, error) {
		now := s.now()
		req.RequesterConfirmedAt = &now
		return model.ActionRequesterConfirmed, nil, nil
	})
}

func (s *requisitionService) Close(ctx context.Context, actor Actor, id uint, in ClosureInput) (*RequisitionResponse, error) {
	return s.transition(ctx, actor, id, TransitionClose, func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error) {
		comment := strings.TrimSpace(in.ClosureComment)
		if comment == "" {
			return "", nil, validationError("closure_comment is required")
		}
		now := s.now()
		req.Status = model.StatusClosed
		req.ClosedAt = &now
		req.ClosedByID = &actor.ID
		req.ClosureComment = comment

		if err := box.add(txCtx, s.requesterNotice(req, model.NotifyRequisitionClosed,
			"Requisition Closed",
			fmt.Sprintf("Requisition %s has been closed.", req.Reference()),
		)); err != nil {
			return "", nil, err
		}
		return model.ActionClosed, map[string]interface{}{"closure_comment": comment}, nil
	})
}

// mutation changes a locked requisition and returns the audit action and metadata.
type mutation func(txCtx context.Context, req *model.Requisition, box *outbox) (string, map[string]interface{}, error)

// transition applies one workflow step atomically: lock, check, mutate, save,
// audit and persist notifications in a single transaction. Notifications are
// delivered only after commit.
func (s *requisitionService) transition(ctx context.Context, actor Actor, id uint, t Transition, fn mutation) (*RequisitionResponse, error) {
	box := newOutbox(s.notifications)
	var (
		action     string
		status     model.RequisitionStatus
		turnaround *int
	)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFoundOr(err, "requisition", id)
		}
		if err := CheckTransition(t, req, actor); err != nil {
			return err
		}

		prevTurnaround := req.ApprovalTurnaroundHours
		act, meta, err := fn(txCtx, req, box)
		if err != nil {
			return err
		}
		if err := s.repo.Save(txCtx, req); err != nil {
			return fmt.Errorf("failed to update requisition: %w", err)
		}
		if err := s.audit.Record(txCtx, model.EntityRequisition, req.ID, act, &actor.ID, meta); err != nil {
			return err
		}

		action = act
		status = req.Status
		if req.ApprovalTurnaroundHours != nil && prevTurnaround == nil {
			turnaround = req.ApprovalTurnaroundHours
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(err)
	}

	box.flush()
	metrics.RecordTransition(model.EntityRequisition, action)
	if turnaround != nil {
		metrics.ObserveTurnaround(*turnaround)
	}
	s.logger.Info("Requisition transition applied",
		zap.Uint("requisition_id", id),
		zap.String("action", action),
		zap.String("status", string(status)),
		zap.Uint("actor_id", actor.ID))

	return s.Get(ctx, actor, id)
}

// fail records business-rule rejections and passes err through unchanged.
func (s *requisitionService) fail(err error) error {
	if kind := KindOf(err); kind != "" {
		metrics.RecordRejection(string(kind))
		s.logger.Debug("Requisition operation rejected", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		s.logger.Error("Requisition operation failed", zap.Error(err))
	}
	return err
}

// --- Reminders ---

func (s *requisitionService) SendApprovalReminders(ctx context.Context, after time.Duration) (int, error) {
	cutoff := s.now().Add(-after)
	stale, err := s.repo.FindStale(ctx, []model.RequisitionStatus{model.StatusSubmitted, model.StatusStage1Approved}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending approvals: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	box := newOutbox(s.notifications)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for i := range stale {
			req := &stale[i]
			exclude := []uint{req.RequesterID}
			since := req.SubmittedAt
			if req.Status == model.StatusStage1Approved && req.Stage1ApprovedByID != nil {
				exclude = append(exclude, *req.Stage1ApprovedByID)
				since = req.Stage1ApprovedAt
			}
			admins, err := s.users.AdminIDs(txCtx, exclude...)
			if err != nil {
				return fmt.Errorf("failed to load approvers: %w", err)
			}

			waiting := "submission"
			if since != nil {
				waiting = since.Format("2006-01-02")
			}
			if err := box.notifyAll(txCtx, admins, s.requisitionNotice(req, model.NotifyRequisitionApprovalOverdue,
				"Approval Overdue",
				fmt.Sprintf("Requisition %s (%s) has been waiting for a decision since %s.", req.Reference(), req.Status.Display().Label, waiting),
			)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := len(box.items)
	box.flush()
	metrics.AddReminders(sent)
	return sent, nil
}

// --- Helpers ---

func (s *requisitionService) requisitionNotice(req *model.Requisition, kind, title, message string) NotifyInput {
	id := req.ID
	return NotifyInput{
		Type:        kind,
		Title:       title,
		Message:     message,
		RelatedType: model.EntityRequisition,
		RelatedID:   &id,
	}
}

func (s *requisitionService) requesterNotice(req *model.Requisition, kind, title, message string) NotifyInput {
	in := s.requisitionNotice(req, kind, title, message)
	in.UserID = req.RequesterID
	return in
}

func toRequisitionResponse(r model.Requisition, actor Actor) RequisitionResponse {
	status := r.Status.Display()
	resp := RequisitionResponse{
		Requisition:      r,
		ReferenceNo:      r.Reference(),
		StatusLabel:      status.Label,
		StatusColor:      status.Color,
		BranchLabel:      r.Branch.Display().Label,
		CategoryLabel:    r.Category.Display().Label,
		AvailableActions: AvailableTransitions(&r, actor),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Name
	}
	return resp
}
