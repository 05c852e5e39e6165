package service

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"erequisition/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequisition_SingleStageApproval(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Emma Employee", model.RoleEmployee)
	adminA := h.user("Alice Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(5000, "Fuel for generator"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, created.Status)
	assert.Equal(t, "ZAR", created.Currency)
	assert.False(t, created.RequiresAdditionalApproval)
	assert.NotEmpty(t, created.ReferenceNo)

	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.notificationCount(adminA.ID, model.NotifyRequisitionSubmitted))

	h.clock.Advance(5 * time.Hour)
	approved, err := h.requisitions.Stage1Approve(h.ctx, adminA, created.ID, DecisionInput{Comment: "ok"})
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedByID)
	assert.Equal(t, adminA.ID, *approved.DecidedByID)
	require.NotNil(t, approved.ApprovalTurnaroundHours)
	assert.Equal(t, 5, *approved.ApprovalTurnaroundHours)
	assert.Equal(t, int64(1), h.notificationCount(requester.ID, model.NotifyRequisitionApproved))
	assert.Equal(t, 1, h.pusher.count(requester.ID))
	assert.Equal(t, created.ReferenceNo, approved.ReferenceNo)
}

func TestRequisition_TwoStageApproval(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Ethan Employee", model.RoleEmployee)
	adminA := h.user("Anna Admin", model.RoleAdmin)
	adminB := h.user("Ben Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(15000, "Site laptops"))
	require.NoError(t, err)
	assert.True(t, created.RequiresAdditionalApproval)

	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)

	stage1, err := h.requisitions.Stage1Approve(h.ctx, adminA, created.ID, DecisionInput{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusStage1Approved, stage1.Status)
	require.NotNil(t, stage1.Stage1ApprovedByID)
	assert.Equal(t, adminA.ID, *stage1.Stage1ApprovedByID)
	assert.Nil(t, stage1.DecidedByID)
	assert.Equal(t, int64(1), h.notificationCount(adminB.ID, model.NotifyRequisitionStage2Pending))
	assert.Equal(t, int64(0), h.notificationCount(adminA.ID, model.NotifyRequisitionStage2Pending))
	assert.Equal(t, int64(1), h.notificationCount(requester.ID, model.NotifyRequisitionStage1Approved))

	_, err = h.requisitions.FinalApprove(h.ctx, adminA, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	final, err := h.requisitions.FinalApprove(h.ctx, adminB, created.ID, DecisionInput{Comment: "approved"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, final.Status)
	require.NotNil(t, final.DecidedByID)
	assert.Equal(t, adminB.ID, *final.DecidedByID)
	assert.NotNil(t, final.ApprovalTurnaroundHours)
	assert.Equal(t, int64(1), h.notificationCount(requester.ID, model.NotifyRequisitionApproved))
}

func TestRequisition_SingleApproverFallback(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Faith Employee", model.RoleEmployee)
	admin := h.user("Only Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(20000, "Vehicle repair"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)

	approved, err := h.requisitions.Stage1Approve(h.ctx, admin, created.ID, DecisionInput{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	var n model.Notification
	require.NoError(t, h.db.Where("user_id = ? AND type = ?", requester.ID, model.NotifyRequisitionApproved).First(&n).Error)
	assert.Contains(t, n.Message, "single approver fallback")

	var event model.AuditEvent
	require.NoError(t, h.db.Where("entity_id = ? AND action = ?", created.ID, model.ActionStage1Approved).First(&event).Error)
	assert.Contains(t, string(event.Metadata), "single_approver_fallback")
}

func TestRequisition_AttachmentRequiredForProcurement(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Paul Employee", model.RoleEmployee)
	h.user("Pam Admin", model.RoleAdmin)

	in := h.input(3000, "Office chairs")
	in.Category = string(model.CategoryProcurement)
	created, err := h.requisitions.Create(h.ctx, requester, in)
	require.NoError(t, err)

	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	assert.ErrorIs(t, err, ErrAttachmentsRequired)

	current, err := h.requisitions.Get(h.ctx, requester, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, current.Status)
	assert.Equal(t, []string{model.ActionCreated}, h.auditActions(model.EntityRequisition, created.ID))

	withFile, err := h.requisitions.UploadAttachment(h.ctx, requester, created.ID, AttachmentUpload{
		FileName:    "quote.pdf",
		ContentType: "application/pdf",
		Size:        5,
		Body:        strings.NewReader("quote"),
	})
	require.NoError(t, err)
	require.Len(t, withFile.Attachments, 1)

	att, rc, err := h.requisitions.OpenAttachment(h.ctx, requester, created.ID, withFile.Attachments[0].ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "quote.pdf", att.FileName)
	assert.Equal(t, "quote", string(data))

	submitted, err := h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, submitted.Status)
}

func TestRequisition_AttachmentTooLarge(t *testing.T) {
	cfg := DefaultWorkflowConfig()
	cfg.AttachmentMaxBytes = 4
	h := newHarnessWithConfig(t, cfg)
	requester := h.user("Lara Employee", model.RoleEmployee)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(100, "Stationery"))
	require.NoError(t, err)

	// Size unknown to the caller; the stored length decides.
	_, err = h.requisitions.UploadAttachment(h.ctx, requester, created.ID, AttachmentUpload{
		FileName: "big.txt",
		Body:     strings.NewReader("too large"),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	var count int64
	require.NoError(t, h.db.Model(&model.RequisitionAttachment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRequisition_DuplicateIsRejected(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Dan Employee", model.RoleEmployee)
	h.user("Dora Admin", model.RoleAdmin)

	first, err := h.requisitions.Create(h.ctx, requester, h.input(750, "Team lunch"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, first.ID)
	require.NoError(t, err)

	second, err := h.requisitions.Create(h.ctx, requester, h.input(750, "Team lunch"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, second.ID)
	assert.ErrorIs(t, err, ErrPotentialDuplicate)

	other, err := h.requisitions.Create(h.ctx, requester, h.input(750, "Client lunch"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, other.ID)
	assert.NoError(t, err)
}

func TestRequisition_SelfApprovalIsRejected(t *testing.T) {
	h := newHarness(t)
	admin := h.user("Sam Admin", model.RoleAdmin)
	h.user("Sue Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, admin, h.input(900, "Printer toner"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, admin, created.ID)
	require.NoError(t, err)

	_, err = h.requisitions.Stage1Approve(h.ctx, admin, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = h.requisitions.Deny(h.ctx, admin, created.ID, DecisionInput{Comment: "no"})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRequisition_EmployeeCannotDecide(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Eve Employee", model.RoleEmployee)
	colleague := h.user("Carl Employee", model.RoleEmployee)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(400, "Taxi fares"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)

	_, err = h.requisitions.Stage1Approve(h.ctx, colleague, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.requisitions.Get(h.ctx, colleague, created.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.requisitions.Get(h.ctx, requester, created.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequisition_ValidationErrors(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Vic Employee", model.RoleEmployee)

	cases := map[string]func(in *RequisitionInput){
		"zero amount":    func(in *RequisitionInput) { in.Amount = decimal.Zero },
		"empty purpose":  func(in *RequisitionInput) { in.Purpose = "  " },
		"past date":      func(in *RequisitionInput) { in.NeededBy = h.clock.Now().AddDate(0, 0, -1).Format("2006-01-02") },
		"bad date":       func(in *RequisitionInput) { in.NeededBy = "tomorrow" },
		"unknown branch": func(in *RequisitionInput) { in.Branch = "mars" },
		"bad category":   func(in *RequisitionInput) { in.Category = "snacks" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := h.input(100, "Valid purpose")
			mutate(&in)
			_, err := h.requisitions.Create(h.ctx, requester, in)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}

	in := h.input(100, "Defaults applied")
	in.RequisitionType = ""
	in.Category = ""
	in.Branch = string(model.BranchZambia)
	created, err := h.requisitions.Create(h.ctx, requester, in)
	require.NoError(t, err)
	assert.Equal(t, model.RequisitionTypeCash, created.RequisitionType)
	assert.Equal(t, model.CategoryOperations, created.Category)
	assert.Equal(t, "ZMW", created.Currency)
}

func TestRequisition_ModificationAndResubmission(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Mia Employee", model.RoleEmployee)
	adminA := h.user("Max Admin", model.RoleAdmin)
	h.user("Meg Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(12000, "Conference travel"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	_, err = h.requisitions.Stage1Approve(h.ctx, adminA, created.ID, DecisionInput{})
	require.NoError(t, err)

	_, err = h.requisitions.RequestModification(h.ctx, adminA, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrValidationFailed)

	modified, err := h.requisitions.RequestModification(h.ctx, adminA, created.ID, DecisionInput{Comment: "Split hotel costs"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusModificationRequested, modified.Status)
	assert.Equal(t, int64(1), h.notificationCount(requester.ID, model.NotifyRequisitionModification))

	in := h.input(8000, "Conference travel, flights only")
	edited, err := h.requisitions.Update(h.ctx, requester, created.ID, in)
	require.NoError(t, err)
	assert.False(t, edited.RequiresAdditionalApproval)
	assert.Equal(t, created.ReferenceNo, edited.ReferenceNo)

	resubmitted, err := h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, resubmitted.Status)
	assert.Nil(t, resubmitted.Stage1ApprovedByID)
	assert.Nil(t, resubmitted.Stage1ApprovedAt)
	assert.Empty(t, resubmitted.DecisionComment)

	_, err = h.requisitions.Update(h.ctx, requester, created.ID, in)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRequisition_DenyIsTerminal(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Dina Employee", model.RoleEmployee)
	admin := h.user("Dirk Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(600, "Gym membership"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)

	_, err = h.requisitions.Deny(h.ctx, admin, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrValidationFailed)

	h.clock.Advance(2 * time.Hour)
	denied, err := h.requisitions.Deny(h.ctx, admin, created.ID, DecisionInput{Comment: "Not a business expense"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDenied, denied.Status)
	require.NotNil(t, denied.ApprovalTurnaroundHours)
	assert.Equal(t, 2, *denied.ApprovalTurnaroundHours)
	assert.Empty(t, denied.AvailableActions)

	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = h.requisitions.StartProcessing(h.ctx, admin, created.ID, DecisionInput{})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRequisition_FinancePipelineToClose(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Fred Employee", model.RoleEmployee)
	admin := h.user("Fiona Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(2500, "Safety boots"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	_, err = h.requisitions.Stage1Approve(h.ctx, admin, created.ID, DecisionInput{})
	require.NoError(t, err)

	processing, err := h.requisitions.StartProcessing(h.ctx, admin, created.ID, DecisionInput{Comment: "Quote requested"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, processing.Status)

	_, err = h.requisitions.MarkOutstanding(h.ctx, admin, created.ID, DecisionInput{Comment: "Supplier invoice missing"})
	require.NoError(t, err)

	_, err = h.requisitions.MarkPaid(h.ctx, admin, created.ID, PaymentInput{
		PaymentMethod: "cheque", PaymentReference: "X", PaymentDate: h.clock.Now().Format("2006-01-02"),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	paid, err := h.requisitions.MarkPaid(h.ctx, admin, created.ID, PaymentInput{
		PaymentMethod:    string(model.PaymentEFT),
		PaymentReference: "EFT-991",
		PaymentDate:      h.clock.Now().Format("2006-01-02"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, paid.Status)
	require.NotNil(t, paid.ProcessedByID)
	assert.Equal(t, admin.ID, *paid.ProcessedByID)

	fulfil := FulfilmentInput{
		PurchaseStatus:  string(model.PurchaseReceived),
		DeliveryStatus:  string(model.DeliveryDelivered),
		ActualAmount:    decimal.NewFromInt(2650),
		FulfilmentNotes: "Boots delivered to site",
	}
	_, err = h.requisitions.MarkFulfilled(h.ctx, admin, created.ID, fulfil)
	assert.ErrorIs(t, err, ErrVarianceReasonRequired)

	fulfil.VarianceReason = "Courier surcharge"
	fulfilled, err := h.requisitions.MarkFulfilled(h.ctx, admin, created.ID, fulfil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFulfilled, fulfilled.Status)
	assert.True(t, fulfilled.ActualAmount.Valid)
	assert.Equal(t, int64(1), h.notificationCount(requester.ID, model.NotifyRequisitionFulfilled))

	_, err = h.requisitions.Close(h.ctx, admin, created.ID, ClosureInput{ClosureComment: "done"})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = h.requisitions.ConfirmFulfilment(h.ctx, admin, created.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	confirmed, err := h.requisitions.ConfirmFulfilment(h.ctx, requester, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, confirmed.RequesterConfirmedAt)
	assert.Equal(t, model.StatusFulfilled, confirmed.Status)

	_, err = h.requisitions.ConfirmFulfilment(h.ctx, requester, created.ID)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	closed, err := h.requisitions.Close(h.ctx, admin, created.ID, ClosureInput{ClosureComment: "All received"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, closed.Status)
	assert.Equal(t, created.ReferenceNo, closed.ReferenceNo)

	assert.Equal(t, []string{
		model.ActionCreated,
		model.ActionSubmitted,
		model.ActionStage1Approved,
		model.ActionProcessingStarted,
		model.ActionMarkedOutstanding,
		model.ActionPaidOrDisbursed,
		model.ActionFulfilled,
		model.ActionRequesterConfirmed,
		model.ActionClosed,
	}, h.auditActions(model.EntityRequisition, created.ID))
}

func TestRequisition_FulfilWithoutVariance(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Gina Employee", model.RoleEmployee)
	admin := h.user("Gus Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(300, "Cables"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)
	_, err = h.requisitions.Stage1Approve(h.ctx, admin, created.ID, DecisionInput{})
	require.NoError(t, err)
	_, err = h.requisitions.StartProcessing(h.ctx, admin, created.ID, DecisionInput{})
	require.NoError(t, err)

	fulfilled, err := h.requisitions.MarkFulfilled(h.ctx, admin, created.ID, FulfilmentInput{
		PurchaseStatus:  string(model.PurchaseReceived),
		DeliveryStatus:  string(model.DeliveryDelivered),
		ActualAmount:    decimal.RequireFromString("300.00"),
		FulfilmentNotes: "Collected in store",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFulfilled, fulfilled.Status)
	assert.Empty(t, fulfilled.VarianceReason)
}

func TestRequisition_ListScopesEmployees(t *testing.T) {
	h := newHarness(t)
	alice := h.user("Alma Employee", model.RoleEmployee)
	bob := h.user("Bert Employee", model.RoleEmployee)
	admin := h.user("Lia Admin", model.RoleAdmin)

	_, err := h.requisitions.Create(h.ctx, alice, h.input(100, "Pens"))
	require.NoError(t, err)
	_, err = h.requisitions.Create(h.ctx, bob, h.input(200, "Paper"))
	require.NoError(t, err)

	mine, total, err := h.requisitions.List(h.ctx, alice, RequisitionListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, mine, 1)
	assert.Equal(t, "Pens", mine[0].Purpose)
	assert.Contains(t, mine[0].AvailableActions, TransitionSubmit)

	all, total, err := h.requisitions.List(h.ctx, admin, RequisitionListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)
}

func TestRequisition_ApprovalReminders(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Rita Employee", model.RoleEmployee)
	adminA := h.user("Ray Admin", model.RoleAdmin)
	adminB := h.user("Rob Admin", model.RoleAdmin)

	waiting, err := h.requisitions.Create(h.ctx, requester, h.input(500, "Courier fees"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, waiting.ID)
	require.NoError(t, err)

	escalated, err := h.requisitions.Create(h.ctx, requester, h.input(50000, "New forklift"))
	require.NoError(t, err)
	_, err = h.requisitions.Submit(h.ctx, requester, escalated.ID)
	require.NoError(t, err)
	_, err = h.requisitions.Stage1Approve(h.ctx, adminA, escalated.ID, DecisionInput{})
	require.NoError(t, err)

	sent, err := h.requisitions.SendApprovalReminders(h.ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	h.clock.Advance(4 * 24 * time.Hour)
	sent, err = h.requisitions.SendApprovalReminders(h.ctx, 72*time.Hour)
	require.NoError(t, err)

	// waiting: both admins; escalated: only the admin who has not approved yet.
	assert.Equal(t, 3, sent)
	assert.Equal(t, int64(1), h.notificationCount(adminA.ID, model.NotifyRequisitionApprovalOverdue))
	assert.Equal(t, int64(2), h.notificationCount(adminB.ID, model.NotifyRequisitionApprovalOverdue))
	assert.Equal(t, int64(0), h.notificationCount(requester.ID, model.NotifyRequisitionApprovalOverdue))
}

func TestRequisition_BranchDefaultsToRequester(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Bella Employee", model.RoleEmployee)

	in := h.input(300, "Team lunch")
	in.Branch = ""
	created, err := h.requisitions.Create(h.ctx, requester, in)
	require.NoError(t, err)
	assert.Equal(t, model.BranchSouthAfrica, created.Branch)
	assert.Equal(t, "ZAR", created.Currency)

	in = h.input(300, "Courier to Lusaka")
	in.Branch = string(model.BranchZambia)
	zambian, err := h.requisitions.Create(h.ctx, requester, in)
	require.NoError(t, err)

	// an edit without a branch keeps the stored one
	in.Branch = ""
	in.Purpose = "Courier to Ndola"
	updated, err := h.requisitions.Update(h.ctx, requester, zambian.ID, in)
	require.NoError(t, err)
	assert.Equal(t, model.BranchZambia, updated.Branch)
	assert.Equal(t, "ZMW", updated.Currency)
}

func TestRequisition_ConcurrentStage1ApprovalsOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Carl Employee", model.RoleEmployee)
	adminA := h.user("Cara Admin", model.RoleAdmin)
	adminB := h.user("Cody Admin", model.RoleAdmin)
	adminC := h.user("Cleo Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(20000, "Warehouse racking"))
	require.NoError(t, err)
	require.True(t, created.RequiresAdditionalApproval)
	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, admin := range []Actor{adminA, adminB} {
		wg.Add(1)
		go func(i int, admin Actor) {
			defer wg.Done()
			_, errs[i] = h.requisitions.Stage1Approve(h.ctx, admin, created.ID, DecisionInput{})
		}(i, admin)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrIllegalTransition):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	assert.Equal(t, int64(1), h.notificationCount(adminC.ID, model.NotifyRequisitionStage2Pending))
	assert.Equal(t, []string{model.ActionCreated, model.ActionSubmitted, model.ActionStage1Approved},
		h.auditActions(model.EntityRequisition, created.ID))
}

func TestRequisition_FailedAuditRollsBackSubmit(t *testing.T) {
	h := newHarness(t)
	requester := h.user("Dora Employee", model.RoleEmployee)
	admin := h.user("Dan Admin", model.RoleAdmin)

	created, err := h.requisitions.Create(h.ctx, requester, h.input(700, "Printer repair"))
	require.NoError(t, err)

	require.NoError(t, h.db.Exec("DROP TABLE audit_events").Error)

	_, err = h.requisitions.Submit(h.ctx, requester, created.ID)
	require.Error(t, err)
	assert.Empty(t, KindOf(err))

	var stored model.Requisition
	require.NoError(t, h.db.First(&stored, created.ID).Error)
	assert.Equal(t, model.StatusDraft, stored.Status)
	assert.Nil(t, stored.SubmittedAt)

	var notifications int64
	require.NoError(t, h.db.Model(&model.Notification{}).Count(&notifications).Error)
	assert.Zero(t, notifications)
	assert.Zero(t, h.pusher.count(admin.ID))
}
