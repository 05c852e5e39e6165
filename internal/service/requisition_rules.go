package service

import (
	"time"

	"erequisition/internal/model"

	"github.com/samber/lo"
)

// Transition names an operation of the requisition workflow.
type Transition string

const (
	TransitionUpdate              Transition = "update"
	TransitionUploadAttachment    Transition = "upload_attachment"
	TransitionSubmit              Transition = "submit"
	TransitionStage1Approve       Transition = "stage1_approve"
	TransitionFinalApprove        Transition = "final_approve"
	TransitionRequestModification Transition = "request_modification"
	TransitionDeny                Transition = "deny"
	TransitionStartProcessing     Transition = "start_processing"
	TransitionMarkOutstanding     Transition = "mark_outstanding"
	TransitionMarkPaid            Transition = "mark_paid"
	TransitionMarkFulfilled       Transition = "mark_fulfilled"
	TransitionConfirmFulfilment   Transition = "confirm_fulfilment"
	TransitionClose               Transition = "close"
)

type actorRule int

const (
	requesterOrAdmin actorRule = iota
	requesterOnly
	adminOnly
	// adminNotRequester forbids self-approval.
	adminNotRequester
)

type transitionRule struct {
	from  []model.RequisitionStatus
	actor actorRule
	guard func(r *model.Requisition, a Actor) error
}

var editableStatuses = []model.RequisitionStatus{model.StatusDraft, model.StatusModificationRequested}

var transitionRules = map[Transition]transitionRule{
	TransitionUpdate: {
		from:  editableStatuses,
		actor: requesterOnly,
	},
	TransitionUploadAttachment: {
		from: []model.RequisitionStatus{
			model.StatusDraft, model.StatusSubmitted, model.StatusStage1Approved, model.StatusModificationRequested,
			model.StatusApproved, model.StatusProcessing, model.StatusOutstanding, model.StatusPaid, model.StatusFulfilled,
		},
		actor: requesterOrAdmin,
	},
	TransitionSubmit: {
		from:  editableStatuses,
		actor: requesterOnly,
	},
	TransitionStage1Approve: {
		from:  []model.RequisitionStatus{model.StatusSubmitted},
		actor: adminNotRequester,
	},
	TransitionFinalApprove: {
		from:  []model.RequisitionStatus{model.StatusStage1Approved},
		actor: adminNotRequester,
		guard: func(r *model.Requisition, a Actor) error {
			if r.Stage1ApprovedByID != nil && *r.Stage1ApprovedByID == a.ID {
				return illegalTransition("the stage 1 approver cannot give final approval")
			}
			return nil
		},
	},
	TransitionRequestModification: {
		from:  []model.RequisitionStatus{model.StatusSubmitted, model.StatusStage1Approved},
		actor: adminNotRequester,
	},
	TransitionDeny: {
		from:  []model.RequisitionStatus{model.StatusSubmitted, model.StatusStage1Approved, model.StatusModificationRequested},
		actor: adminNotRequester,
	},
	TransitionStartProcessing: {
		from:  []model.RequisitionStatus{model.StatusApproved},
		actor: adminOnly,
	},
	TransitionMarkOutstanding: {
		from:  []model.RequisitionStatus{model.StatusProcessing},
		actor: adminOnly,
	},
	TransitionMarkPaid: {
		from:  []model.RequisitionStatus{model.StatusProcessing, model.StatusOutstanding},
		actor: adminOnly,
	},
	TransitionMarkFulfilled: {
		from:  []model.RequisitionStatus{model.StatusPaid, model.StatusProcessing},
		actor: adminOnly,
	},
	TransitionConfirmFulfilment: {
		from:  []model.RequisitionStatus{model.StatusFulfilled},
		actor: requesterOnly,
		guard: func(r *model.Requisition, _ Actor) error {
			if r.RequesterConfirmedAt != nil {
				return illegalTransition("fulfilment has already been confirmed")
			}
			return nil
		},
	},
	TransitionClose: {
		from:  []model.RequisitionStatus{model.StatusFulfilled},
		actor: adminOnly,
		guard: func(r *model.Requisition, _ Actor) error {
			if r.RequesterConfirmedAt == nil {
				return illegalTransition("the requester has not confirmed fulfilment")
			}
			return nil
		},
	},
}

// transitionOrder is the order in which available actions are listed.
var transitionOrder = []Transition{
	TransitionUpdate, TransitionUploadAttachment, TransitionSubmit,
	TransitionStage1Approve, TransitionFinalApprove, TransitionRequestModification, TransitionDeny,
	TransitionStartProcessing, TransitionMarkOutstanding, TransitionMarkPaid,
	TransitionMarkFulfilled, TransitionConfirmFulfilment, TransitionClose,
}

// CheckTransition reports why actor may not apply t to r, or nil if it may.
func CheckTransition(t Transition, r *model.Requisition, a Actor) error {
	rule, ok := transitionRules[t]
	if !ok {
		return illegalTransition("unknown operation %q", t)
	}

	switch rule.actor {
	case requesterOnly:
		if !r.IsRequester(a.ID) {
			return illegalTransition("only the requester can %s", t)
		}
	case adminOnly:
		if err := a.requireAdmin(string(t)); err != nil {
			return err
		}
	case adminNotRequester:
		if err := a.requireAdmin(string(t)); err != nil {
			return err
		}
		if r.IsRequester(a.ID) {
			return illegalTransition("admins cannot %s their own requisition", t)
		}
	default:
		if !a.IsAdmin() && !r.IsRequester(a.ID) {
			return newError(KindUnauthorized, "not allowed to %s this requisition", t)
		}
	}

	if !lo.Contains(rule.from, r.Status) {
		return illegalTransition("cannot %s a requisition in status %s", t, r.Status)
	}

	if rule.guard != nil {
		return rule.guard(r, a)
	}
	return nil
}

// AvailableTransitions lists the operations actor may apply to r right now.
func AvailableTransitions(r *model.Requisition, a Actor) []Transition {
	return lo.Filter(transitionOrder, func(t Transition, _ int) bool {
		return CheckTransition(t, r, a) == nil
	})
}

// turnaroundHours is the whole number of hours since submission, or nil when
// the requisition was never submitted.
func turnaroundHours(submittedAt *time.Time, now time.Time) *int {
	if submittedAt == nil {
		return nil
	}
	hours := int(now.Sub(*submittedAt).Hours())
	if hours < 0 {
		hours = 0
	}
	return &hours
}

var (
	validTypes          = []model.RequisitionType{model.RequisitionTypeCash, model.RequisitionTypePurchase}
	validCategories     = []model.RequisitionCategory{model.CategoryOperations, model.CategoryProject, model.CategoryEmergency, model.CategoryClient, model.CategoryProcurement, model.CategoryTravel, model.CategoryOther}
	validFor            = []model.RequisitionFor{model.RequisitionForClient, model.RequisitionForOrder, model.RequisitionForSelf}
	validPaymentMethods = []model.PaymentMethod{model.PaymentCash, model.PaymentBankTransfer, model.PaymentMobileMoney, model.PaymentCard, model.PaymentEFT, model.PaymentOther}
	validPurchase       = []model.PurchaseStatus{model.PurchaseNotStarted, model.PurchaseOrdered, model.PurchasePartiallyReceived, model.PurchaseReceived}
	validDelivery       = []model.DeliveryStatus{model.DeliveryPending, model.DeliveryInTransit, model.DeliveryDelivered}
)
