package model

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

type Branch string

const (
	BranchSouthAfrica Branch = "south_africa"
	BranchZambia      Branch = "zambia"
	BranchEswatini    Branch = "eswatini"
	BranchZimbabwe    Branch = "zimbabwe"
)

var branchCurrencies = map[Branch]string{
	BranchSouthAfrica: "ZAR",
	BranchZambia:      "ZMW",
	BranchEswatini:    "SZL",
	BranchZimbabwe:    "USD",
}

// Currency returns the fixed ISO currency of the branch, or "" for an unknown branch.
func (b Branch) Currency() string {
	return branchCurrencies[b]
}

func (b Branch) Valid() bool {
	_, ok := branchCurrencies[b]
	return ok
}

type RequisitionType string

const (
	RequisitionTypeCash     RequisitionType = "cash"
	RequisitionTypePurchase RequisitionType = "purchase"
)

type RequisitionCategory string

const (
	CategoryOperations  RequisitionCategory = "operations"
	CategoryProject     RequisitionCategory = "project"
	CategoryEmergency   RequisitionCategory = "emergency"
	CategoryClient      RequisitionCategory = "client"
	CategoryProcurement RequisitionCategory = "procurement"
	CategoryTravel      RequisitionCategory = "travel"
	CategoryOther       RequisitionCategory = "other"
)

type RequisitionFor string

const (
	RequisitionForClient RequisitionFor = "client"
	RequisitionForOrder  RequisitionFor = "order"
	RequisitionForSelf   RequisitionFor = "self"
)

type RequisitionStatus string

const (
	StatusDraft                 RequisitionStatus = "draft"
	StatusSubmitted             RequisitionStatus = "submitted"
	StatusStage1Approved        RequisitionStatus = "stage1_approved"
	StatusModificationRequested RequisitionStatus = "modification_requested"
	StatusApproved              RequisitionStatus = "approved"
	StatusDenied                RequisitionStatus = "denied"
	StatusProcessing            RequisitionStatus = "processing"
	StatusPaid                  RequisitionStatus = "paid"
	StatusOutstanding           RequisitionStatus = "outstanding"
	StatusFulfilled             RequisitionStatus = "fulfilled"
	StatusClosed                RequisitionStatus = "closed"
)

// Terminal reports whether no further transition is possible.
func (s RequisitionStatus) Terminal() bool {
	return s == StatusDenied || s == StatusClosed
}

var (
	// PendingApprovalStatuses are waiting on an admin decision.
	PendingApprovalStatuses = []RequisitionStatus{StatusSubmitted, StatusStage1Approved, StatusModificationRequested}
	// FinancePipelineStatuses are approved but not yet fulfilled.
	FinancePipelineStatuses = []RequisitionStatus{StatusApproved, StatusProcessing, StatusOutstanding, StatusPaid}
	// OpenStatuses are neither drafts nor terminal.
	OpenStatuses = []RequisitionStatus{
		StatusSubmitted, StatusStage1Approved, StatusModificationRequested,
		StatusApproved, StatusProcessing, StatusOutstanding, StatusPaid, StatusFulfilled,
	}
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentCard         PaymentMethod = "card"
	PaymentEFT          PaymentMethod = "eft"
	PaymentOther        PaymentMethod = "other"
)

type PurchaseStatus string

const (
	PurchaseNotStarted        PurchaseStatus = "not_started"
	PurchaseOrdered           PurchaseStatus = "ordered"
	PurchasePartiallyReceived PurchaseStatus = "partially_received"
	PurchaseReceived          PurchaseStatus = "received"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
)

type LeaveReason string

const (
	LeaveAnnual               LeaveReason = "annual"
	LeaveSick                 LeaveReason = "sick"
	LeaveFamilyResponsibility LeaveReason = "family_responsibility"
	LeaveStudy                LeaveReason = "study"
	LeaveUnpaid               LeaveReason = "unpaid"
	LeaveOther                LeaveReason = "other"
)

type LeaveStatus string

const (
	LeaveStatusSubmitted LeaveStatus = "submitted"
	LeaveStatusApproved  LeaveStatus = "approved"
	LeaveStatusDenied    LeaveStatus = "denied"
)
