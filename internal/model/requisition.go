package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Requisition is a cash or purchase request moving through the approval workflow.
// ReferenceNo is NULL until the row has an id.
type Requisition struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	ReferenceNo *string `gorm:"type:varchar(30);uniqueIndex" json:"reference_no"`
	RequesterID uint    `gorm:"not null;index" json:"requester_id"`
	Requester   *User   `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`

	Branch          Branch              `gorm:"type:varchar(30);not null;index" json:"branch"`
	RequisitionType RequisitionType     `gorm:"type:varchar(20);not null;default:cash" json:"requisition_type"`
	Category        RequisitionCategory `gorm:"type:varchar(30);not null;default:operations;index" json:"category"`
	RequisitionFor  *RequisitionFor     `gorm:"type:varchar(20)" json:"requisition_for"`
	ProjectName     string              `gorm:"type:varchar(255)" json:"project_name"`
	ProjectCode     string              `gorm:"type:varchar(100)" json:"project_code"`
	CostCenter      string              `gorm:"type:varchar(100)" json:"cost_center"`
	BudgetCode      string              `gorm:"type:varchar(100)" json:"budget_code"`
	ClientRef       string              `gorm:"type:varchar(255)" json:"client_ref"`
	OrderRef        string              `gorm:"type:varchar(255)" json:"order_ref"`

	Amount                     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency                   string          `gorm:"type:varchar(3);not null" json:"currency"`
	RequiresAdditionalApproval bool            `gorm:"not null;default:false" json:"requires_additional_approval"`
	Purpose                    string          `gorm:"type:text;not null" json:"purpose"`
	NeededBy                   time.Time       `gorm:"type:date;not null" json:"needed_by"`

	Status      RequisitionStatus `gorm:"type:varchar(30);not null;default:draft;index" json:"status"`
	SubmittedAt *time.Time        `json:"submitted_at"`

	Stage1ApprovedAt        *time.Time `json:"stage1_approved_at"`
	Stage1ApprovedByID      *uint      `json:"stage1_approved_by_id"`
	Stage1Comment           string     `gorm:"type:text" json:"stage1_comment"`
	DecidedAt               *time.Time `json:"decided_at"`
	DecidedByID             *uint      `json:"decided_by_id"`
	DecisionComment         string     `gorm:"type:text" json:"decision_comment"`
	ApprovalTurnaroundHours *int       `json:"approval_turnaround_hours"`

	ProcessedAt      *time.Time     `json:"processed_at"`
	ProcessedByID    *uint          `json:"processed_by_id"`
	PaymentMethod    *PaymentMethod `gorm:"type:varchar(30)" json:"payment_method"`
	PaymentReference string         `gorm:"type:varchar(255)" json:"payment_reference"`
	PaymentDate      *time.Time     `gorm:"type:date" json:"payment_date"`
	FinanceComment   string         `gorm:"type:text" json:"finance_comment"`

	PurchaseStatus  *PurchaseStatus     `gorm:"type:varchar(30)" json:"purchase_status"`
	DeliveryStatus  *DeliveryStatus     `gorm:"type:varchar(30)" json:"delivery_status"`
	FulfilledAt     *time.Time          `json:"fulfilled_at"`
	FulfilledByID   *uint               `json:"fulfilled_by_id"`
	FulfilmentNotes string              `gorm:"type:text" json:"fulfilment_notes"`
	ActualAmount    decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"actual_amount"`
	VarianceReason  string              `gorm:"type:text" json:"variance_reason"`

	RequesterConfirmedAt *time.Time `json:"requester_confirmed_at"`
	ClosedAt             *time.Time `json:"closed_at"`
	ClosedByID           *uint      `json:"closed_by_id"`
	ClosureComment       string     `gorm:"type:text" json:"closure_comment"`

	Attachments []RequisitionAttachment `gorm:"foreignKey:RequisitionID" json:"attachments,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RequisitionAttachment is a supporting document stored outside the database.
type RequisitionAttachment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequisitionID uint      `gorm:"not null;index" json:"requisition_id"`
	FileName      string    `gorm:"type:varchar(255);not null" json:"file_name"`
	FileType      string    `gorm:"type:varchar(100)" json:"file_type"`
	FileSize      int64     `gorm:"not null" json:"file_size"`
	StoragePath   string    `gorm:"type:varchar(500);not null" json:"-"`
	UploadedByID  uint      `gorm:"not null" json:"uploaded_by_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ApplyThreshold recomputes the derived escalation flag. It must run before
// every save; the flag is never set from input.
func (r *Requisition) ApplyThreshold(threshold decimal.Decimal) {
	r.RequiresAdditionalApproval = r.Amount.GreaterThanOrEqual(threshold)
}

// BuildReferenceNo formats the human reference from creation date and id.
func BuildReferenceNo(createdAt time.Time, id uint) string {
	return fmt.Sprintf("REQ-%s-%06d", createdAt.Format("20060102"), id)
}

// Reference returns the reference number or "" while unassigned.
func (r *Requisition) Reference() string {
	if r.ReferenceNo == nil {
		return ""
	}
	return *r.ReferenceNo
}

func (r *Requisition) IsRequester(userID uint) bool {
	return r.RequesterID == userID
}

// HasVariance reports whether the fulfilled amount differs from the requested one.
func (r *Requisition) HasVariance(actual decimal.Decimal) bool {
	return !actual.Equal(r.Amount)
}
