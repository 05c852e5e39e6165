package model

import "time"

const (
	NotifyRequisitionSubmitted       = "requisition_submitted"
	NotifyRequisitionStage2Pending   = "requisition_stage2_pending"
	NotifyRequisitionStage1Approved  = "requisition_stage1_approved"
	NotifyRequisitionApproved        = "requisition_approved"
	NotifyRequisitionModification    = "requisition_modification_requested"
	NotifyRequisitionDenied          = "requisition_denied"
	NotifyRequisitionProcessing      = "requisition_processing"
	NotifyRequisitionOutstanding     = "requisition_outstanding"
	NotifyRequisitionPaid            = "requisition_paid"
	NotifyRequisitionFulfilled       = "requisition_fulfilled"
	NotifyRequisitionClosed          = "requisition_closed"
	NotifyRequisitionApprovalOverdue = "approval_reminder"
	NotifyLeaveSubmitted             = "leave_submitted"
	NotifyLeaveApproved              = "leave_approved"
	NotifyLeaveDenied                = "leave_denied"
)

// Notification is an in-app message for one user. RelatedType/RelatedID only
// point at the entity for deep links.
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;index:idx_notification_user_read" json:"user_id"`
	Type        string     `gorm:"type:varchar(60);not null" json:"type"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	Read        bool       `gorm:"column:is_read;not null;default:false;index:idx_notification_user_read" json:"read"`
	ReadAt      *time.Time `json:"read_at"`
	RelatedType string     `gorm:"type:varchar(50)" json:"related_type,omitempty"`
	RelatedID   *uint      `json:"related_id,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
