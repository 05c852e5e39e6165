package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EntityRequisition  = "Requisition"
	EntityLeaveRequest = "LeaveRequest"
	EntityUser         = "User"
)

// Requisition workflow actions
const (
	ActionCreated               = "CREATED"
	ActionUpdated               = "UPDATED"
	ActionAttachmentUploaded    = "ATTACHMENT_UPLOADED"
	ActionSubmitted             = "SUBMITTED"
	ActionStage1Approved        = "STAGE1_APPROVED"
	ActionFinalApproved         = "FINAL_APPROVED"
	ActionModificationRequested = "MODIFICATION_REQUESTED"
	ActionDenied                = "DENIED"
	ActionProcessingStarted     = "PROCESSING_STARTED"
	ActionMarkedOutstanding     = "MARKED_OUTSTANDING"
	ActionPaidOrDisbursed       = "PAID_OR_DISBURSED"
	ActionFulfilled             = "FULFILLED"
	ActionRequesterConfirmed    = "REQUESTER_CONFIRMED"
	ActionClosed                = "CLOSED"
)

// Leave workflow actions
const (
	ActionLeaveSubmitted = "SUBMITTED"
	ActionLeaveApproved  = "APPROVED"
	ActionLeaveDenied    = "DENIED"
)

const ActionUserCreated = "USER_CREATED"

// AuditEvent is an append-only record of a state change. Rows are never updated.
type AuditEvent struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	EntityType string         `gorm:"type:varchar(50);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uint           `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	ActorID    *uint          `gorm:"index" json:"actor_id"` // nil for scheduled jobs
	Actor      *User          `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
