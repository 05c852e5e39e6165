package database

import (
	"erequisition/internal/model"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies every pending schema migration in order.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	return m.Migrate()
}

func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202610010001_create_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users")
			},
		},
		{
			ID: "202610010002_create_requisitions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.Requisition{}, &model.RequisitionAttachment{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("requisition_attachments", "requisitions")
			},
		},
		{
			ID: "202610010003_create_leave_requests",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.LeaveRequest{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("leave_requests")
			},
		},
		{
			ID: "202610010004_create_audit_and_notifications",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.AuditEvent{}, &model.Notification{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("notifications", "audit_events")
			},
		},
	}
}
