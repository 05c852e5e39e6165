package repository

import (
	"context"

	"erequisition/internal/model"

	"gorm.io/gorm"
)

type AttachmentRepository interface {
	Create(ctx context.Context, att *model.RequisitionAttachment) error
	CountByRequisition(ctx context.Context, requisitionID uint) (int64, error)
	FindByID(ctx context.Context, requisitionID, attachmentID uint) (*model.RequisitionAttachment, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, att *model.RequisitionAttachment) error {
	return GetDB(ctx, r.db).Create(att).Error
}

func (r *attachmentRepository) CountByRequisition(ctx context.Context, requisitionID uint) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.RequisitionAttachment{}).
		Where("requisition_id = ?", requisitionID).
		Count(&count).Error
	return count, err
}

func (r *attachmentRepository) FindByID(ctx context.Context, requisitionID, attachmentID uint) (*model.RequisitionAttachment, error) {
	var att model.RequisitionAttachment
	err := GetDB(ctx, r.db).
		Where("requisition_id = ?", requisitionID).
		First(&att, attachmentID).Error
	if err != nil {
		return nil, err
	}
	return &att, nil
}
