package repository

import (
	"context"

	"erequisition/internal/model"

	"gorm.io/gorm"
)

type AuditFilter struct {
	EntityType string
	EntityID   *uint
	Page       int
	Limit      int
}

// AuditRepository only appends; there is deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]model.AuditEvent, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, event *model.AuditEvent) error {
	return GetDB(ctx, r.db).Omit("Actor").Create(event).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditEvent, int64, error) {
	var events []model.AuditEvent
	var total int64

	query := GetDB(ctx, r.db).Model(&model.AuditEvent{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Actor").Order("created_at desc").Order("id desc").
		Offset(offset).Limit(filter.Limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
