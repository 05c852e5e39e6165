package repository

import (
	"context"

	"erequisition/internal/model"

	"gorm.io/gorm"
)

type LeaveFilter struct {
	EmployeeID *uint
	Status     string
	Page       int
	Limit      int
}

type LeaveRepository interface {
	Create(ctx context.Context, leave *model.LeaveRequest) error
	Save(ctx context.Context, leave *model.LeaveRequest) error
	FindByID(ctx context.Context, id uint) (*model.LeaveRequest, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.LeaveRequest, error)
	List(ctx context.Context, filter LeaveFilter) ([]model.LeaveRequest, int64, error)
	CountByStatus(ctx context.Context, status model.LeaveStatus, employeeID *uint) (int64, error)
}

type leaveRepository struct {
	db *gorm.DB
}

func NewLeaveRepository(db *gorm.DB) LeaveRepository {
	return &leaveRepository{db: db}
}

func (r *leaveRepository) Create(ctx context.Context, leave *model.LeaveRequest) error {
	return GetDB(ctx, r.db).Omit("Employee").Create(leave).Error
}

func (r *leaveRepository) Save(ctx context.Context, leave *model.LeaveRequest) error {
	return GetDB(ctx, r.db).Omit("Employee").Save(leave).Error
}

func (r *leaveRepository) FindByID(ctx context.Context, id uint) (*model.LeaveRequest, error) {
	var leave model.LeaveRequest
	if err := GetDB(ctx, r.db).Preload("Employee").First(&leave, id).Error; err != nil {
		return nil, err
	}
	return &leave, nil
}

func (r *leaveRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.LeaveRequest, error) {
	var leave model.LeaveRequest
	if err := forUpdate(GetDB(ctx, r.db)).First(&leave, id).Error; err != nil {
		return nil, err
	}
	return &leave, nil
}

func (r *leaveRepository) List(ctx context.Context, filter LeaveFilter) ([]model.LeaveRequest, int64, error) {
	var leaves []model.LeaveRequest
	var total int64

	query := GetDB(ctx, r.db).Model(&model.LeaveRequest{})
	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Employee").Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(filter.Limit).Find(&leaves).Error; err != nil {
		return nil, 0, err
	}

	return leaves, total, nil
}

func (r *leaveRepository) CountByStatus(ctx context.Context, status model.LeaveStatus, employeeID *uint) (int64, error) {
	var count int64
	query := GetDB(ctx, r.db).Model(&model.LeaveRequest{}).Where("status = ?", status)
	if employeeID != nil {
		query = query.Where("employee_id = ?", *employeeID)
	}
	err := query.Count(&count).Error
	return count, err
}
