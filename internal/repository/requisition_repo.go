package repository

import (
	"context"
	"time"

	"erequisition/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequisitionFilter narrows List. RequesterID restricts to one user's records when set.
type RequisitionFilter struct {
	RequesterID *uint
	Status      string
	Branch      string
	Category    string
	Type        string
	Search      string
	Page        int
	Limit       int
}

type RequisitionRepository interface {
	// Create inserts the draft and assigns its reference number in the same transaction.
	Create(ctx context.Context, req *model.Requisition) error
	Save(ctx context.Context, req *model.Requisition) error
	FindByID(ctx context.Context, id uint) (*model.Requisition, error)
	// FindByIDForUpdate row-locks the requisition until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Requisition, error)
	List(ctx context.Context, filter RequisitionFilter) ([]model.Requisition, int64, error)
	HasDuplicate(ctx context.Context, req *model.Requisition, since time.Time) (bool, error)
	// FindStale returns requisitions that entered one of statuses before the cutoff.
	FindStale(ctx context.Context, statuses []model.RequisitionStatus, before time.Time) ([]model.Requisition, error)
}

type requisitionRepository struct {
	db        *gorm.DB
	threshold decimal.Decimal
}

// NewRequisitionRepository binds the stage-2 threshold applied on every write.
func NewRequisitionRepository(db *gorm.DB, threshold decimal.Decimal) RequisitionRepository {
	return &requisitionRepository{db: db, threshold: threshold}
}

func (r *requisitionRepository) Create(ctx context.Context, req *model.Requisition) error {
	req.ApplyThreshold(r.threshold)
	req.ReferenceNo = nil

	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(req).Error; err != nil {
		return err
	}

	ref := model.BuildReferenceNo(req.CreatedAt, req.ID)
	res := db.Model(&model.Requisition{}).
		Where("id = ? AND reference_no IS NULL", req.ID).
		UpdateColumn("reference_no", ref)
	if res.Error != nil {
		return res.Error
	}
	req.ReferenceNo = &ref
	return nil
}

func (r *requisitionRepository) Save(ctx context.Context, req *model.Requisition) error {
	req.ApplyThreshold(r.threshold)
	return GetDB(ctx, r.db).Omit(clause.Associations, "reference_no").Save(req).Error
}

func (r *requisitionRepository) FindByID(ctx context.Context, id uint) (*model.Requisition, error) {
	var req model.Requisition
	err := GetDB(ctx, r.db).
		Preload("Requester").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requisitionRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Requisition, error) {
	var req model.Requisition
	if err := forUpdate(GetDB(ctx, r.db)).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requisitionRepository) List(ctx context.Context, filter RequisitionFilter) ([]model.Requisition, int64, error) {
	var reqs []model.Requisition
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Requisition{})
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Branch != "" {
		query = query.Where("branch = ?", filter.Branch)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Type != "" {
		query = query.Where("requisition_type = ?", filter.Type)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("reference_no LIKE ? OR purpose LIKE ? OR project_name LIKE ?", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Requester").
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&reqs).Error; err != nil {
		return nil, 0, err
	}

	return reqs, total, nil
}

func (r *requisitionRepository) HasDuplicate(ctx context.Context, req *model.Requisition, since time.Time) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Requisition{}).
		Where("id <> ?", req.ID).
		Where("requester_id = ?", req.RequesterID).
		Where("amount = ?", req.Amount).
		Where("purpose = ?", req.Purpose).
		Where("created_at >= ?", since).
		Where("status NOT IN ?", []model.RequisitionStatus{model.StatusDenied, model.StatusClosed}).
		Count(&count).Error
	return count > 0, err
}

func (r *requisitionRepository) FindStale(ctx context.Context, statuses []model.RequisitionStatus, before time.Time) ([]model.Requisition, error) {
	var reqs []model.Requisition
	err := GetDB(ctx, r.db).
		Where("status IN ?", statuses).
		Where("COALESCE(stage1_approved_at, submitted_at) < ?", before).
		Order("submitted_at ASC").
		Find(&reqs).Error
	return reqs, err
}
