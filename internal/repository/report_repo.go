package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"erequisition/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// GroupTotal is one row of a GROUP BY aggregation over requisitions.
type GroupTotal struct {
	GroupKey string          `json:"key"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// Period bounds report queries by created_at, inclusive on both ends.
type Period struct {
	From time.Time
	To   time.Time
}

var groupableColumns = map[string]bool{
	"status":           true,
	"branch":           true,
	"requisition_type": true,
	"category":         true,
	"project_name":     true,
}

// ReportRepository holds read-only queries. They run on a read replica when one is registered.
type ReportRepository interface {
	GroupBy(ctx context.Context, column string, period Period, limit int) ([]GroupTotal, error)
	AverageTurnaround(ctx context.Context, period Period) (float64, error)
	InPeriod(ctx context.Context, period Period) ([]model.Requisition, error)
	// OldestOpen returns the longest-standing requisitions in statuses.
	OldestOpen(ctx context.Context, statuses []model.RequisitionStatus, limit int) ([]model.Requisition, error)
	Open(ctx context.Context) ([]model.Requisition, error)
	Count(ctx context.Context, statuses []model.RequisitionStatus, requesterID *uint) (int64, error)
	SumAmount(ctx context.Context, statuses []model.RequisitionStatus) (decimal.Decimal, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// read routes report queries to a replica when one is registered.
func (r *reportRepository) read(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).Clauses(dbresolver.Read)
}

func (r *reportRepository) GroupBy(ctx context.Context, column string, period Period, limit int) ([]GroupTotal, error) {
	if !groupableColumns[column] {
		return nil, fmt.Errorf("cannot group requisitions by %q", column)
	}

	var rows []GroupTotal
	query := r.read(ctx).Model(&model.Requisition{}).
		Select(column+" AS group_key, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("created_at BETWEEN ? AND ?", period.From, period.To).
		Group(column).
		Order("total DESC")
	if column == "project_name" {
		query = query.Where("project_name <> ''")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) AverageTurnaround(ctx context.Context, period Period) (float64, error) {
	var avg sql.NullFloat64
	err := r.read(ctx).Model(&model.Requisition{}).
		Select("AVG(approval_turnaround_hours)").
		Where("created_at BETWEEN ? AND ?", period.From, period.To).
		Where("approval_turnaround_hours IS NOT NULL").
		Row().Scan(&avg)
	if err != nil || !avg.Valid {
		return 0, err
	}
	return avg.Float64, nil
}

func (r *reportRepository) InPeriod(ctx context.Context, period Period) ([]model.Requisition, error) {
	var reqs []model.Requisition
	err := r.read(ctx).Preload("Requester").
		Where("created_at BETWEEN ? AND ?", period.From, period.To).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *reportRepository) OldestOpen(ctx context.Context, statuses []model.RequisitionStatus, limit int) ([]model.Requisition, error) {
	var reqs []model.Requisition
	err := r.read(ctx).Preload("Requester").
		Where("status IN ?", statuses).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (r *reportRepository) Open(ctx context.Context) ([]model.Requisition, error) {
	var reqs []model.Requisition
	err := r.read(ctx).
		Select("id", "status", "amount", "submitted_at", "created_at").
		Where("status IN ?", model.OpenStatuses).
		Find(&reqs).Error
	return reqs, err
}

func (r *reportRepository) Count(ctx context.Context, statuses []model.RequisitionStatus, requesterID *uint) (int64, error) {
	var count int64
	query := r.read(ctx).Model(&model.Requisition{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if requesterID != nil {
		query = query.Where("requester_id = ?", *requesterID)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *reportRepository) SumAmount(ctx context.Context, statuses []model.RequisitionStatus) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.read(ctx).Model(&model.Requisition{}).
		Select("SUM(amount)").
		Where("status IN ?", statuses).
		Row().Scan(&total)
	if err != nil || !total.Valid {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}
