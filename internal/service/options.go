package service

import (
	"time"

	"erequisition/internal/config"
	"erequisition/internal/model"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// WorkflowConfig holds the deployment-specific rules of the requisition workflow.
type WorkflowConfig struct {
	Stage2Threshold              decimal.Decimal
	DuplicateLookbackDays        int
	AttachmentRequiredCategories []model.RequisitionCategory
	AttachmentMaxBytes           int64
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Stage2Threshold:              decimal.NewFromInt(10000),
		DuplicateLookbackDays:        30,
		AttachmentRequiredCategories: []model.RequisitionCategory{model.CategoryProcurement, model.CategoryEmergency},
		AttachmentMaxBytes:           10 << 20,
	}
}

// NewWorkflowConfig converts the loaded configuration.
func NewWorkflowConfig(cfg config.WorkflowConfig) WorkflowConfig {
	return WorkflowConfig{
		Stage2Threshold:       decimal.NewFromFloat(cfg.Stage2Threshold),
		DuplicateLookbackDays: cfg.DuplicateLookbackDays,
		AttachmentRequiredCategories: lo.Map(cfg.AttachmentRequiredCategories, func(c string, _ int) model.RequisitionCategory {
			return model.RequisitionCategory(c)
		}),
		AttachmentMaxBytes: int64(cfg.AttachmentMaxMB) << 20,
	}
}

type serviceOptions struct {
	now func() time.Time
}

// Option customises a workflow service.
type Option func(*serviceOptions)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseDate reads a YYYY-MM-DD date in loc.
func parseDate(field, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, validationError("%s is required", field)
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, validationError("%s must be a date in YYYY-MM-DD format", field)
	}
	return t, nil
}
