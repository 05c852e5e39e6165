package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"erequisition/internal/model"
	"erequisition/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ReportPeriodInput is an inclusive YYYY-MM-DD date range. Empty values fall
// back to the last twelve months.
type ReportPeriodInput struct {
	From string `form:"from"`
	To   string `form:"to"`
}

type OverviewResponse struct {
	PendingApprovals    *int64           `json:"pending_approvals,omitempty"`
	ProcessingPipeline  *int64           `json:"processing_pipeline,omitempty"`
	PipelineValue       *decimal.Decimal `json:"pipeline_value,omitempty"`
	AvgTurnaroundHours  *float64         `json:"avg_turnaround_hours,omitempty"`
	MyRequisitions      *int64           `json:"my_requisitions,omitempty"`
	MyOpenRequisitions  *int64           `json:"my_open_requisitions,omitempty"`
	PendingLeaves       int64            `json:"pending_leaves"`
	UnreadNotifications int64            `json:"unread_notifications"`
}

type ReportSummary struct {
	OverallCount          int64            `json:"overall_count"`
	OverallTotal          decimal.Decimal  `json:"overall_total"`
	PendingCount          int64            `json:"pending_count"`
	ApprovedPipelineCount int64            `json:"approved_pipeline_count"`
	FulfilledCount        int64            `json:"fulfilled_count"`
	ClosedCount           int64            `json:"closed_count"`
	DeniedCount           int64            `json:"denied_count"`
	AvgApprovalTurnaround float64          `json:"avg_approval_turnaround"`
	StatusBreakdown       map[string]int64 `json:"status_breakdown"`
}

type BreakdownRow struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type OutstandingRow struct {
	ID          uint            `json:"id"`
	ReferenceNo string          `json:"reference_no"`
	Requester   string          `json:"requester"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	DaysOpen    int             `json:"days_open"`
	NeededBy    string          `json:"needed_by"`
}

type AgingBucket struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

type MonthlyPoint struct {
	Month string          `json:"month"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type ReportResponse struct {
	From        string           `json:"from"`
	To          string           `json:"to"`
	Summary     ReportSummary    `json:"summary"`
	ByBranch    []BreakdownRow   `json:"by_branch"`
	ByType      []BreakdownRow   `json:"by_type"`
	ByCategory  []BreakdownRow   `json:"by_category"`
	ByProject   []BreakdownRow   `json:"by_project"`
	Outstanding []OutstandingRow `json:"outstanding"`
	Aging       []AgingBucket    `json:"aging"`
	Monthly     []MonthlyPoint   `json:"monthly"`
}

type ReportService interface {
	Overview(ctx context.Context, actor Actor) (*OverviewResponse, error)
	Report(ctx context.Context, actor Actor, in ReportPeriodInput) (*ReportResponse, error)
	ExportXLSX(ctx context.Context, actor Actor, in ReportPeriodInput, w io.Writer) error
}

const (
	topProjectsLimit = 15
	outstandingLimit = 50
)

// outstandingStatuses still need action from finance or an approver.
var outstandingStatuses = []model.RequisitionStatus{
	model.StatusSubmitted, model.StatusStage1Approved, model.StatusModificationRequested,
	model.StatusApproved, model.StatusProcessing, model.StatusOutstanding,
}

var approvedPipelineStatuses = []model.RequisitionStatus{
	model.StatusApproved, model.StatusProcessing, model.StatusOutstanding,
	model.StatusPaid, model.StatusFulfilled, model.StatusClosed,
}

type reportService struct {
	repo          repository.ReportRepository
	leaves        repository.LeaveRepository
	notifications repository.NotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewReportService(
	repo repository.ReportRepository,
	leaves repository.LeaveRepository,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
	opts ...Option,
) ReportService {
	o := buildOptions(opts)
	return &reportService{
		repo:          repo,
		leaves:        leaves,
		notifications: notifications,
		logger:        logger,
		now:           o.now,
	}
}

func (s *reportService) Overview(ctx context.Context, actor Actor) (*OverviewResponse, error) {
	unread, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	resp := &OverviewResponse{UnreadNotifications: unread}

	if !actor.IsAdmin() {
		total, err := s.repo.Count(ctx, nil, &actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count requisitions: %w", err)
		}
		open, err := s.repo.Count(ctx, model.OpenStatuses, &actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count requisitions: %w", err)
		}
		leaves, err := s.leaves.CountByStatus(ctx, model.LeaveStatusSubmitted, &actor.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count leave requests: %w", err)
		}
		resp.MyRequisitions = &total
		resp.MyOpenRequisitions = &open
		resp.PendingLeaves = leaves
		return resp, nil
	}

	pending, err := s.repo.Count(ctx, model.PendingApprovalStatuses, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	pipeline, err := s.repo.Count(ctx, model.FinancePipelineStatuses, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count pipeline: %w", err)
	}
	value, err := s.repo.SumAmount(ctx, model.FinancePipelineStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pipeline: %w", err)
	}
	avg, err := s.repo.AverageTurnaround(ctx, repository.Period{To: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to compute turnaround: %w", err)
	}
	leaves, err := s.leaves.CountByStatus(ctx, model.LeaveStatusSubmitted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count leave requests: %w", err)
	}

	avg = roundHours(avg)
	resp.PendingApprovals = &pending
	resp.ProcessingPipeline = &pipeline
	resp.PipelineValue = &value
	resp.AvgTurnaroundHours = &avg
	resp.PendingLeaves = leaves
	return resp, nil
}

func (s *reportService) Report(ctx context.Context, actor Actor, in ReportPeriodInput) (*ReportResponse, error) {
	if err := actor.requireAdmin("view reports"); err != nil {
		return nil, err
	}
	period, err := s.period(in)
	if err != nil {
		return nil, err
	}

	reqs, err := s.repo.InPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load requisitions: %w", err)
	}
	avg, err := s.repo.AverageTurnaround(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to compute turnaround: %w", err)
	}

	resp := &ReportResponse{
		From:    period.From.Format("2006-01-02"),
		To:      period.To.Format("2006-01-02"),
		Summary: summarize(reqs, roundHours(avg)),
		Monthly: monthlySeries(reqs, period),
	}

	groups := []struct {
		column string
		limit  int
		label  func(string) string
		dst    *[]BreakdownRow
	}{
		{"branch", 0, func(k string) string { return model.Branch(k).Display().Label }, &resp.ByBranch},
		{"requisition_type", 0, func(k string) string { return model.RequisitionType(k).Display().Label }, &resp.ByType},
		{"category", 0, func(k string) string { return model.RequisitionCategory(k).Display().Label }, &resp.ByCategory},
		{"project_name", topProjectsLimit, func(k string) string { return k }, &resp.ByProject},
	}
	for _, g := range groups {
		rows, err := s.repo.GroupBy(ctx, g.column, period, g.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to group by %s: %w", g.column, err)
		}
		label := g.label
		*g.dst = lo.Map(rows, func(r repository.GroupTotal, _ int) BreakdownRow {
			return BreakdownRow{Key: r.GroupKey, Label: label(r.GroupKey), Count: r.Count, Total: r.Total}
		})
	}

	now := s.now()
	oldest, err := s.repo.OldestOpen(ctx, outstandingStatuses, outstandingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load outstanding requisitions: %w", err)
	}
	resp.Outstanding = lo.Map(oldest, func(r model.Requisition, _ int) OutstandingRow {
		row := OutstandingRow{
			ID:          r.ID,
			ReferenceNo: lo.CoalesceOrEmpty(r.Reference(), fmt.Sprintf("#%d", r.ID)),
			Requester:   "-",
			Amount:      r.Amount,
			Currency:    r.Currency,
			Status:      r.Status.Display().Label,
			DaysOpen:    daysBetween(r.CreatedAt, now),
			NeededBy:    r.NeededBy.Format("02 Jan 2006"),
		}
		if r.Requester != nil {
			row.Requester = r.Requester.Name
		}
		return row
	})

	open, err := s.repo.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open requisitions: %w", err)
	}
	resp.Aging = agingBuckets(open, now)

	return resp, nil
}

var exportHeaders = []string{
	"ID", "Reference No", "Branch", "Requisition Type", "Category", "Requisition For",
	"Project Name", "Amount", "Actual Amount", "Currency", "Status", "Requester",
	"Submitted At", "Approved At", "Closed At", "Created At",
}

func (s *reportService) ExportXLSX(ctx context.Context, actor Actor, in ReportPeriodInput, w io.Writer) error {
	if err := actor.requireAdmin("export reports"); err != nil {
		return err
	}
	period, err := s.period(in)
	if err != nil {
		return err
	}
	reqs, err := s.repo.InPeriod(ctx, period)
	if err != nil {
		return fmt.Errorf("failed to load requisitions: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	const sheet = "Requisitions"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range reqs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(r)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheet, "B", "B", 22)
	_ = f.SetColWidth(sheet, "G", "G", 30)
	_ = f.SetColWidth(sheet, "M", "P", 20)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Requisition export generated",
		zap.Uint("actor_id", actor.ID),
		zap.Int("rows", len(reqs)))
	return nil
}

func exportRow(r model.Requisition) []interface{} {
	reqFor := ""
	if r.RequisitionFor != nil {
		reqFor = r.RequisitionFor.Display().Label
	}
	actual := ""
	if r.ActualAmount.Valid {
		actual = r.ActualAmount.Decimal.StringFixed(2)
	}
	requester := ""
	if r.Requester != nil {
		requester = r.Requester.Name
	}
	return []interface{}{
		r.ID,
		r.Reference(),
		r.Branch.Display().Label,
		r.RequisitionType.Display().Label,
		r.Category.Display().Label,
		reqFor,
		r.ProjectName,
		r.Amount.StringFixed(2),
		actual,
		r.Currency,
		r.Status.Display().Label,
		requester,
		formatTimestamp(r.SubmittedAt),
		formatTimestamp(r.DecidedAt),
		formatTimestamp(r.ClosedAt),
		r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (s *reportService) period(in ReportPeriodInput) (repository.Period, error) {
	now := s.now()
	loc := now.Location()

	to := startOfDay(now)
	if in.To != "" {
		t, err := parseDate("to", in.To, loc)
		if err != nil {
			return repository.Period{}, err
		}
		to = t
	}
	from := to.AddDate(-1, 0, 0)
	if in.From != "" {
		f, err := parseDate("from", in.From, loc)
		if err != nil {
			return repository.Period{}, err
		}
		from = f
	}
	if from.After(to) {
		return repository.Period{}, validationError("from must be on or before to")
	}
	return repository.Period{From: from, To: to.Add(24*time.Hour - time.Nanosecond)}, nil
}

func summarize(reqs []model.Requisition, avgTurnaround float64) ReportSummary {
	countIn := func(statuses ...model.RequisitionStatus) int64 {
		return int64(lo.CountBy(reqs, func(r model.Requisition) bool {
			return lo.Contains(statuses, r.Status)
		}))
	}

	breakdown := lo.MapValues(
		lo.GroupBy(reqs, func(r model.Requisition) string { return string(r.Status) }),
		func(items []model.Requisition, _ string) int64 { return int64(len(items)) },
	)

	return ReportSummary{
		OverallCount:          int64(len(reqs)),
		OverallTotal:          sumAmounts(reqs),
		PendingCount:          countIn(model.PendingApprovalStatuses...),
		ApprovedPipelineCount: countIn(approvedPipelineStatuses...),
		FulfilledCount:        countIn(model.StatusFulfilled, model.StatusClosed),
		ClosedCount:           countIn(model.StatusClosed),
		DeniedCount:           countIn(model.StatusDenied),
		AvgApprovalTurnaround: avgTurnaround,
		StatusBreakdown:       breakdown,
	}
}

// monthlySeries returns one point per calendar month of the period, including
// months without requisitions.
func monthlySeries(reqs []model.Requisition, period repository.Period) []MonthlyPoint {
	byMonth := lo.GroupBy(reqs, func(r model.Requisition) string {
		return r.CreatedAt.In(period.From.Location()).Format("2006-01")
	})

	var series []MonthlyPoint
	y, m, _ := period.From.Date()
	month := time.Date(y, m, 1, 0, 0, 0, 0, period.From.Location())
	for !month.After(period.To) {
		key := month.Format("2006-01")
		items := byMonth[key]
		series = append(series, MonthlyPoint{Month: key, Count: len(items), Total: sumAmounts(items)})
		month = month.AddDate(0, 1, 0)
	}
	return series
}

var agingLabels = []string{"0-7 days", "8-14 days", "15-30 days", "31-60 days", "60+ days"}

func agingBuckets(open []model.Requisition, now time.Time) []AgingBucket {
	counts := make([]int, len(agingLabels))
	for _, r := range open {
		switch age := daysBetween(r.CreatedAt, now); {
		case age <= 7:
			counts[0]++
		case age <= 14:
			counts[1]++
		case age <= 30:
			counts[2]++
		case age <= 60:
			counts[3]++
		default:
			counts[4]++
		}
	}
	return lo.Map(agingLabels, func(label string, i int) AgingBucket {
		return AgingBucket{Bucket: label, Count: counts[i]}
	})
}

func sumAmounts(reqs []model.Requisition) decimal.Decimal {
	return lo.Reduce(reqs, func(acc decimal.Decimal, r model.Requisition, _ int) decimal.Decimal {
		return acc.Add(r.Amount)
	}, decimal.Zero)
}

func daysBetween(from, to time.Time) int {
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func roundHours(h float64) float64 {
	return decimal.NewFromFloat(h).Round(2).InexactFloat64()
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
