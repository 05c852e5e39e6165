package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyThreshold(t *testing.T) {
	threshold := decimal.NewFromInt(10000)

	cases := []struct {
		amount string
		want   bool
	}{
		{"5000", false},
		{"9999.99", false},
		{"10000", true},
		{"10000.01", true},
		{"250000", true},
	}
	for _, tc := range cases {
		r := &Requisition{Amount: decimal.RequireFromString(tc.amount), RequiresAdditionalApproval: !tc.want}
		r.ApplyThreshold(threshold)
		assert.Equal(t, tc.want, r.RequiresAdditionalApproval, "amount %s", tc.amount)
	}
}

func TestBuildReferenceNo(t *testing.T) {
	created := time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "REQ-20260304-000042", BuildReferenceNo(created, 42))
	assert.Equal(t, "REQ-20260304-1234567", BuildReferenceNo(created, 1234567))
}

func TestRequisition_Reference(t *testing.T) {
	r := &Requisition{}
	assert.Equal(t, "", r.Reference())

	ref := "REQ-20260101-000001"
	r.ReferenceNo = &ref
	assert.Equal(t, ref, r.Reference())
}

func TestHasVariance(t *testing.T) {
	r := &Requisition{Amount: decimal.RequireFromString("100.00")}
	assert.False(t, r.HasVariance(decimal.RequireFromString("100")))
	assert.True(t, r.HasVariance(decimal.RequireFromString("99.50")))
}

func TestCountBusinessDays(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 5, CountBusinessDays(monday, monday.AddDate(0, 0, 4)))
	assert.Equal(t, 0, CountBusinessDays(monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6)))
	assert.Equal(t, 1, CountBusinessDays(monday, monday))
	assert.Equal(t, 10, CountBusinessDays(monday, monday.AddDate(0, 0, 13)))
	assert.Equal(t, 0, CountBusinessDays(monday.AddDate(0, 0, 1), monday))
}

func TestBranchCurrency(t *testing.T) {
	assert.Equal(t, "ZAR", BranchSouthAfrica.Currency())
	assert.Equal(t, "ZMW", BranchZambia.Currency())
	assert.Equal(t, "SZL", BranchEswatini.Currency())
	assert.Equal(t, "USD", BranchZimbabwe.Currency())
	assert.False(t, Branch("kenya").Valid())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, Display{"Stage 1 Approved", "primary"}, StatusStage1Approved.Display())
	assert.Equal(t, "Paid / Disbursed", StatusPaid.Display().Label)
	assert.Equal(t, Display{"unknown", "gray"}, RequisitionStatus("unknown").Display())
	assert.Equal(t, "Family Responsibility", LeaveFamilyResponsibility.Display().Label)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDenied.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.False(t, StatusFulfilled.Terminal())
}
