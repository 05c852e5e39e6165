package model

// Display holds the UI metadata of an enum value.
type Display struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var statusDisplay = map[RequisitionStatus]Display{
	StatusDraft:                 {"Draft", "gray"},
	StatusSubmitted:             {"Submitted", "info"},
	StatusStage1Approved:        {"Stage 1 Approved", "primary"},
	StatusModificationRequested: {"Modification Requested", "warning"},
	StatusApproved:              {"Approved", "success"},
	StatusDenied:                {"Denied", "danger"},
	StatusProcessing:            {"Processing", "info"},
	StatusPaid:                  {"Paid / Disbursed", "success"},
	StatusOutstanding:           {"Outstanding", "warning"},
	StatusFulfilled:             {"Fulfilled", "primary"},
	StatusClosed:                {"Closed", "gray"},
}

var branchDisplay = map[Branch]Display{
	BranchSouthAfrica: {"South Africa", "primary"},
	BranchZambia:      {"Zambia", "success"},
	BranchEswatini:    {"Eswatini", "warning"},
	BranchZimbabwe:    {"Zimbabwe", "info"},
}

var categoryDisplay = map[RequisitionCategory]Display{
	CategoryOperations:  {"Operations", "gray"},
	CategoryProject:     {"Project", "primary"},
	CategoryEmergency:   {"Emergency", "danger"},
	CategoryClient:      {"Client", "info"},
	CategoryProcurement: {"Procurement", "warning"},
	CategoryTravel:      {"Travel", "success"},
	CategoryOther:       {"Other", "gray"},
}

var typeDisplay = map[RequisitionType]Display{
	RequisitionTypeCash:     {"Cash", "success"},
	RequisitionTypePurchase: {"Purchase", "info"},
}

var forDisplay = map[RequisitionFor]Display{
	RequisitionForClient: {"Client", "info"},
	RequisitionForOrder:  {"Order", "primary"},
	RequisitionForSelf:   {"Self", "gray"},
}

var leaveStatusDisplay = map[LeaveStatus]Display{
	LeaveStatusSubmitted: {"Submitted", "warning"},
	LeaveStatusApproved:  {"Approved", "success"},
	LeaveStatusDenied:    {"Denied", "danger"},
}

var leaveReasonDisplay = map[LeaveReason]Display{
	LeaveAnnual:               {"Annual Leave", "primary"},
	LeaveSick:                 {"Sick Leave", "danger"},
	LeaveFamilyResponsibility: {"Family Responsibility", "warning"},
	LeaveStudy:                {"Study Leave", "info"},
	LeaveUnpaid:               {"Unpaid Leave", "gray"},
	LeaveOther:                {"Other", "gray"},
}

func lookup[K comparable](table map[K]Display, key K, fallback string) Display {
	if d, ok := table[key]; ok {
		return d
	}
	return Display{Label: fallback, Color: "gray"}
}

func (s RequisitionStatus) Display() Display   { return lookup(statusDisplay, s, string(s)) }
func (b Branch) Display() Display              { return lookup(branchDisplay, b, string(b)) }
func (c RequisitionCategory) Display() Display { return lookup(categoryDisplay, c, string(c)) }
func (t RequisitionType) Display() Display     { return lookup(typeDisplay, t, string(t)) }
func (f RequisitionFor) Display() Display      { return lookup(forDisplay, f, string(f)) }
func (s LeaveStatus) Display() Display         { return lookup(leaveStatusDisplay, s, string(s)) }
func (r LeaveReason) Display() Display         { return lookup(leaveReasonDisplay, r, string(r)) }
