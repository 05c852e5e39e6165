package model

import "time"

// LeaveRequest is an employee's request for time off
type LeaveRequest struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	EmployeeID      uint        `gorm:"not null;index" json:"employee_id"`
	Employee        *User       `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	Reason          LeaveReason `gorm:"type:varchar(30);not null" json:"reason"`
	StartDate       time.Time   `gorm:"type:date;not null" json:"start_date"`
	EndDate         time.Time   `gorm:"type:date;not null" json:"end_date"`
	Days            int         `gorm:"not null" json:"days"`
	Notes           string      `gorm:"type:text" json:"notes"`
	Status          LeaveStatus `gorm:"type:varchar(20);not null;default:submitted;index" json:"status"`
	DecidedAt       *time.Time  `json:"decided_at"`
	DecidedByID     *uint       `json:"decided_by_id"`
	DecisionComment string      `gorm:"type:text" json:"decision_comment"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// CountBusinessDays counts Monday to Friday between start and end, both inclusive.
// Public holidays are not excluded.
func CountBusinessDays(start, end time.Time) int {
	start = truncateDay(start)
	end = truncateDay(end)

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
