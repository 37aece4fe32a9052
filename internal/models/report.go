package models

import "time"

// ReportStatus represents the lifecycle of a crime report.
type ReportStatus string

// Possible report statuses.
const (
	ReportStatusSubmitted  ReportStatus = "SUBMITTED"
	ReportStatusAssigned   ReportStatus = "ASSIGNED"
	ReportStatusInProgress ReportStatus = "IN_PROGRESS"
	ReportStatusResolved   ReportStatus = "RESOLVED"
	ReportStatusClosed     ReportStatus = "CLOSED"
)

// ReportPriority ranks how urgently a report needs a handler.
type ReportPriority string

// Possible report priorities.
const (
	PriorityLow      ReportPriority = "LOW"
	PriorityMedium   ReportPriority = "MEDIUM"
	PriorityHigh     ReportPriority = "HIGH"
	PriorityCritical ReportPriority = "CRITICAL"
)

// Report is a civilian-filed crime report. Its status is only ever
// mutated through the assignment workflow.
type Report struct {
	ID          string         `db:"id" json:"id"`
	ReporterID  string         `db:"reporter_id" json:"reporter_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Status      ReportStatus   `db:"status" json:"status"`
	Priority    ReportPriority `db:"priority" json:"priority"`
	Lat         float64        `db:"lat" json:"lat"`
	Lng         float64        `db:"lng" json:"lng"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the report can no longer accept assignments.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusResolved || s == ReportStatusClosed
}
