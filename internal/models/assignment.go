package models

import "time"

// AssignmentStatus represents the lifecycle of an assignment.
type AssignmentStatus string

// Possible assignment statuses.
const (
	AssignmentStatusAssigned   AssignmentStatus = "ASSIGNED"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETED"
	AssignmentStatusCancelled  AssignmentStatus = "CANCELLED"
)

// Active reports whether the assignment still binds an officer to a report.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentStatusAssigned || s == AssignmentStatusInProgress
}

// Terminal reports whether the assignment reached a final state.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusCancelled
}

// assignmentTransitions captures the legal edges of the state machine.
// Initial state is ASSIGNED; COMPLETED and CANCELLED are terminal.
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentStatusAssigned:   {AssignmentStatusInProgress, AssignmentStatusCancelled},
	AssignmentStatusInProgress: {AssignmentStatusCompleted, AssignmentStatusCancelled},
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s AssignmentStatus) CanTransition(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReportStatusFor maps an assignment transition to the report status it
// mirrors onto the underlying report.
func (s AssignmentStatus) ReportStatusFor() ReportStatus {
	switch s {
	case AssignmentStatusInProgress:
		return ReportStatusInProgress
	case AssignmentStatusCompleted:
		return ReportStatusResolved
	case AssignmentStatusCancelled:
		return ReportStatusSubmitted
	default:
		return ReportStatusAssigned
	}
}

// Assignment binds one report to one responsible officer. At most one
// assignment per report may be ASSIGNED or IN_PROGRESS at any time;
// completed and cancelled rows remain as history.
type Assignment struct {
	ID          string           `db:"id" json:"id"`
	ReportID    string           `db:"report_id" json:"report_id"`
	OfficerID   string           `db:"officer_id" json:"officer_id"`
	AssignedBy  string           `db:"assigned_by" json:"assigned_by"`
	Status      AssignmentStatus `db:"status" json:"status"`
	Notes       string           `db:"notes" json:"notes,omitempty"`
	AssignedAt  time.Time        `db:"assigned_at" json:"assigned_at"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// AssignmentDetail enriches Assignment with officer and report context.
type AssignmentDetail struct {
	Assignment
	OfficerName    string         `db:"officer_name" json:"officer_name"`
	OfficerBadge   *string        `db:"officer_badge" json:"officer_badge,omitempty"`
	ReportTitle    string         `db:"report_title" json:"report_title"`
	ReportStatus   ReportStatus   `db:"report_status" json:"report_status"`
	ReportPriority ReportPriority `db:"report_priority" json:"report_priority"`
}

// AssignmentFilter provides filters for listing assignments.
type AssignmentFilter struct {
	OfficerID string
	Status    AssignmentStatus
	Priority  ReportPriority
	Page      int
	PageSize  int
}
