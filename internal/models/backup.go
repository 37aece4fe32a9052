package models

import (
	"time"

	"github.com/lib/pq"
)

// BackupStatus represents the lifecycle of a backup request.
type BackupStatus string

// Possible backup request statuses.
const (
	BackupStatusPending      BackupStatus = "PENDING"
	BackupStatusAcknowledged BackupStatus = "ACKNOWLEDGED"
	BackupStatusResolved     BackupStatus = "RESOLVED"
	BackupStatusCancelled    BackupStatus = "CANCELLED"
)

// Open reports whether the request still awaits a response.
func (s BackupStatus) Open() bool {
	return s == BackupStatusPending || s == BackupStatusAcknowledged
}

// BackupRequest is an officer's call for nearby assistance. At most one
// PENDING request per officer may exist at any time.
type BackupRequest struct {
	ID           string       `db:"id" json:"id"`
	OfficerID    string       `db:"officer_id" json:"officer_id"`
	AssignmentID *string      `db:"assignment_id" json:"assignment_id,omitempty"`
	Reason       string       `db:"reason" json:"reason"`
	Lat          float64      `db:"lat" json:"lat"`
	Lng          float64      `db:"lng" json:"lng"`
	Status       BackupStatus `db:"status" json:"status"`
	// AlertedOfficers records who was flagged for this request so that
	// closing it releases exactly those officers.
	AlertedOfficers pq.StringArray `db:"alerted_officers" json:"alerted_officers,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	RespondedAt     *time.Time     `db:"responded_at" json:"responded_at,omitempty"`
}

// BackupDispatch is the result of routing a backup request: the created
// request plus how many nearby officers were notified.
type BackupDispatch struct {
	Request       BackupRequest `json:"request"`
	EligibleCount int           `json:"eligible_count"`
}

// EligibleOfficer pairs an on-duty officer with their distance from a
// backup request location.
type EligibleOfficer struct {
	OfficerID  string  `json:"officer_id"`
	DistanceKM float64 `json:"distance_km"`
}
