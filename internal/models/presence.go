package models

import "time"

// DutyStatus is an officer's current availability state.
type DutyStatus string

// Possible duty statuses.
const (
	DutyStatusOnDuty  DutyStatus = "ON_DUTY"
	DutyStatusOffDuty DutyStatus = "OFF_DUTY"
	DutyStatusBusy    DutyStatus = "BUSY"
)

// Valid reports whether the value is a known duty status.
func (s DutyStatus) Valid() bool {
	switch s {
	case DutyStatusOnDuty, DutyStatusOffDuty, DutyStatusBusy:
		return true
	}
	return false
}

// OfficerPresence tracks an officer's duty status and last-known
// location. Location updates are applied last-write-wins by the
// observation timestamp so out-of-order pings never regress state.
type OfficerPresence struct {
	OfficerID         string     `db:"officer_id" json:"officer_id"`
	DutyStatus        DutyStatus `db:"duty_status" json:"duty_status"`
	Lat               *float64   `db:"lat" json:"lat,omitempty"`
	Lng               *float64   `db:"lng" json:"lng,omitempty"`
	LocationUpdatedAt *time.Time `db:"location_updated_at" json:"location_updated_at,omitempty"`
	BackupRequested   bool       `db:"backup_requested" json:"backup_requested"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailableForBackup reports whether the officer can be routed a backup
// request right now.
func (p *OfficerPresence) AvailableForBackup() bool {
	return p != nil && p.DutyStatus == DutyStatusOnDuty && !p.BackupRequested
}

// HasLocation reports whether a last-known position exists.
func (p *OfficerPresence) HasLocation() bool {
	return p != nil && p.Lat != nil && p.Lng != nil
}
