package models

import "time"

const EventAttendanceRecorded = "attendance.recorded"

// AttendanceEvent is published after every successful attendance write.
type AttendanceEvent struct {
	Type       string           `json:"type"`
	Action     Action           `json:"action"`
	Record     AttendanceRecord `json:"record"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// CheckinMessage is what kiosks and badge scanners put on the check-in topic.
type CheckinMessage struct {
	EmployeeID string   `json:"employeeId"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Status     string   `json:"status,omitempty"`
	Action     string   `json:"action,omitempty"`
	IPAddress  string   `json:"ipAddress,omitempty"`
	UserAgent  string   `json:"userAgent,omitempty"`
	Photo      string   `json:"photo,omitempty"`
}
