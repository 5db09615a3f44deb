package models

import (
	"time"

	"github.com/google/uuid"
)

// Site is the place an employee is expected to check in from.
type Site struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// Employee is resolved from the external id carried by check-in requests.
type Employee struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"employeeId"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Site       *Site     `json:"site,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
