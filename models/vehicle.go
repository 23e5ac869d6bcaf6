package models

import "time"

type VehicleStatus string

const (
	StatusActive      VehicleStatus = "active"
	StatusOffline     VehicleStatus = "offline"
	StatusMaintenance VehicleStatus = "maintenance"
)

// Valid reports whether s is one of the known vehicle statuses.
func (s VehicleStatus) Valid() bool {
	switch s {
	case StatusActive, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

type Vehicle struct {
	ID           string        `json:"id" yaml:"id"`
	Registration string        `json:"registration" yaml:"registration"`
	RouteID      string        `json:"route_id" yaml:"route_id"`
	Latitude     float64       `json:"latitude" yaml:"latitude"`
	Longitude    float64       `json:"longitude" yaml:"longitude"`
	LastUpdate   time.Time     `json:"last_update" yaml:"-"`
	Status       VehicleStatus `json:"status" yaml:"status"` // "active", "offline", "maintenance"
}
