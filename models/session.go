package models

import "time"

type Role string

const (
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`

	// Driver sessions only.
	VehicleID           string `json:"vehicle_id,omitempty"`
	VehicleRegistration string `json:"vehicle_registration,omitempty"`
	RouteID             string `json:"route_id,omitempty"`
	RouteName           string `json:"route_name,omitempty"`
}
