package models

type Stop struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

type Route struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Color     string `json:"color" yaml:"color"`
	Frequency string `json:"frequency,omitempty" yaml:"frequency"`
	Stops     []Stop `json:"stops" yaml:"stops"`
}
