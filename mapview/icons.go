package mapview

import "fleet-tracking-system/models"

type Icon struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Size  int    `json:"size"` // px
}

var (
	busIcons = map[models.VehicleStatus]Icon{
		models.StatusActive:      {Name: "bus-active", Color: "#10b981", Size: 24},
		models.StatusOffline:     {Name: "bus-offline", Color: "#ef4444", Size: 24},
		models.StatusMaintenance: {Name: "bus-maintenance", Color: "#f59e0b", Size: 24},
	}
	unknownBusIcon = Icon{Name: "bus", Color: "#3b82f6", Size: 24}
	stopIcon       = Icon{Name: "stop", Color: "#10b981", Size: 16}
)

// IconFor returns the vehicle marker icon for a status.
func IconFor(status models.VehicleStatus) Icon {
	if icon, ok := busIcons[status]; ok {
		return icon
	}
	return unknownBusIcon
}
