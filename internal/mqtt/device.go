package mqtt

import "github.com/hausgeist/hausgeist/internal/buildinfo"

// DeviceInfo holds the Home Assistant device registry fields shared by
// all discovery payloads, so HA groups the bot's sensors under one
// device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message, published retained on every broker (re-)connect.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
}

// NewDeviceInfo builds the shared device block. The device name is the
// stable identifier.
func NewDeviceInfo(deviceName string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"hausgeist_" + deviceName},
		Name:         deviceName,
		Manufacturer: "Hausgeist",
		Model:        "Hausgeist House Bot",
		SWVersion:    buildinfo.Version,
	}
}
