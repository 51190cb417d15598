package mqtt

import "fmt"

// Topic prefixes for the Aqua Core MQTT hierarchy.
//
// All topics live under the aquacore/ prefix:
//
//	aquacore/system/...                     service-level status
//	aquacore/controller/{id}/...            controller status and manual commands
//	aquacore/controller/{id}/station/{n}/.. station actuation and feedback
const (
	// TopicPrefix is the base for all Aqua Core topics.
	TopicPrefix = "aquacore"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "aquacore/system"
)

// Topics provides builders for Aqua Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	setTopic := topics.StationSet("garden", 3)
//	// Returns: "aquacore/controller/garden/station/3/set"
type Topics struct{}

// ─── Station Topics ───

// StationSet returns the command topic for switching a station valve.
// The payload is a JSON command envelope (see the actuation package).
//
// Example: aquacore/controller/garden/station/3/set
func (Topics) StationSet(controllerID string, stationID int) string {
	return fmt.Sprintf("%s/controller/%s/station/%d/set", TopicPrefix, controllerID, stationID)
}

// StationState returns the feedback topic on which the valve hardware
// (or its gateway) reports the station's actual state.
//
// Example: aquacore/controller/garden/station/3/state
func (Topics) StationState(controllerID string, stationID int) string {
	return fmt.Sprintf("%s/controller/%s/station/%d/state", TopicPrefix, controllerID, stationID)
}

// AllStationStates returns a pattern matching every station feedback topic
// for one controller.
//
// Pattern: aquacore/controller/garden/station/+/state
func (Topics) AllStationStates(controllerID string) string {
	return fmt.Sprintf("%s/controller/%s/station/+/state", TopicPrefix, controllerID)
}

// ─── Controller Topics ───

// ControllerStatus returns the topic for the controller's published status
// snapshot (retained).
//
// Example: aquacore/controller/garden/status
func (Topics) ControllerStatus(controllerID string) string {
	return fmt.Sprintf("%s/controller/%s/status", TopicPrefix, controllerID)
}

// ControllerPower returns the command topic for the controller's master
// power relay.
//
// Example: aquacore/controller/garden/power/set
func (Topics) ControllerPower(controllerID string) string {
	return fmt.Sprintf("%s/controller/%s/power/set", TopicPrefix, controllerID)
}

// ControllerCommand returns the topic on which external clients submit
// manual commands (start/stop/stop_all/power) for a controller.
//
// Example: aquacore/controller/garden/command
func (Topics) ControllerCommand(controllerID string) string {
	return fmt.Sprintf("%s/controller/%s/command", TopicPrefix, controllerID)
}

// ─── System Topics ───

// SystemStatus returns the system status topic. The LWT is registered
// here so subscribers can distinguish crash from graceful shutdown.
//
// Example: aquacore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemWeather returns the topic for the latest normalized weather
// snapshot (retained).
//
// Example: aquacore/system/weather
func (Topics) SystemWeather() string {
	return fmt.Sprintf("%s/weather", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all Aqua Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: aquacore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
