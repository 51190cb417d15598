package actuation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/aqua-core/internal/infrastructure/logging"
	"github.com/nerrad567/aqua-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/aqua-core/internal/station"
)

// MQTTClient is the subset of the MQTT client the backend needs.
// Satisfied by *mqtt.Client; mocked in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// setCommand is the JSON envelope published to a station's set topic.
type setCommand struct {
	CorrelationID string `json:"correlation_id"`
	On            bool   `json:"on"`
	DurationMin   int    `json:"duration_min,omitempty"`
	IssuedAt      string `json:"issued_at"`
}

// stateFeedback is the JSON payload valve hardware reports on its state
// topic.
type stateFeedback struct {
	On bool `json:"on"`
}

// MQTTBackend drives station valves over MQTT: commands go out on the
// station's set topic, completion is confirmed by the valve's retained
// state topic.
//
// Thread Safety: all methods are safe for concurrent use.
type MQTTBackend struct {
	client       MQTTClient
	controllerID string
	qos          byte
	logger       *logging.Logger

	mu       sync.Mutex
	stations map[int]station.Station
	active   int // 0 = no station active
	// confirmed reports whether the active claim has been backed by valve
	// feedback. An unconfirmed claim exists only because Start was
	// optimistic; it is released once a stop command is on the wire, so a
	// valve that never acknowledges cannot wedge the controller in
	// permanent conflict.
	confirmed bool
	// pending tracks the in-flight command per station and direction.
	pendingStart map[int]*Pending
	pendingStop  map[int]*Pending
}

// NewMQTTBackend creates the backend and subscribes to the controller's
// station feedback topics.
//
// Parameters:
//   - client: Connected MQTT client
//   - controllerID: Controller whose stations this backend drives
//   - stations: Station definitions (used for validation and StopAll)
//   - qos: QoS for command publishes (1 recommended)
//   - logger: Component logger
func NewMQTTBackend(client MQTTClient, controllerID string, stations []station.Station,
	qos byte, logger *logging.Logger) (*MQTTBackend, error) {

	b := &MQTTBackend{
		client:       client,
		controllerID: controllerID,
		qos:          qos,
		logger:       logger.With("component", "actuation", "controller", controllerID),
		stations:     make(map[int]station.Station, len(stations)),
		pendingStart: make(map[int]*Pending),
		pendingStop:  make(map[int]*Pending),
	}
	for _, st := range stations {
		b.stations[st.ID] = st
	}

	topic := mqtt.Topics{}.AllStationStates(controllerID)
	if err := client.Subscribe(topic, qos, b.handleFeedback); err != nil {
		return nil, fmt.Errorf("subscribing to station feedback: %w", err)
	}

	return b, nil
}

// Start implements Gateway.
func (b *MQTTBackend) Start(_ context.Context, st station.Station, duration time.Duration) (*Pending, error) {
	b.mu.Lock()
	if _, ok := b.stations[st.ID]; !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: id %d", ErrUnknownStation, st.ID)
	}
	if b.active != 0 && b.active != st.ID {
		other := b.active
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: station %d", ErrConflict, other)
	}

	cmd := newCommand(KindStart, st.ID, duration)
	pending := newPending(cmd)
	b.pendingStart[st.ID] = pending
	if b.active != st.ID {
		b.active = st.ID
		b.confirmed = false
	}
	b.mu.Unlock()

	if err := b.publish(st.ID, setCommand{
		CorrelationID: cmd.ID.String(),
		On:            true,
		DurationMin:   int(duration.Minutes()),
		IssuedAt:      cmd.IssuedAt.Format(time.RFC3339),
	}); err != nil {
		b.clearActive(st.ID)
		return nil, fmt.Errorf("%w: %w", ErrBackendRejected, err)
	}

	return pending, nil
}

// Stop implements Gateway. Stopping a station the backend does not
// believe to be running resolves immediately: stop is idempotent.
func (b *MQTTBackend) Stop(_ context.Context, stationID int) (*Pending, error) {
	b.mu.Lock()
	if _, ok := b.stations[stationID]; !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: id %d", ErrUnknownStation, stationID)
	}

	cmd := newCommand(KindStop, stationID, 0)
	pending := newPending(cmd)

	if b.active != stationID {
		b.mu.Unlock()
		pending.resolve(Result{Status: StatusSucceeded})
		return pending, nil
	}

	b.pendingStop[stationID] = pending
	b.mu.Unlock()

	if err := b.publish(stationID, setCommand{
		CorrelationID: cmd.ID.String(),
		On:            false,
		IssuedAt:      cmd.IssuedAt.Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendRejected, err)
	}

	// A claim the valve never confirmed is only our own optimism from
	// Start; with the off command on the wire, release it so later starts
	// are not stuck behind a silent valve. A confirmed claim stays until
	// the off feedback arrives.
	b.mu.Lock()
	if b.active == stationID && !b.confirmed {
		b.active = 0
	}
	b.mu.Unlock()

	return pending, nil
}

// StopAll implements Gateway. Every station is commanded off regardless
// of believed state; errors are collected but do not stop the sweep.
func (b *MQTTBackend) StopAll(_ context.Context) error {
	b.mu.Lock()
	ids := make([]int, 0, len(b.stations))
	for id := range b.stations {
		ids = append(ids, id)
	}
	b.active = 0
	b.confirmed = false
	b.mu.Unlock()

	var errs []string
	for _, id := range ids {
		cmd := newCommand(KindStop, id, 0)
		if err := b.publish(id, setCommand{
			CorrelationID: cmd.ID.String(),
			On:            false,
			IssuedAt:      cmd.IssuedAt.Format(time.RFC3339),
		}); err != nil {
			errs = append(errs, fmt.Sprintf("station %d: %v", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: stop_all: %s", ErrBackendRejected, strings.Join(errs, "; "))
	}
	return nil
}

// Power implements Gateway.
func (b *MQTTBackend) Power(_ context.Context, on bool) error {
	topic := mqtt.Topics{}.ControllerPower(b.controllerID)
	payload, err := json.Marshal(map[string]bool{"on": on})
	if err != nil {
		return fmt.Errorf("marshalling power command: %w", err)
	}
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendRejected, err)
	}
	return nil
}

// Active implements Gateway.
func (b *MQTTBackend) Active() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.active != 0
}

// publish marshals and sends a set command for one station.
func (b *MQTTBackend) publish(stationID int, cmd setCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling set command: %w", err)
	}
	topic := mqtt.Topics{}.StationSet(b.controllerID, stationID)
	return b.client.Publish(topic, payload, b.qos, false)
}

// clearActive resets the active marker if it still points at stationID.
func (b *MQTTBackend) clearActive(stationID int) {
	b.mu.Lock()
	if b.active == stationID {
		b.active = 0
		b.confirmed = false
	}
	b.mu.Unlock()
}

// handleFeedback processes a valve state report and resolves the matching
// pending command. Feedback for a station with no pending command (a
// retained message, or manual valve operation) only updates the active
// marker.
func (b *MQTTBackend) handleFeedback(topic string, payload []byte) error {
	stationID, err := stationIDFromTopic(topic)
	if err != nil {
		return err
	}

	var fb stateFeedback
	if err := json.Unmarshal(payload, &fb); err != nil {
		return fmt.Errorf("parsing feedback on %s: %w", topic, err)
	}

	b.mu.Lock()
	var pending *Pending
	if fb.On {
		pending = b.pendingStart[stationID]
		delete(b.pendingStart, stationID)
		b.active = stationID
		b.confirmed = true
	} else {
		pending = b.pendingStop[stationID]
		delete(b.pendingStop, stationID)
		if b.active == stationID {
			b.active = 0
			b.confirmed = false
		}
	}
	b.mu.Unlock()

	if pending != nil {
		pending.resolve(Result{Status: StatusSucceeded})
	}
	return nil
}

// stationIDFromTopic extracts the station id from a feedback topic of the
// form aquacore/controller/{id}/station/{n}/state.
func stationIDFromTopic(topic string) (int, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("unexpected feedback topic %q", topic)
	}
	// The station number is the second-to-last segment.
	id, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("unexpected feedback topic %q: %w", topic, err)
	}
	return id, nil
}
