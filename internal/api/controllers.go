package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/aqua-core/internal/coordinator"
)

// handleListControllers returns the configured controller ids.
func (s *Server) handleListControllers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"controllers": s.controllerIDs(),
	})
}

// handleSystemStatus returns the status of every controller in one
// response, keyed by controller id.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]coordinator.Status, len(s.coordinators))
	for _, id := range s.controllerIDs() {
		out[id] = s.coordinators[id].Status(r.Context())
	}
	writeJSON(w, http.StatusOK, out)
}

// handleControllerStatus returns one controller's full status projection.
func (s *Server) handleControllerStatus(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, coord.Status(r.Context()))
}

// handleControllerCommands returns the controller's recent command
// outcomes, most recent first.
func (s *Server) handleControllerCommands(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"controller_id": coord.ControllerID(),
		"commands":      coord.CommandLog(),
	})
}

// startRequest is the optional body for a manual station start.
type startRequest struct {
	// DurationMin overrides the station's configured manual default.
	DurationMin int `json:"duration_min"`
}

// handleStationStart enqueues a manual start for one station.
func (s *Server) handleStationStart(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	stationID, ok := s.stationID(w, r)
	if !ok {
		return
	}

	var req startRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}
	if req.DurationMin < 0 {
		writeBadRequest(w, "duration_min must not be negative")
		return
	}

	s.submit(w, coord, coordinator.ManualCommand{
		Kind:      coordinator.ManualStart,
		StationID: stationID,
		Duration:  time.Duration(req.DurationMin) * time.Minute,
	})
}

// handleStationStop enqueues a manual stop for one station.
func (s *Server) handleStationStop(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	stationID, ok := s.stationID(w, r)
	if !ok {
		return
	}

	s.submit(w, coord, coordinator.ManualCommand{
		Kind:      coordinator.ManualStop,
		StationID: stationID,
	})
}

// handleStopAll enqueues an emergency stop of every station on the
// controller.
func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	s.submit(w, coord, coordinator.ManualCommand{Kind: coordinator.ManualStopAll})
}

// powerRequest is the body for a controller power command.
type powerRequest struct {
	On bool `json:"on"`
}

// handlePower enqueues a controller power on/off command. Powering off
// stops any running station and suppresses scheduled starts until
// powered back on.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.lookupController(w, r)
	if !ok {
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	s.submit(w, coord, coordinator.ManualCommand{
		Kind:    coordinator.ManualPower,
		PowerOn: req.On,
	})
}

// submit enqueues a manual command and translates coordinator errors into
// HTTP responses. Acceptance means queued, not executed.
func (s *Server) submit(w http.ResponseWriter, coord *coordinator.Coordinator, cmd coordinator.ManualCommand) {
	if err := coord.Submit(cmd); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrQueueFull):
			writeError(w, http.StatusConflict, ErrCodeConflict, "command queue full, retry later")
		case errors.Is(err, coordinator.ErrUnknownStation):
			writeNotFound(w, "station not found")
		case errors.Is(err, coordinator.ErrNotRunning):
			writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "controller not running")
		default:
			writeInternalError(w, "failed to submit command")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":      true,
		"controller_id": coord.ControllerID(),
		"kind":          cmd.Kind,
	})
}

// lookupController resolves the {id} route parameter. Writes a 404 and
// returns false when the controller does not exist.
func (s *Server) lookupController(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	id := chi.URLParam(r, "id")
	coord, ok := s.coordinators[id]
	if !ok {
		writeNotFound(w, "controller not found")
		return nil, false
	}
	return coord, true
}

// stationID resolves the {sid} route parameter.
func (s *Server) stationID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "sid"))
	if err != nil || id < 1 {
		writeBadRequest(w, "invalid station id")
		return 0, false
	}
	return id, true
}
