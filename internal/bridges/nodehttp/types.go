package nodehttp

import (
	"encoding/json"
	"fmt"
)

// SensorValue is one sensor's sample in a node status response. Nodes report
// either the object form {"value": 24.5, "unit": "C"} or a bare number;
// both decode into this type.
type SensorValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// UnmarshalJSON accepts both the object and bare-number sensor forms.
// An object without a numeric value is an error.
func (s *SensorValue) UnmarshalJSON(data []byte) error {
	var obj struct {
		Value *float64 `json:"value"`
		Unit  string   `json:"unit"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Value == nil {
			return fmt.Errorf("%w: sensor entry has no value", ErrBadResponse)
		}
		s.Value = *obj.Value
		s.Unit = obj.Unit
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: unrecognised sensor payload", ErrBadResponse)
	}
	s.Value = n
	s.Unit = ""
	return nil
}

// NodeInfo is the identity block of a status response. Fields the node
// does not report decode to zero values.
type NodeInfo struct {
	Firmware string `json:"firmware"`
	MAC      string `json:"mac"`
	Uptime   int64  `json:"uptime"`
}

// State is a node's full /status response.
type State struct {
	// Sensors maps sensor type (temperature, humidity, ...) to its sample.
	Sensors map[string]SensorValue

	// Actuators carries the node's reported actuator states untouched.
	Actuators map[string]any

	// Info is the node's identity block.
	Info NodeInfo
}

// stateEnvelope is the raw wire shape of /status. Sensor entries are kept
// raw so malformed ones can be dropped individually instead of failing the
// whole poll.
type stateEnvelope struct {
	Sensors   map[string]json.RawMessage `json:"sensors"`
	Actuators map[string]any             `json:"actuators"`
	Info      NodeInfo                   `json:"info"`
}

// toState decodes the sensor entries, dropping any without a usable
// numeric value.
func (e *stateEnvelope) toState() *State {
	state := &State{
		Sensors:   make(map[string]SensorValue, len(e.Sensors)),
		Actuators: e.Actuators,
		Info:      e.Info,
	}
	for sensorType, raw := range e.Sensors {
		var sv SensorValue
		if err := json.Unmarshal(raw, &sv); err != nil {
			continue
		}
		state.Sensors[sensorType] = sv
	}
	return state
}
