// Package decoder turns raw byte chunks from the controller stream into
// typed events. Field names and classification rules follow the
// Node-RED message shapes: a "type" field selects setup/stop, anything
// else carrying a known channel field is a sensor sample.
package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecode reports a chunk that looked like a message but could not be
// decoded. Callers log it and move on to the next chunk.
var ErrDecode = errors.New("malformed message")

// Event is one decoded controller message: a Setup, Stop or Sample.
type Event interface {
	event()
}

// Setup announces a new experiment run.
type Setup struct {
	ExpNumber   string
	Operator    *string
	Description *string
	Reagents    []ReagentInput
}

// ReagentInput is one reagent entry of a setup message. Concentration
// is nil when the controller omitted it.
type ReagentInput struct {
	Name          string
	Concentration *float64
}

// Stop closes the currently active run. It carries no payload.
type Stop struct{}

// Sample is one snapshot of the instrument channels. Nil fields were
// absent or unusable in the message and persist as NULL.
type Sample struct {
	Temperature *float64
	UV1         *float64
	Photodiode  *float64
	Turbidity1  *float64
	Turbidity2  *float64
	RGB1R       *int64
	RGB1G       *int64
	RGB1B       *int64
	RGB2R       *int64
	RGB2G       *int64
	RGB2B       *int64
	UVLedState  *int64
	UVIntensity *int64
	Pump1State  *int64
	Pump2State  *int64
	PumpSpeed   *float64
	FlowRate    *float64
}

func (Setup) event()  {}
func (Stop) event()   {}
func (Sample) event() {}

// channelKeys are the wire names of the sensor channels. A typeless
// object carrying none of them is noise, not a sample.
var channelKeys = []string{
	"temp", "uv1", "photodiode", "turbidity", "turbidity2",
	"rgb1_r", "rgb1_g", "rgb1_b", "rgb2_r", "rgb2_g", "rgb2_b",
	"uvLed", "uvIntensity", "pump", "pump2", "pumpSpeed", "flowRate",
}

// Decode splits one raw chunk into its decoded events. Chunks that are
// not JSON objects yield no events and no error. Several objects
// concatenated in one chunk are decoded in order; on a malformed object
// the events decoded so far are returned alongside the error.
func Decode(chunk []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var events []Event
	for {
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		event, err := classify(raw)
		if err != nil {
			return events, err
		}
		if event != nil {
			events = append(events, event)
		}
	}
}

// classify maps one decoded object to its event. A nil event with a nil
// error means the object is unrecognized and should be dropped.
func classify(raw map[string]interface{}) (Event, error) {
	switch raw["type"] {
	case "setup":
		return decodeSetup(raw)
	case "stop":
		return Stop{}, nil
	}

	if !hasChannelField(raw) {
		return nil, nil
	}
	return decodeSample(raw), nil
}

func decodeSetup(raw map[string]interface{}) (Event, error) {
	exp, ok := raw["experiment"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: setup without experiment payload", ErrDecode)
	}

	// The experiment number is the one required field; everything else
	// degrades to NULL.
	expNumber, ok := exp["expNo"].(string)
	if !ok || expNumber == "" {
		return nil, fmt.Errorf("%w: setup missing expNo", ErrDecode)
	}

	setup := Setup{
		ExpNumber:   expNumber,
		Operator:    stringField(exp, "operator"),
		Description: stringField(exp, "description"),
	}

	if list, ok := exp["reagents"].([]interface{}); ok {
		for _, item := range list {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, ok := entry["name"].(string)
			if !ok || name == "" {
				continue
			}
			setup.Reagents = append(setup.Reagents, ReagentInput{
				Name:          name,
				Concentration: floatField(entry, "concentration"),
			})
		}
	}

	return setup, nil
}

func decodeSample(raw map[string]interface{}) Sample {
	return Sample{
		Temperature: floatField(raw, "temp"),
		UV1:         floatField(raw, "uv1"),
		Photodiode:  floatField(raw, "photodiode"),
		Turbidity1:  floatField(raw, "turbidity"),
		Turbidity2:  floatField(raw, "turbidity2"),
		RGB1R:       intField(raw, "rgb1_r"),
		RGB1G:       intField(raw, "rgb1_g"),
		RGB1B:       intField(raw, "rgb1_b"),
		RGB2R:       intField(raw, "rgb2_r"),
		RGB2G:       intField(raw, "rgb2_g"),
		RGB2B:       intField(raw, "rgb2_b"),
		UVLedState:  intField(raw, "uvLed"),
		UVIntensity: intField(raw, "uvIntensity"),
		Pump1State:  intField(raw, "pump"),
		Pump2State:  intField(raw, "pump2"),
		PumpSpeed:   floatField(raw, "pumpSpeed"),
		FlowRate:    floatField(raw, "flowRate"),
	}
}

func hasChannelField(raw map[string]interface{}) bool {
	for _, key := range channelKeys {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

// stringField extracts an optional string; a missing or badly typed
// value becomes nil rather than failing the message.
func stringField(m map[string]interface{}, key string) *string {
	if v, ok := m[key].(string); ok {
		return &v
	}
	return nil
}

func floatField(m map[string]interface{}, key string) *float64 {
	if v, ok := m[key].(float64); ok {
		return &v
	}
	return nil
}

// intField extracts an integer channel. Controllers report the on/off
// channels either as numbers or booleans; both map to 0/1.
func intField(m map[string]interface{}, key string) *int64 {
	switch v := m[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case bool:
		n := int64(0)
		if v {
			n = 1
		}
		return &n
	}
	return nil
}
