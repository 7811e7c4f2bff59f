package readings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/plantlog/plantlog/pkg/models"
)

// Domain ranges enforced on every ingest
const (
	MinMoisture = 0
	MaxMoisture = 2000

	MinTemperature = -20.0
	MaxTemperature = 100.0
)

// Sample is a validated reading ready for the repository
type Sample struct {
	DeviceID    string
	Moisture    int
	Temperature float64
}

// Validator gates every write with type coercion and domain-range checks.
// Checks run in a fixed order so error messages are deterministic and the
// first applicable error wins.
type Validator struct {
	defaultDeviceID string
}

// NewValidator creates a Validator that substitutes defaultDeviceID when a
// payload omits device_id
func NewValidator(defaultDeviceID string) *Validator {
	if defaultDeviceID == "" {
		defaultDeviceID = models.DefaultDeviceID
	}
	return &Validator{defaultDeviceID: defaultDeviceID}
}

// Validate checks a raw JSON payload. Order: body present, moisture present,
// temperature present, types coercible, moisture range, temperature range.
// On any failure nothing reaches the store.
func (v *Validator) Validate(body []byte) (*Sample, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrMissingBody
	}

	var payload map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || len(payload) == 0 {
		return nil, ErrMissingBody
	}

	rawMoisture, ok := payload["moisture"]
	if !ok {
		return nil, &FieldError{Field: "moisture", Reason: "data is missing", Err: ErrMissingField}
	}
	rawTemperature, ok := payload["temperature"]
	if !ok {
		return nil, &FieldError{Field: "temperature", Reason: "data is missing", Err: ErrMissingField}
	}

	moisture, ok := coerceInt(rawMoisture)
	if !ok {
		return nil, ErrTypeMismatch
	}
	temperature, ok := coerceFloat(rawTemperature)
	if !ok {
		return nil, ErrTypeMismatch
	}

	if moisture < MinMoisture || moisture > MaxMoisture {
		return nil, &FieldError{Field: "moisture", Reason: "levels are invalid", Err: ErrOutOfRange}
	}
	if temperature < MinTemperature || temperature > MaxTemperature {
		return nil, &FieldError{Field: "temperature", Reason: "levels are invalid", Err: ErrOutOfRange}
	}

	deviceID := v.defaultDeviceID
	if raw, ok := payload["device_id"]; ok {
		if s, isString := raw.(string); isString && s != "" {
			deviceID = s
		}
	}

	return &Sample{
		DeviceID:    deviceID,
		Moisture:    moisture,
		Temperature: temperature,
	}, nil
}

// coerceInt accepts JSON numbers and numeric strings. Integer-valued floats
// (450.0) pass; fractional values are rejected rather than truncated.
func coerceInt(raw interface{}) (int, bool) {
	switch val := raw.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			return int(n), true
		}
		if f, err := val.Float64(); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// coerceFloat accepts JSON numbers and numeric strings
func coerceFloat(raw interface{}) (float64, bool) {
	switch val := raw.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
