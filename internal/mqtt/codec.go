package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reading timestamps are RFC 3339 with a numeric offset, so UTC is
// written as "+00:00" rather than "Z". Fractional seconds appear only
// when non-zero, padded to milli, micro or nanosecond precision.
const (
	timeLayout      = "2006-01-02T15:04:05-07:00"
	timeLayoutMilli = "2006-01-02T15:04:05.000-07:00"
	timeLayoutMicro = "2006-01-02T15:04:05.000000-07:00"
	timeLayoutNano  = "2006-01-02T15:04:05.000000000-07:00"
)

// FormatTime renders t in UTC in the reading payload format, e.g.
// "2024-01-01T00:00:00+00:00" or "2024-01-01T00:00:00.500+00:00".
func FormatTime(t time.Time) string {
	t = t.UTC()
	switch ns := t.Nanosecond(); {
	case ns == 0:
		return t.Format(timeLayout)
	case ns%int(time.Millisecond) == 0:
		return t.Format(timeLayoutMilli)
	case ns%int(time.Microsecond) == 0:
		return t.Format(timeLayoutMicro)
	default:
		return t.Format(timeLayoutNano)
	}
}

// Reading is one combined sample from the sensor.
type Reading struct {
	Time        time.Time
	CO2         uint16  // ppm
	Temperature float64 // °C
	Humidity    float64 // %
}

// readingPayload fixes the field order of the wire format.
type readingPayload struct {
	Time        string  `json:"time"`
	CO2         uint16  `json:"co2"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// EncodeReading serializes r to the state topic payload:
//
//	{"time":"2024-01-01T00:00:00+00:00","co2":800,"temperature":21.5,"humidity":45.2}
func EncodeReading(r Reading) ([]byte, error) {
	payload, err := json.Marshal(readingPayload{
		Time:        FormatTime(r.Time),
		CO2:         r.CO2,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	})
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return payload, nil
}

// EncodeDiscovery serializes a discovery document.
func EncodeDiscovery(d Discovery) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode discovery: %w", err)
	}
	return payload, nil
}
