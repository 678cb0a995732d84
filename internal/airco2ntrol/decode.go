package airco2ntrol

import (
	"errors"
	"math"
	"time"
)

// Item codes carried in byte 0 of a decoded frame.
const (
	itemCO2         = 0x50 // ppm
	itemTemperature = 0x42 // kelvin * 16
	itemHumidity    = 0x41 // percent * 100
)

// frameTerminator is byte 4 of every valid frame.
const frameTerminator = 0x0d

var errChecksum = errors.New("frame checksum mismatch")

// Key is the 8-byte key sent to the device with SET_FEATURE. Older
// firmware encrypts every frame with it; newer firmware ignores it and
// sends frames in the clear.
type Key [8]byte

// magic and shuffle are the fixed tables of the frame cipher.
var (
	magic   = [8]byte{0x48, 0x74, 0x65, 0x6d, 0x70, 0x39, 0x39, 0x65} // "Htemp99e"
	shuffle = [8]int{2, 4, 0, 7, 1, 6, 5, 3}
)

// frame is one decoded 8-byte report.
type frame struct {
	item  byte
	value uint16
}

// decrypt reverses the device cipher.
func decrypt(data [8]byte, key Key) [8]byte {
	var phase1 [8]byte
	for i, o := range shuffle {
		phase1[o] = data[i]
	}

	var phase2 [8]byte
	for i := range phase2 {
		phase2[i] = phase1[i] ^ key[i]
	}

	var out [8]byte
	for i := range out {
		rotated := phase2[i]>>3 | phase2[(i+7)%8]<<5
		ctmp := magic[i]>>4 | magic[i]<<4
		out[i] = rotated - ctmp
	}
	return out
}

// valid reports whether b is a well-formed plain frame.
func valid(b [8]byte) bool {
	return b[4] == frameTerminator && b[0]+b[1]+b[2] == b[3]
}

// decodeFrame accepts plain frames as they are and tries to decrypt
// anything else.
func decodeFrame(data [8]byte, key Key) (frame, error) {
	b := data
	if !valid(b) {
		b = decrypt(data, key)
		if !valid(b) {
			return frame{}, errChecksum
		}
	}
	return frame{item: b[0], value: uint16(b[1])<<8 | uint16(b[2])}, nil
}

// accumulator merges single-item frames into complete readings.
type accumulator struct {
	temperature    float64
	humidity       float64
	hasTemperature bool
}

// reading is a complete sample ready for the handlers.
type reading struct {
	time        time.Time
	co2         uint16
	temperature float64
	humidity    float64
}

// apply folds f into the accumulator. Every CO2 frame yields a reading
// once a temperature has been seen; devices without a humidity sensor
// report 0.
func (a *accumulator) apply(f frame, now time.Time) (reading, bool) {
	switch f.item {
	case itemTemperature:
		a.temperature = round2(float64(f.value)/16 - 273.15)
		a.hasTemperature = true
	case itemHumidity:
		a.humidity = round2(float64(f.value) / 100)
	case itemCO2:
		if !a.hasTemperature {
			return reading{}, false
		}
		return reading{
			time:        now.UTC(),
			co2:         f.value,
			temperature: a.temperature,
			humidity:    a.humidity,
		}, true
	}
	return reading{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
