package airco2ntrol

import (
	"errors"
	"testing"
	"time"
)

// plainFrame builds an unencrypted frame for item and value.
func plainFrame(item byte, value uint16) [8]byte {
	hi, lo := byte(value>>8), byte(value)
	return [8]byte{item, hi, lo, item + hi + lo, frameTerminator, 0, 0, 0}
}

// encrypt is the inverse of decrypt.
func encrypt(plain [8]byte, key Key) [8]byte {
	var rotated [8]byte
	for i := range rotated {
		rotated[i] = plain[i] + (magic[i]>>4 | magic[i]<<4)
	}
	var phase1 [8]byte
	for i := range phase1 {
		phase1[i] = (rotated[i]<<3 | rotated[(i+1)%8]>>5) ^ key[i]
	}
	var out [8]byte
	for i, o := range shuffle {
		out[i] = phase1[o]
	}
	return out
}

func TestDecodeFrame_Plain(t *testing.T) {
	f, err := decodeFrame(plainFrame(itemCO2, 800), Key{})
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if f.item != itemCO2 || f.value != 800 {
		t.Errorf("frame = %+v, want item 0x50 value 800", f)
	}
}

func TestDecodeFrame_KnownCiphertext(t *testing.T) {
	tests := []struct {
		name  string
		data  [8]byte
		key   Key
		item  byte
		value uint16
	}{
		{"co2 zero key", [8]byte{0xb2, 0xa4, 0xa2, 0xb6, 0x53, 0x9a, 0x9c, 0x48}, Key{}, itemCO2, 800},
		{"temperature keyed", [8]byte{0xb7, 0xa1, 0x33, 0xbe, 0xcf, 0x9d, 0x9a, 0x54}, Key{1, 2, 3, 4, 5, 6, 7, 8}, itemTemperature, 0x1260},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeFrame(tt.data, tt.key)
			if err != nil {
				t.Fatalf("decodeFrame() error = %v", err)
			}
			if f.item != tt.item || f.value != tt.value {
				t.Errorf("frame = %+v, want item %#x value %d", f, tt.item, tt.value)
			}
		})
	}
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	key := Key{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
	for _, plain := range [][8]byte{
		plainFrame(itemCO2, 412),
		plainFrame(itemTemperature, 4704),
		plainFrame(itemHumidity, 4520),
	} {
		if got := decrypt(encrypt(plain, key), key); got != plain {
			t.Errorf("decrypt(encrypt(%x)) = %x", plain, got)
		}
	}
}

func TestDecodeFrame_Garbage(t *testing.T) {
	_, err := decodeFrame([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, Key{})
	if !errors.Is(err, errChecksum) {
		t.Errorf("err = %v, want errChecksum", err)
	}
}

func TestAccumulator(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var acc accumulator

	if _, ok := acc.apply(frame{itemCO2, 800}, now); ok {
		t.Fatal("CO2 before any temperature must not yield a reading")
	}
	if _, ok := acc.apply(frame{itemTemperature, 4704}, now); ok {
		t.Fatal("temperature frame must not yield a reading")
	}
	if _, ok := acc.apply(frame{itemHumidity, 4520}, now); ok {
		t.Fatal("humidity frame must not yield a reading")
	}

	r, ok := acc.apply(frame{itemCO2, 800}, now)
	if !ok {
		t.Fatal("CO2 after temperature should yield a reading")
	}
	if r.co2 != 800 {
		t.Errorf("co2 = %d, want 800", r.co2)
	}
	if r.temperature != 20.85 {
		t.Errorf("temperature = %v, want 20.85", r.temperature)
	}
	if r.humidity != 45.2 {
		t.Errorf("humidity = %v, want 45.2", r.humidity)
	}
	if !r.time.Equal(now) {
		t.Errorf("time = %v, want %v", r.time, now)
	}
}

func TestAccumulator_IgnoresUnknownItems(t *testing.T) {
	var acc accumulator
	if _, ok := acc.apply(frame{0x6e, 1234}, time.Now()); ok {
		t.Error("unknown item must not yield a reading")
	}
}
