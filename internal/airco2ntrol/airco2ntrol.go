// Package airco2ntrol reads CO2, temperature and humidity from a TFA
// Dostmann AIRCO2NTROL monitor attached over USB HID.
//
// The device is read through its Linux hidraw node. After a SET_FEATURE
// report carrying the key, it streams 8-byte frames, each holding one
// item (CO2, temperature or humidity). The [Monitor] merges them into
// readings and hands each one to the registered handlers.
package airco2ntrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// USB identifiers of the AIRCO2NTROL.
const (
	VendorID  = 0x04d9
	ProductID = 0xa052
)

// ErrDeviceNotFound is returned by [Find] when no matching hidraw node
// exists.
var ErrDeviceNotFound = errors.New("airco2ntrol device not found")

// sysHidraw is where Find looks for hidraw nodes.
var sysHidraw = "/sys/class/hidraw"

// Handler consumes readings. HandleReading is called from the monitor's
// read goroutine, one reading at a time.
type Handler interface {
	HandleReading(t time.Time, co2 uint16, temperature, humidity float64)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(t time.Time, co2 uint16, temperature, humidity float64)

// HandleReading calls f.
func (f HandlerFunc) HandleReading(t time.Time, co2 uint16, temperature, humidity float64) {
	f(t, co2, temperature, humidity)
}

// Monitor reads frames from an open device.
type Monitor struct {
	dev    io.ReadCloser
	key    Key
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	handlers []Handler
}

// Find returns the /dev path of the first hidraw node whose uevent names
// the AIRCO2NTROL vendor and product.
func Find() (string, error) {
	entries, err := os.ReadDir(sysHidraw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	want := fmt.Sprintf("HID_ID=0003:%08X:%08X", VendorID, ProductID)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(sysHidraw, e.Name(), "device", "uevent"))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.EqualFold(strings.TrimSpace(line), want) {
				return "/dev/" + e.Name(), nil
			}
		}
	}
	return "", ErrDeviceNotFound
}

// Open opens the hidraw node at path and sends the key report. A zero
// key is used; the device accepts any key.
func Open(path string, logger *slog.Logger) (*Monitor, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var key Key
	if err := setFeature(f, key); err != nil {
		f.Close()
		return nil, fmt.Errorf("send key to %s: %w", path, err)
	}

	logger.Info("airco2ntrol device opened", "path", path)
	return newMonitor(f, key, logger), nil
}

func newMonitor(dev io.ReadCloser, key Key, logger *slog.Logger) *Monitor {
	return &Monitor{
		dev:    dev,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterCallback adds h to the handlers called for every reading.
func (m *Monitor) RegisterCallback(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// StartMonitoring reads frames in a new goroutine until ctx is
// cancelled or the device fails. The returned channel is closed when
// the goroutine exits.
func (m *Monitor) StartMonitoring(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.run(ctx)
	}()

	// Reads on a hidraw node only return when a report arrives; closing
	// the device is what unblocks them on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			m.dev.Close()
		case <-done:
		}
	}()
	return done
}

// Close releases the device.
func (m *Monitor) Close() error {
	return m.dev.Close()
}

func (m *Monitor) run(ctx context.Context) {
	var acc accumulator
	var buf [8]byte

	for {
		if _, err := io.ReadFull(m.dev, buf[:]); err != nil {
			if ctx.Err() == nil {
				m.logger.Error("airco2ntrol read failed", "error", err)
			}
			return
		}

		f, err := decodeFrame(buf, m.key)
		if err != nil {
			m.logger.Debug("airco2ntrol frame dropped", "frame", fmt.Sprintf("% x", buf), "error", err)
			continue
		}

		r, ok := acc.apply(f, m.now())
		if !ok {
			continue
		}
		m.dispatch(r)
	}
}

func (m *Monitor) dispatch(r reading) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h.HandleReading(r.time, r.co2, r.temperature, r.humidity)
	}
}
