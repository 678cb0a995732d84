package airco2ntrol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMonitor_DispatchesReadings(t *testing.T) {
	var stream bytes.Buffer
	key := Key{}
	for _, f := range [][8]byte{
		plainFrame(itemTemperature, 4704),
		plainFrame(itemHumidity, 4520),
		{1, 2, 3, 4, 5, 6, 7, 8}, // noise
		encrypt(plainFrame(itemCO2, 800), key),
		plainFrame(itemCO2, 805),
	} {
		stream.Write(f[:])
	}

	m := newMonitor(io.NopCloser(&stream), key, discardLogger())
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	var mu sync.Mutex
	var got []uint16
	m.RegisterCallback(HandlerFunc(func(ts time.Time, co2 uint16, temperature, humidity float64) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, co2)
		if !ts.Equal(fixed) {
			t.Errorf("time = %v, want %v", ts, fixed)
		}
		if temperature != 20.85 || humidity != 45.2 {
			t.Errorf("temperature, humidity = %v, %v; want 20.85, 45.2", temperature, humidity)
		}
	}))

	select {
	case <-m.StartMonitoring(context.Background()):
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop at end of stream")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 800 || got[1] != 805 {
		t.Errorf("readings = %v, want [800 805]", got)
	}
}

// blockingReader blocks until closed.
type blockingReader struct {
	closed chan struct{}
	once   sync.Once
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.closed
	return 0, os.ErrClosed
}

func (b *blockingReader) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	dev := &blockingReader{closed: make(chan struct{})}
	m := newMonitor(dev, Key{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := m.StartMonitoring(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	orig := sysHidraw
	sysHidraw = root
	defer func() { sysHidraw = orig }()

	write := func(node, uevent string) {
		dir := filepath.Join(root, node, "device")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write("hidraw0", "DRIVER=hid-generic\nHID_ID=0003:0000046D:0000C52B\n")
	if _, err := Find(); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("Find() err = %v, want ErrDeviceNotFound", err)
	}

	write("hidraw3", "DRIVER=hid-generic\nHID_ID=0003:000004D9:0000A052\nHID_NAME=Holtek USB-zyTemp\n")
	got, err := Find()
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != "/dev/hidraw3" {
		t.Errorf("Find() = %q, want /dev/hidraw3", got)
	}
}
