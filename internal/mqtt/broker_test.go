package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// freeAddr reserves a loopback port and releases it for the caller.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// settingsFor converts a host:port into connection Settings.
func settingsFor(t *testing.T, addr string) Settings {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)
	return Settings{Host: host, Port: port, ClientID: "airctrl-test"}
}

// startBroker runs an in-process broker that accepts every client.
func startBroker(t *testing.T) (*mqttserver.Server, Settings) {
	t.Helper()
	addr := freeAddr(t)

	server := mqttserver.New(&mqttserver.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add auth hook: %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{ID: "test", Address: addr})); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() { server.Close() })

	return server, settingsFor(t, addr)
}

func TestConnect_ValidatesAgainstBroker(t *testing.T) {
	server, settings := startBroker(t)

	received := make(chan packets.Packet, 1)
	if err := server.Subscribe("airctrl/#", 1, func(_ *mqttserver.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}); err != nil {
		t.Fatalf("inline subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm, events, err := Connect(ctx, settings)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := ValidateConnection(ctx, events, 5*time.Second, discardLogger()); err != nil {
		t.Fatalf("ValidateConnection() error = %v", err)
	}

	pub := NewPublisher(cm, "airctrl/sensors", discardLogger())
	go pub.Run(ctx)
	pub.PublishReading(testReading())

	select {
	case pk := <-received:
		if pk.TopicName != "airctrl/sensors" {
			t.Errorf("topic = %q, want airctrl/sensors", pk.TopicName)
		}
		want := `{"time":"2024-01-01T00:00:00+00:00","co2":800,"temperature":21.5,"humidity":45.2}`
		if string(pk.Payload) != want {
			t.Errorf("payload = %s, want %s", pk.Payload, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("broker did not receive the reading")
	}
}

func TestConnect_ReturnsBeforeHandshake(t *testing.T) {
	// Nothing listens here; Connect must still return at once.
	settings := settingsFor(t, freeAddr(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	cm, events, err := Connect(ctx, settings)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if cm == nil || events == nil {
		t.Fatal("Connect() returned nil handle or stream")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Connect() took %v, should not wait for the broker", elapsed)
	}
}

func TestValidateConnection_BrokerRefuses(t *testing.T) {
	settings := settingsFor(t, freeAddr(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events, err := Connect(ctx, settings)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err = ValidateConnection(ctx, events, 5*time.Second, discardLogger())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateConnection_SilentBroker(t *testing.T) {
	// Accept TCP connections but never answer CONNECT.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events, err := Connect(ctx, settingsFor(t, l.Addr().String()))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err = ValidateConnection(ctx, events, 500*time.Millisecond, discardLogger())
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
}

func TestPublisher_DisconnectedSessionDoesNotPanic(t *testing.T) {
	settings := settingsFor(t, freeAddr(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm, _, err := Connect(ctx, settings)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	h := &recordHandler{level: slog.LevelInfo}
	pub := NewPublisher(cm, "airctrl/sensors", slog.New(h))
	go pub.Run(ctx)

	start := time.Now()
	pub.PublishReading(testReading())
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("PublishReading held the caller for %v on a down session", elapsed)
	}

	// autopaho fails at once while down, so the failure is logged well
	// within the publish timeout.
	deadline := time.Now().Add(PublishTimeout + time.Second)
	for h.count("mqtt reading publish failed") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := h.count("mqtt reading publish failed"); n != 1 {
		t.Errorf("failure lines = %d, want 1 (messages %v)", n, h.messages())
	}
}
