package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// KeepAlive is the MQTT keep-alive interval in seconds.
const KeepAlive = 60

// eventBuffer bounds how many events autopaho can deliver before the
// stream's consumer catches up.
const eventBuffer = 16

var (
	// ErrConnect means the session could not be opened at all.
	ErrConnect = errors.New("mqtt connect")

	// ErrValidation means the transport reported an error before the
	// broker acknowledged the session.
	ErrValidation = errors.New("mqtt connection failed")

	// ErrConnectTimeout means no acknowledgment arrived in time.
	ErrConnectTimeout = errors.New("mqtt connection timeout - broker unreachable")
)

// Settings identify the broker and the session.
type Settings struct {
	Host     string
	Port     int
	ClientID string
	// Username and Password are only sent when both are non-empty.
	Username string
	Password string
	TLS      bool
}

// BrokerURL returns the autopaho server URL for s.
func (s Settings) BrokerURL() *url.URL {
	scheme := "mqtt"
	if s.TLS {
		scheme = "mqtts"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
	}
}

// EventKind classifies a connection event.
type EventKind int

const (
	// EventOther is any incoming traffic that says nothing about the
	// session state.
	EventOther EventKind = iota
	// EventConnAck means the broker acknowledged a (re-)connect.
	EventConnAck
	// EventError is a transport failure; Err carries the detail.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnAck:
		return "connack"
	case EventError:
		return "error"
	default:
		return "other"
	}
}

// Event is one observation from the transport.
type Event struct {
	Kind EventKind
	Err  error
}

// EventStream is a pull-based stream of connection events. It has a
// single consumer at a time: first [ValidateConnection], then
// [Supervise].
type EventStream struct {
	ch chan Event
}

func newEventStream(size int) *EventStream {
	return &EventStream{ch: make(chan Event, size)}
}

// Next returns the next event, or ctx's error if ctx ends first.
func (s *EventStream) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// emit delivers ev unless ctx ends first.
func (s *EventStream) emit(ctx context.Context, ev Event) {
	select {
	case s.ch <- ev:
	case <-ctx.Done():
	}
}

// Connect starts the broker session. It does not wait for the network
// handshake: the returned connection manager keeps (re-)connecting in
// the background until ctx is cancelled, and reports each outcome on
// the returned stream.
func Connect(ctx context.Context, s Settings) (*autopaho.ConnectionManager, *EventStream, error) {
	events := newEventStream(eventBuffer)
	pahoCfg := clientConfig(ctx, s, events)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return cm, events, nil
}

// clientConfig maps Settings onto autopaho and routes every callback
// into events.
func clientConfig(ctx context.Context, s Settings, events *EventStream) autopaho.ClientConfig {
	onError := func(err error) {
		events.emit(ctx, Event{Kind: EventError, Err: err})
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{s.BrokerURL()},
		KeepAlive:                     KeepAlive,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			events.emit(ctx, Event{Kind: EventConnAck})
		},
		OnConnectError: onError,
		ClientConfig: paho.ClientConfig{
			ClientID: s.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(paho.PublishReceived) (bool, error) {
					events.emit(ctx, Event{Kind: EventOther})
					return true, nil
				},
			},
			OnClientError: onError,
			OnServerDisconnect: func(d *paho.Disconnect) {
				onError(disconnectError(d))
			},
		},
	}

	if s.Username != "" && s.Password != "" {
		cfg.ConnectUsername = s.Username
		cfg.ConnectPassword = []byte(s.Password)
	}

	if s.TLS {
		cfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return cfg
}

// disconnectError describes a broker-initiated DISCONNECT.
func disconnectError(d *paho.Disconnect) error {
	if d.Properties != nil && d.Properties.ReasonString != "" {
		return fmt.Errorf("server disconnected: reason code %d: %s", d.ReasonCode, d.Properties.ReasonString)
	}
	return fmt.Errorf("server disconnected: reason code %d", d.ReasonCode)
}
