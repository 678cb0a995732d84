package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/cupcaker/airctrlmqtt/internal/metrics"
)

// PublishTimeout bounds how long a single publish may wait for the
// broker. When the session is down autopaho fails immediately; the bound
// only matters for a connected but slow broker.
const PublishTimeout = 5 * time.Second

// Session is the part of the broker session the Publisher needs.
// *autopaho.ConnectionManager satisfies it and is safe for concurrent
// use.
type Session interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher sends readings and discovery documents over a shared
// session. It is safe for concurrent use.
//
// Readings are handed to the goroutine running [Publisher.Run] through a
// single slot. When the slot is already full, further readings are
// dropped until the goroutine catches up. Readings are never queued
// beyond that slot and never retried.
type Publisher struct {
	session  Session
	topic    string
	logger   *slog.Logger
	readings chan Reading
}

// NewPublisher creates a Publisher that sends readings to topic. Call
// [Publisher.Run] in its own goroutine before publishing readings.
func NewPublisher(session Session, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		session:  session,
		topic:    topic,
		logger:   logger,
		readings: make(chan Reading, 1),
	}
}

// Run publishes handed-off readings until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.readings:
			p.sendReading(ctx, r)
		}
	}
}

// Topic returns the topic readings are published to. Discovery
// documents must use it as their state topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishReading hands r to the publish goroutine and returns at once;
// it never waits on the network. If the previous reading has not been
// picked up yet, r is logged and dropped.
func (p *Publisher) PublishReading(r Reading) {
	select {
	case p.readings <- r:
	default:
		metrics.ObserveDropped("reading")
		p.logger.Warn("mqtt reading dropped, publisher busy",
			"topic", p.topic, "time", FormatTime(r.Time))
	}
}

// sendReading publishes r at QoS 1, not retained. A failure is logged
// and dropped; there is no retry.
func (p *Publisher) sendReading(ctx context.Context, r Reading) {
	payload, err := EncodeReading(r)
	if err != nil {
		p.logger.Error("mqtt encode reading failed", "error", err)
		return
	}

	err = p.publish(ctx, &paho.Publish{
		Topic:   p.topic,
		Payload: payload,
		QoS:     1,
		Retain:  false,
	})
	metrics.ObservePublish("reading", err)
	if err != nil {
		p.logger.Warn("mqtt reading publish failed",
			"topic", p.topic, "error", err)
		return
	}
	p.logger.Debug("mqtt reading published", "topic", p.topic)
}

// PublishDiscovery builds a fresh discovery document and sends it to
// [DiscoveryTopic] at QoS 1, retained, so Home Assistant receives it
// even when it subscribes later. A failure is logged and dropped.
func (p *Publisher) PublishDiscovery(ctx context.Context, prefix, objectID, stateTopic string) {
	topic := DiscoveryTopic(prefix, objectID)

	payload, err := EncodeDiscovery(BuildDescriptor(objectID, stateTopic))
	if err != nil {
		p.logger.Error("mqtt encode discovery failed", "object_id", objectID, "error", err)
		return
	}

	err = p.publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	})
	metrics.ObservePublish("discovery", err)
	if err != nil {
		p.logger.Warn("mqtt discovery publish failed",
			"topic", topic, "error", err)
		return
	}
	p.logger.Info("mqtt discovery published", "topic", topic, "object_id", objectID)
}

func (p *Publisher) publish(ctx context.Context, msg *paho.Publish) error {
	pubCtx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	_, err := p.session.Publish(pubCtx, msg)
	return err
}
