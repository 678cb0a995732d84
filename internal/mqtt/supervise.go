package mqtt

import (
	"context"
	"log/slog"

	"github.com/cupcaker/airctrlmqtt/internal/connwatch"
)

// SupervisorConfig configures [Supervise].
type SupervisorConfig struct {
	// AssumeConnected starts the supervisor in the connected state. Set
	// it after a successful [ValidateConnection], which consumed the
	// first acknowledgment, so the first loss is reported.
	AssumeConnected bool

	// OnReady runs in its own goroutine after every disconnected →
	// connected transition. Optional.
	OnReady func()

	// OnDown runs in its own goroutine after every connected →
	// disconnected transition. Optional.
	OnDown func(err error)

	// OnTransition runs on the supervisor goroutine for every
	// transition, in event order, with the new state. It must not
	// block. Optional.
	OnTransition func(up bool)

	Logger *slog.Logger
}

// Supervise consumes events until ctx is cancelled, logging exactly one
// line per connected/disconnected transition. Repeated events of the
// current state log nothing above debug level. It never reconnects;
// autopaho does. Run it in its own goroutine.
func Supervise(ctx context.Context, events *EventStream, cfg SupervisorConfig) {
	w := connwatch.New(connwatch.WatcherConfig{
		Name:        "mqtt",
		InitiallyUp: cfg.AssumeConnected,
		OnReady:     cfg.OnReady,
		OnDown:      cfg.OnDown,
		Logger:      cfg.Logger,
	})

	for {
		ev, err := events.Next(ctx)
		if err != nil {
			return
		}

		var changed bool
		switch ev.Kind {
		case EventConnAck:
			changed = w.Up()
		case EventError:
			changed = w.Down(ev.Err)
		}
		if changed && cfg.OnTransition != nil {
			cfg.OnTransition(w.IsUp())
		}
	}
}
