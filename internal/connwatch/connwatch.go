// Package connwatch tracks the up/down state of a single long-lived
// connection and reports each transition exactly once.
//
// A Watcher does no probing and no reconnecting of its own. Its owner
// feeds it observations ([Watcher.Up], [Watcher.Down]) as they arrive
// from the transport; the Watcher turns that stream into edge-triggered
// transitions:
//
//	down --Up()--> up      logs "connection established", calls OnReady
//	up --Down(err)--> down logs "connection lost, retrying", calls OnDown
//
// Repeated observations of the current state are absorbed. A Watcher is
// owned by one goroutine and is not safe for concurrent use; consumers
// that need the state learn it through the callbacks.
package connwatch

import (
	"log/slog"
)

// WatcherConfig configures a single connection watcher.
type WatcherConfig struct {
	// Name is a human-readable identifier for logging (e.g., "mqtt").
	Name string

	// InitiallyUp seeds the state. The zero value starts down.
	InitiallyUp bool

	// OnReady is called when the connection transitions from down to up.
	// Called in a separate goroutine; must not block indefinitely. Optional.
	OnReady func()

	// OnDown is called when the connection transitions from up to down.
	// Called in a separate goroutine; must not block indefinitely. Optional.
	OnDown func(err error)

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Watcher holds the current state of one connection.
type Watcher struct {
	config WatcherConfig
	up     bool
}

// New creates a Watcher.
//
// Panics if Name is empty; that is a programming error.
func New(cfg WatcherConfig) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: WatcherConfig.Name must not be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{config: cfg, up: cfg.InitiallyUp}
}

// IsUp reports the current state.
func (w *Watcher) IsUp() bool {
	return w.up
}

// Up records a successful connection. It reports whether this was a
// down → up transition.
func (w *Watcher) Up() bool {
	if w.up {
		return false
	}
	w.up = true
	w.config.Logger.Info("connection established", "service", w.config.Name)
	if w.config.OnReady != nil {
		go w.config.OnReady()
	}
	return true
}

// Down records a transport failure. Every error is logged at debug level;
// only an up → down transition is logged at warn level and reported.
func (w *Watcher) Down(err error) bool {
	w.config.Logger.Debug("connection error",
		"service", w.config.Name,
		"error", err,
	)
	if !w.up {
		return false
	}
	w.up = false
	w.config.Logger.Warn("connection lost, retrying",
		"service", w.config.Name,
		"error", err,
	)
	if w.config.OnDown != nil {
		go w.config.OnDown(err)
	}
	return true
}
