package mqtt

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/eclipse/paho.golang/paho"
)

// fakeSession records every publish and fails them all when err is set.
type fakeSession struct {
	mu        sync.Mutex
	published []*paho.Publish
	err       error
}

func (f *fakeSession) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	if f.err != nil {
		return nil, f.err
	}
	return &paho.PublishResponse{}, nil
}

func (f *fakeSession) messages() []*paho.Publish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*paho.Publish(nil), f.published...)
}

// recordHandler is an slog.Handler that keeps every record at or above
// its level.
type recordHandler struct {
	mu      sync.Mutex
	level   slog.Level
	records []slog.Record
}

func (h *recordHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }
func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, r.Message)
	}
	return out
}

func (h *recordHandler) count(msg string) int {
	n := 0
	for _, m := range h.messages() {
		if m == msg {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
