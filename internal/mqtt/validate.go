package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultValidateTimeout caps how long startup waits for the broker.
const DefaultValidateTimeout = 10 * time.Second

// validatePollInterval bounds each wait for the next event.
const validatePollInterval = 100 * time.Millisecond

// ValidateConnection blocks until the broker acknowledges the session
// on events. It fails with an error wrapping [ErrValidation] and the
// transport's message on the first transport error, and with
// [ErrConnectTimeout] if nothing conclusive arrives within timeout.
// Events that say nothing about the session are skipped.
//
// On success the stream is positioned after the acknowledgment and is
// ready to be handed to [Supervise].
func ValidateConnection(ctx context.Context, events *EventStream, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	logger.Info("mqtt validating connection to broker", "timeout", timeout)

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrConnectTimeout
		}

		pollCtx, cancel := context.WithTimeout(ctx, min(validatePollInterval, remaining))
		ev, err := events.Next(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		switch ev.Kind {
		case EventConnAck:
			logger.Info("mqtt connection validated")
			return nil
		case EventError:
			return fmt.Errorf("%w: %w", ErrValidation, ev.Err)
		}
	}
}
