package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.DeviceAddress != "" {
		attrs = append(attrs, slog.String("device", event.DeviceAddress))
	}
	if event.RadioAddress != "" {
		attrs = append(attrs, slog.String("radio", event.RadioAddress))
	}

	// Add type-specific attributes
	switch {
	case event.Advertisement != nil:
		attrs = append(attrs,
			slog.Int("adv_size", event.Advertisement.Size),
			slog.Int("rssi", int(event.Advertisement.RSSI)),
		)
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("frame_kind", event.Frame.Kind),
			slog.Bool("encrypted", event.Frame.Encrypted),
		)
		if event.Frame.PayloadTag != nil {
			attrs = append(attrs, slog.Uint64("payload_tag", uint64(*event.Frame.PayloadTag)))
		}
		if event.Frame.Sequence != nil {
			attrs = append(attrs, slog.Uint64("sequence", uint64(*event.Frame.Sequence)))
		}
		if event.Frame.Rejected {
			attrs = append(attrs, slog.Bool("rejected", true))
		}
	case event.Attribute != nil:
		attrs = append(attrs,
			slog.Uint64("handle", uint64(event.Attribute.Handle)),
			slog.Int("size", event.Attribute.Size),
			slog.Bool("notification", event.Attribute.Notification),
		)
		if event.Attribute.UUID != "" {
			attrs = append(attrs, slog.String("uuid", event.Attribute.UUID))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.Uint64("op", uint64(event.Command.Op)),
			slog.String("target", event.Command.Target),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
