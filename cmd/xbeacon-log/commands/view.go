// Package commands implements the xbeacon-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

// RunView reads the log file and writes matching events to w in
// human-readable form.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, log.Filter{
		Layer:     filter.Layer,
		Direction: filter.Direction,
		Category:  filter.Category,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	dir := event.Direction.String()

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, connID, dir, event.Layer.String(), eventTypeLabel(event))

	if event.DeviceAddress != "" || event.RadioAddress != "" {
		fmt.Fprintf(w, "  Device: %s", event.DeviceAddress)
		if event.RadioAddress != "" {
			fmt.Fprintf(w, "  Radio: %s", event.RadioAddress)
		}
		fmt.Fprintln(w)
	}

	switch {
	case event.Advertisement != nil:
		formatAdvertisementDetails(w, event.Advertisement)
		if event.Frame != nil {
			formatFrameDetails(w, event.Frame)
		}
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Attribute != nil:
		formatAttributeDetails(w, event.Attribute)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Command != nil:
		formatCommandDetails(w, event.Command)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventTypeLabel names the event for the header line.
func eventTypeLabel(event log.Event) string {
	switch {
	case event.Advertisement != nil:
		return "Advertisement"
	case event.Frame != nil:
		return "Frame"
	case event.Attribute != nil:
		return "Attribute"
	case event.StateChange != nil:
		return "State"
	case event.Command != nil:
		return "Command"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatAdvertisementDetails(w io.Writer, adv *log.AdvertisementEvent) {
	fmt.Fprintf(w, "  Size: %d bytes", adv.Size)
	if adv.RSSI != 0 {
		fmt.Fprintf(w, "  RSSI: %d dBm", adv.RSSI)
	}
	fmt.Fprintln(w)
	if len(adv.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(adv.Data))
		if adv.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Kind: %s", frame.Kind)
	if frame.PayloadTag != nil {
		fmt.Fprintf(w, "  Tag: 0x%02x", *frame.PayloadTag)
	}
	if frame.Sequence != nil {
		fmt.Fprintf(w, "  Seq: %d", *frame.Sequence)
	}
	if frame.Encrypted {
		fmt.Fprintf(w, "  encrypted")
	}
	if frame.Rejected {
		fmt.Fprintf(w, "  REJECTED")
	}
	fmt.Fprintln(w)
}

func formatAttributeDetails(w io.Writer, attr *log.AttributeEvent) {
	fmt.Fprintf(w, "  Handle: 0x%04x  Size: %d bytes", attr.Handle, attr.Size)
	if attr.UUID != "" {
		fmt.Fprintf(w, "  UUID: %s", attr.UUID)
	}
	if attr.Notification {
		fmt.Fprintf(w, "  notification")
	}
	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  (%s)", sc.Reason)
	}
	fmt.Fprintln(w)
}

func formatCommandDetails(w io.Writer, cmd *log.CommandEvent) {
	fmt.Fprintf(w, "  Op: 0x%02x  Target: %s", cmd.Op, cmd.Target)
	if len(cmd.Params) > 0 {
		fmt.Fprintf(w, "  Params: %s", hex.EncodeToString(cmd.Params))
	}
	fmt.Fprintln(w)
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s  %s\n", e.Layer.String(), e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// ParseLayerFlag parses a layer name from the command line.
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "radio":
		return log.LayerRadio, nil
	case "frame":
		return log.LayerFrame, nil
	case "engine":
		return log.LayerEngine, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (radio, frame, engine)", s)
	}
}

// ParseDirectionFlag parses a direction name from the command line.
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

// ParseCategoryFlag parses a category name from the command line.
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "advertisement", "adv":
		return log.CategoryAdvertisement, nil
	case "attribute", "attr":
		return log.CategoryAttribute, nil
	case "state":
		return log.CategoryState, nil
	case "command", "cmd":
		return log.CategoryCommand, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (advertisement, attribute, state, command, error)", s)
	}
}
