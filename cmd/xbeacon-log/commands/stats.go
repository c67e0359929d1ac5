package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Devices           map[string]*DeviceStats
	RejectedFrames    int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device, keyed by radio address.
type DeviceStats struct {
	FirstSeen      time.Time
	LastSeen       time.Time
	Events         int
	DeviceAddress  string
	Advertisements int
	Commands       int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Devices:           make(map[string]*DeviceStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.Frame != nil && event.Frame.Rejected {
			stats.RejectedFrames++
		}
		if event.Error != nil {
			stats.Errors++
		}

		// Per-device stats keyed by radio address
		if event.RadioAddress == "" {
			continue
		}
		dev, ok := stats.Devices[event.RadioAddress]
		if !ok {
			dev = &DeviceStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Devices[event.RadioAddress] = dev
		}
		dev.Events++
		if event.Timestamp.After(dev.LastSeen) {
			dev.LastSeen = event.Timestamp
		}
		if event.DeviceAddress != "" && dev.DeviceAddress == "" {
			dev.DeviceAddress = event.DeviceAddress
		}
		if event.Advertisement != nil {
			dev.Advertisements++
		}
		if event.Command != nil {
			dev.Commands++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== XBeacon Protocol Log Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by layer
	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerRadio, log.LayerFrame, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryAdvertisement, log.CategoryAttribute, log.CategoryState, log.CategoryCommand, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Events by direction
	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Devices
	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	if len(stats.Devices) > 0 {
		type devInfo struct {
			radio string
			stats *DeviceStats
		}
		devs := make([]devInfo, 0, len(stats.Devices))
		for radio, ds := range stats.Devices {
			devs = append(devs, devInfo{radio, ds})
		}
		sort.Slice(devs, func(i, j int) bool {
			return devs[i].stats.FirstSeen.Before(devs[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, d := range devs {
			duration := d.stats.LastSeen.Sub(d.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, span %s\n", d.radio, d.stats.Events, duration)
			if d.stats.DeviceAddress != "" {
				fmt.Fprintf(w, "           Address: %s\n", d.stats.DeviceAddress)
			}
			if d.stats.Advertisements > 0 {
				fmt.Fprintf(w, "           Advertisements: %d\n", d.stats.Advertisements)
			}
			if d.stats.Commands > 0 {
				fmt.Fprintf(w, "           Commands: %d\n", d.stats.Commands)
			}
		}
	}

	if stats.RejectedFrames > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Rejected Frames: %d\n", stats.RejectedFrames)
	}
	if stats.Errors > 0 {
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
