package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/duration"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

// Broadcast-builder errors.
var (
	// ErrIntensityRange indicates an intensity outside 0-100 percent.
	ErrIntensityRange = errors.New("intensity out of range")
)

// Telemetry pages a device can be asked to re-broadcast, identified by
// the payload tag the page carries on the air.
const (
	PageStatus  = frame.TagStatus
	PageHistory = frame.TagHistory
	PageSensor  = frame.TagSensor
)

// SetLightLevel builds the set-intensity operation. Intensity is in
// percent; the fade duration snaps to the nearest fade-table entry.
func SetLightLevel(intensity float64, fade time.Duration) (*frame.ControlPayload, error) {
	if intensity < 0 || intensity > 100 {
		return nil, fmt.Errorf("%w: %.2f%%", ErrIntensityRange, intensity)
	}
	fadeIdx, _ := duration.FadeTimes.Nearest(fade)

	params := binary.LittleEndian.AppendUint16(nil, frame.IntensityRaw(intensity))
	params = append(params, fadeIdx)
	return &frame.ControlPayload{Op: frame.OpSetLightLevel, Params: params}, nil
}

// StopFade builds the operation that freezes a fade at its current level.
func StopFade() *frame.ControlPayload {
	return &frame.ControlPayload{Op: frame.OpStopFade}
}

// SensorControlMode builds the sensor-override operation. The override
// duration snaps to the nearest override-table entry.
func SensorControlMode(mode uint8, override time.Duration) *frame.ControlPayload {
	idx, _ := duration.OverrideTimes.Nearest(override)
	return &frame.ControlPayload{Op: frame.OpSensorControlMode, Params: []byte{mode, idx}}
}

// RecallScene builds the scene-recall operation.
func RecallScene(scene uint16, fade time.Duration) *frame.ControlPayload {
	fadeIdx, _ := duration.FadeTimes.Nearest(fade)
	params := binary.LittleEndian.AppendUint16(nil, scene)
	params = append(params, fadeIdx)
	return &frame.ControlPayload{Op: frame.OpRecallScene, Params: params}
}

// Indicate builds the visual-identify operation: the device blinks count
// times between the high and low levels, one blink per period.
func Indicate(period time.Duration, count uint8, high, low float64) (*frame.ControlPayload, error) {
	if high < 0 || high > 100 {
		return nil, fmt.Errorf("%w: %.2f%%", ErrIntensityRange, high)
	}
	if low < 0 || low > 100 {
		return nil, fmt.Errorf("%w: %.2f%%", ErrIntensityRange, low)
	}
	idx, _ := duration.IndicatePeriods.Nearest(period)
	params := []byte{idx, count}
	params = binary.LittleEndian.AppendUint16(params, frame.IntensityRaw(high))
	params = binary.LittleEndian.AppendUint16(params, frame.IntensityRaw(low))
	return &frame.ControlPayload{Op: frame.OpIndicate, Params: params}, nil
}

// EnableConnections builds the operation that opens the connectable
// window on the addressed devices for the given duration, snapped to the
// nearest override-table entry. A non-positive window closes it.
func EnableConnections(window time.Duration) *frame.ControlPayload {
	if window <= 0 {
		return &frame.ControlPayload{Op: frame.OpEnableConnections, Params: []byte{0, 0}}
	}
	idx, _ := duration.OverrideTimes.Nearest(window)
	return &frame.ControlPayload{Op: frame.OpEnableConnections, Params: []byte{1, idx}}
}

// GroupInfoRequest builds the operation asking devices to broadcast their
// group tables.
func GroupInfoRequest() *frame.ControlPayload {
	return &frame.ControlPayload{Op: frame.OpGroupInfoRequest}
}

// RequestAdv builds the request for the listed telemetry pages.
func RequestAdv(pages ...uint8) *frame.RequestAdvPayload {
	return &frame.RequestAdvPayload{Pages: pages}
}
