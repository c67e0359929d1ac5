package command

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/duration"
	"github.com/xbeacon-protocol/xbeacon-go/pkg/frame"
)

func TestSetLightLevel(t *testing.T) {
	p, err := SetLightLevel(50, 700*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, frame.OpSetLightLevel, p.Op)
	require.Len(t, p.Params, 3)
	assert.Equal(t, frame.IntensityRaw(50), binary.LittleEndian.Uint16(p.Params[:2]))

	// 700ms is an exact fade-table entry; the index must round-trip to it.
	idx, actual := duration.FadeTimes.Nearest(700 * time.Millisecond)
	assert.Equal(t, 700*time.Millisecond, actual)
	assert.Equal(t, idx, p.Params[2])
}

func TestSetLightLevelRange(t *testing.T) {
	_, err := SetLightLevel(-0.1, 0)
	assert.ErrorIs(t, err, ErrIntensityRange)
	_, err = SetLightLevel(100.01, 0)
	assert.ErrorIs(t, err, ErrIntensityRange)

	p, err := SetLightLevel(100, 0)
	require.NoError(t, err)
	assert.Equal(t, frame.IntensityRaw(100), binary.LittleEndian.Uint16(p.Params[:2]))
}

func TestStopFade(t *testing.T) {
	p := StopFade()
	assert.Equal(t, frame.OpStopFade, p.Op)
	assert.Empty(t, p.Params)
}

func TestSensorControlMode(t *testing.T) {
	p := SensorControlMode(2, 30*time.Minute)
	assert.Equal(t, frame.OpSensorControlMode, p.Op)
	require.Len(t, p.Params, 2)
	assert.Equal(t, uint8(2), p.Params[0])

	idx, _ := duration.OverrideTimes.Nearest(30 * time.Minute)
	assert.Equal(t, idx, p.Params[1])
}

func TestRecallScene(t *testing.T) {
	p := RecallScene(0x0204, time.Second)
	assert.Equal(t, frame.OpRecallScene, p.Op)
	require.Len(t, p.Params, 3)
	assert.Equal(t, uint16(0x0204), binary.LittleEndian.Uint16(p.Params[:2]))
}

func TestIndicate(t *testing.T) {
	p, err := Indicate(time.Second, 3, 25, 5)
	require.NoError(t, err)
	assert.Equal(t, frame.OpIndicate, p.Op)
	require.Len(t, p.Params, 6)

	idx, _ := duration.IndicatePeriods.Nearest(time.Second)
	assert.Equal(t, idx, p.Params[0])
	assert.Equal(t, uint8(3), p.Params[1])
	assert.Equal(t, frame.IntensityRaw(25), binary.LittleEndian.Uint16(p.Params[2:4]))
	assert.Equal(t, frame.IntensityRaw(5), binary.LittleEndian.Uint16(p.Params[4:6]))

	_, err = Indicate(time.Second, 3, 101, 0)
	assert.ErrorIs(t, err, ErrIntensityRange)
	_, err = Indicate(time.Second, 3, 50, -1)
	assert.ErrorIs(t, err, ErrIntensityRange)
}

func TestEnableConnections(t *testing.T) {
	p := EnableConnections(30 * time.Second)
	require.Len(t, p.Params, 2)
	assert.Equal(t, uint8(1), p.Params[0])
	idx, _ := duration.OverrideTimes.Nearest(30 * time.Second)
	assert.Equal(t, idx, p.Params[1])

	assert.Equal(t, []byte{0, 0}, EnableConnections(0).Params)
}

func TestRequestAdv(t *testing.T) {
	p := RequestAdv(PageStatus, PageHistory)
	assert.Equal(t, []uint8{frame.TagStatus, frame.TagHistory}, p.Pages)

	// The page selectors are the payload tags; the two spaces must not
	// drift apart.
	assert.Equal(t, frame.TagSensor, PageSensor)
}

func TestBroadcastPayloadsFitModernFrame(t *testing.T) {
	builders := []frame.Payload{
		StopFade(),
		SensorControlMode(1, time.Minute),
		RecallScene(1, 0),
		EnableConnections(30 * time.Second),
		GroupInfoRequest(),
		RequestAdv(PageStatus, PageHistory),
	}
	set, err := SetLightLevel(100, 10*time.Minute)
	require.NoError(t, err)
	builders = append(builders, set)

	for _, p := range builders {
		_, err := frame.EncodeModern(frame.BroadcastAddress, 0, p, nil)
		assert.NoError(t, err, "op 0x%02x", p.Tag())
	}
}
