package rabbitair

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFields_WireBytes(t *testing.T) {
	// {3: true, 5: 2}
	data, err := EncodeFields(map[Field]any{
		FieldSpeed: SpeedLow,
		FieldPower: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "a203f50502", hex.EncodeToString(data))
}

func TestEncodeFields_Empty(t *testing.T) {
	data, err := EncodeFields(nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	state, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Len())
}

func TestEncodeFields_OutOfDomain(t *testing.T) {
	tests := []struct {
		name   string
		fields map[Field]any
	}{
		{"speed", map[Field]any{FieldSpeed: Speed(6)}},
		{"mode", map[Field]any{FieldMode: 3}},
		{"negative", map[Field]any{FieldTimer: -1}},
		{"timer", map[Field]any{FieldTimer: MaxTimerMinutes + 1}},
		{"filter life", map[Field]any{FieldFilterLife: MaxFilterMinutes + 1}},
		{"power type", map[Field]any{FieldPower: 1}},
		{"color length", map[Field]any{FieldColor: []int{1, 2, 3}}},
		{"color value", map[Field]any{FieldColor: []int{0, 0, 0, 0, 0, 0, 0, 0, 41}}},
		{"schedule length", map[Field]any{FieldSchedule: "AAA"}},
		{"schedule value", map[Field]any{FieldSchedule: "AAAAAAAAAAAAAAAAAAAAAAA6"}},
		{"model", map[Field]any{FieldModel: 0}},
		{"error code", map[Field]any{FieldError: 6}},
		{"rssi type", map[Field]any{FieldRSSI: "strong"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFields(tt.fields)
			assert.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestCodecCrypto_RoundTrip(t *testing.T) {
	token := testToken(t)
	nonces, err := NewNonceSource(nil)
	require.NoError(t, err)

	cmd := map[Field]any{
		FieldPower:             true,
		FieldMode:              ModeManual,
		FieldSpeed:             SpeedTurbo,
		FieldSensitivity:       SensitivityMedium,
		FieldIonizer:           false,
		FieldMoodlight:         MoodlightPreset3,
		FieldFilterCleaning:    true,
		FieldFilterReplacement: false,
		FieldFilterLife:        525600,
		FieldFilterTimer:       525580,
		FieldLights:            LightsAuto,
		FieldColor:             []int{31, 0, 20, 0, 22, 40, 22, 30, 6},
		FieldLightSensorCtl:    true,
		FieldFilterCtl:         false,
		FieldBuzzer:            true,
		FieldChildLock:         false,
		FieldTimerMode:         TimerModeSchedule,
		FieldTimer:             1440,
		FieldSchedule:          "0123455AAAAAAAAAAAAAAAAA",
		FieldRSSI:              -52,
		FieldFirmware:          []uint8{1, 0, 0, 4},
		FieldWiFiFirmware:      "2.3.17",
	}
	want := map[Field]any{
		FieldPower:             true,
		FieldMode:              uint64(ModeManual),
		FieldSpeed:             uint64(SpeedTurbo),
		FieldSensitivity:       uint64(SensitivityMedium),
		FieldIonizer:           false,
		FieldMoodlight:         uint64(MoodlightPreset3),
		FieldFilterCleaning:    true,
		FieldFilterReplacement: false,
		FieldFilterLife:        uint64(525600),
		FieldFilterTimer:       uint64(525580),
		FieldLights:            uint64(LightsAuto),
		FieldColor:             []uint64{31, 0, 20, 0, 22, 40, 22, 30, 6},
		FieldLightSensorCtl:    true,
		FieldFilterCtl:         false,
		FieldBuzzer:            true,
		FieldChildLock:         false,
		FieldTimerMode:         uint64(TimerModeSchedule),
		FieldTimer:             uint64(1440),
		FieldSchedule:          "0123455AAAAAAAAAAAAAAAAA",
		FieldRSSI:              int64(-52),
		FieldFirmware:          []uint64{1, 0, 0, 4},
		FieldWiFiFirmware:      "2.3.17",
	}

	plaintext, err := EncodeFields(cmd)
	require.NoError(t, err)

	nonce, err := nonces.Next()
	require.NoError(t, err)
	header := []byte("header")
	ct, tag, err := Seal(token, DirectionRequest, nonce, header, plaintext)
	require.NoError(t, err)
	opened, err := Open(token, DirectionRequest, nonce, header, ct, tag)
	require.NoError(t, err)

	state, err := DecodeState(opened)
	require.NoError(t, err)
	require.Equal(t, len(want), state.Len())
	for f, v := range want {
		got, ok := state.Value(f)
		require.True(t, ok, "missing %s", f)
		assert.Equal(t, v, got, "field %s", f)
	}
}

func TestDecodeState_UnknownTagIgnored(t *testing.T) {
	payload, err := encMode.Marshal(map[uint64]any{
		uint64(FieldSpeed): 3,
		99:                 []any{"new", map[string]int{"x": 1}},
		1000:               true,
	})
	require.NoError(t, err)

	state, err := DecodeState(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Len())
	assert.False(t, state.Has(Field(99)))

	speed, ok := state.Speed()
	require.True(t, ok)
	assert.Equal(t, SpeedMedium, speed)
}

func TestDecodeState_Malformed(t *testing.T) {
	valid := mustEncode(t, map[Field]any{FieldPower: true, FieldTimer: 30})

	tests := []struct {
		name    string
		payload []byte
	}{
		{"truncated", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte(nil), valid...), 0x00)},
		{"not a map", []byte{0x83, 0x01, 0x02, 0x03}},
		{"wrong type for known tag", []byte{0xA1, 0x03, 0x63, 'y', 'e', 's'}},
		{"negative uint", []byte{0xA1, 0x0E, 0x20}},
		{"duplicate key", []byte{0xA2, 0x03, 0xF5, 0x03, 0xF4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(tt.payload)
			assert.ErrorIs(t, err, ErrDecoding)
		})
	}
}

func TestDecodeState_ToleratesNewEnumValues(t *testing.T) {
	state, err := DecodeState([]byte{0xA1, 0x05, 0x09})
	require.NoError(t, err)
	speed, ok := state.Speed()
	require.True(t, ok)
	assert.Equal(t, "Speed(9)", speed.String())
}

func TestDecodeFields_KeepsUnknownTags(t *testing.T) {
	fields, err := DecodeFields([]byte{0xA2, 0x03, 0xF5, 0x18, 0x63, 0x01})
	require.NoError(t, err)
	assert.Equal(t, map[Field]any{FieldPower: true, Field(99): uint64(1)}, fields)
}

func TestDecodeInfo(t *testing.T) {
	payload, err := encMode.Marshal(map[uint64]any{
		1:  "purifier",
		2:  "2.3.17",
		4:  "01:23:45:67:89:AB",
		6:  100,
		12: map[uint64]int{1: -68, 2: -78, 3: -58, 4: -66},
		42: "ignored",
	})
	require.NoError(t, err)

	info, err := DecodeInfo(payload)
	require.NoError(t, err)
	assert.Equal(t, "purifier", info.Name)
	assert.Equal(t, uint64(100), info.Uptime)
	assert.Nil(t, info.CloudUptime)
	require.NotNil(t, info.RSSI)
	assert.Equal(t, int64(-66), info.RSSI.Average)

	_, err = DecodeInfo(nil)
	assert.ErrorIs(t, err, ErrDecoding)
}
