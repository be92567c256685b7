package rabbitair

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRequest_Fields(t *testing.T) {
	req := SetRequest{
		Power:      Ptr(true),
		Mode:       Ptr(ModePollen),
		FilterLife: Ptr(1000),
		Color:      []int{1, 2, 3, 4, 5, 6, 7, 8, 9},
		Schedule:   Ptr(strings.Repeat("A", 24)),
	}

	fields, err := req.Fields()
	require.NoError(t, err)
	assert.Equal(t, map[Field]any{
		FieldPower:      true,
		FieldMode:       uint64(ModePollen),
		FieldFilterLife: uint64(1000),
		FieldColor:      []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9},
		FieldSchedule:   strings.Repeat("A", 24),
	}, fields)
}

func TestSetRequest_AllFieldsEncode(t *testing.T) {
	req := SetRequest{
		Power:             Ptr(false),
		Mode:              Ptr(ModeManual),
		Speed:             Ptr(SpeedSilent),
		Sensitivity:       Ptr(SensitivityLow),
		Ionizer:           Ptr(true),
		Moodlight:         Ptr(MoodlightPreset2),
		FilterCleaning:    Ptr(false),
		FilterReplacement: Ptr(false),
		FilterLife:        Ptr(0),
		FilterTimer:       Ptr(MaxFilterMinutes),
		Lights:            Ptr(LightsOff),
		Color:             make([]int, ColorSlots),
		LightSensorCtl:    Ptr(true),
		FilterCtl:         Ptr(true),
		Buzzer:            Ptr(false),
		ChildLock:         Ptr(true),
		TimerMode:         Ptr(TimerModeOn),
		Timer:             Ptr(MaxTimerMinutes),
		Schedule:          Ptr("012345012345012345AAAAAA"),
	}

	fields, err := req.Fields()
	require.NoError(t, err)
	assert.Len(t, fields, 19)

	_, err = EncodeFields(fields)
	assert.NoError(t, err)
}

func TestSetRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  SetRequest
	}{
		{"empty", SetRequest{}},
		{"speed out of range", SetRequest{Speed: Ptr(Speed(200))}},
		{"super silent", SetRequest{Speed: Ptr(SpeedSuperSilent)}},
		{"mode", SetRequest{Mode: Ptr(Mode(3))}},
		{"sensitivity", SetRequest{Sensitivity: Ptr(Sensitivity(3))}},
		{"moodlight", SetRequest{Moodlight: Ptr(Moodlight(5))}},
		{"lights", SetRequest{Lights: Ptr(Lights(3))}},
		{"timer mode", SetRequest{TimerMode: Ptr(TimerMode(3))}},
		{"filter life negative", SetRequest{FilterLife: Ptr(-1)}},
		{"filter life high", SetRequest{FilterLife: Ptr(MaxFilterMinutes + 1)}},
		{"filter timer high", SetRequest{FilterTimer: Ptr(MaxFilterMinutes + 1)}},
		{"timer", SetRequest{Timer: Ptr(MaxTimerMinutes + 1)}},
		{"color short", SetRequest{Color: []int{1}}},
		{"color value", SetRequest{Color: []int{0, 0, 0, 0, 0, 0, 0, 0, MaxColorValue + 1}}},
		{"color negative", SetRequest{Color: []int{0, 0, 0, 0, 0, 0, 0, 0, -1}}},
		{"schedule short", SetRequest{Schedule: Ptr("A")}},
		{"schedule char", SetRequest{Schedule: Ptr(strings.Repeat("B", 24))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Fields()
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestParseEnums(t *testing.T) {
	mode, err := ParseMode("Pollen")
	require.NoError(t, err)
	assert.Equal(t, ModePollen, mode)

	speed, err := ParseSpeed("Turbo")
	require.NoError(t, err)
	assert.Equal(t, SpeedTurbo, speed)

	moodlight, err := ParseMoodlight("Preset1")
	require.NoError(t, err)
	assert.Equal(t, MoodlightAuto, moodlight)

	_, err = ParseSpeed("Warp")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseLights("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "all_light_off", FieldLights.String())
	assert.Equal(t, "field(200)", Field(200).String())

	f, ok := FieldByName("lock")
	require.True(t, ok)
	assert.Equal(t, FieldChildLock, f)

	_, ok = FieldByName("warp")
	assert.False(t, ok)
}
