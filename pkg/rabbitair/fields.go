package rabbitair

import "fmt"

// Field is the wire tag of a device state field.
type Field uint8

// State field tags.
const (
	FieldModel             Field = 1
	FieldFirmware          Field = 2
	FieldPower             Field = 3
	FieldMode              Field = 4
	FieldSpeed             Field = 5
	FieldQuality           Field = 6
	FieldSensitivity       Field = 7
	FieldIonizer           Field = 8
	FieldIdle              Field = 9
	FieldMoodlight         Field = 10
	FieldSleep             Field = 11
	FieldFilterCleaning    Field = 12
	FieldFilterReplacement Field = 13
	FieldFilterLife        Field = 14
	FieldLightSensor       Field = 15
	FieldParticulateSensor Field = 16
	FieldFilterTimer       Field = 17
	FieldLights            Field = 18
	FieldError             Field = 19
	FieldTagState          Field = 20
	FieldTagUID            Field = 21
	FieldFilterType        Field = 22
	FieldPMSensor          Field = 23
	FieldColor             Field = 24
	FieldLightSensorCtl    Field = 25
	FieldFilterCtl         Field = 26
	FieldBuzzer            Field = 27
	FieldGas               Field = 28
	FieldChildLock         Field = 29
	FieldOpen              Field = 30
	FieldTimerMode         Field = 31
	FieldTimer             Field = 32
	FieldSchedule          Field = 33
	FieldRSSI              Field = 34
	FieldWiFiFirmware      Field = 35
)

// Limits enforced when encoding.
const (
	MaxFilterMinutes = 525600
	MaxTimerMinutes  = 1440
	ColorSlots       = 9
	MaxColorValue    = 40
	ScheduleHours    = 24
)

type fieldKind uint8

const (
	kindBool fieldKind = iota
	kindUint
	kindInt
	kindString
	kindUintList
)

type fieldSpec struct {
	name  string
	key   string // JSON key when it differs from name
	kind  fieldKind
	min   uint64
	max   uint64 // 0 means unbounded
	check func(v any) error
}

var fieldSpecs = map[Field]fieldSpec{
	FieldModel:             {name: "model", kind: kindUint, min: uint64(ModelMinusA2), max: uint64(ModelA3)},
	FieldFirmware:          {name: "firmware", kind: kindUintList},
	FieldPower:             {name: "power", kind: kindBool},
	FieldMode:              {name: "mode", kind: kindUint, max: uint64(ModeManual)},
	FieldSpeed:             {name: "speed", kind: kindUint, max: uint64(SpeedTurbo)},
	FieldQuality:           {name: "quality", kind: kindUint, max: uint64(QualityHighest) + 1},
	FieldSensitivity:       {name: "sensitivity", kind: kindUint, max: uint64(SensitivityLow)},
	FieldIonizer:           {name: "ionizer", kind: kindBool},
	FieldIdle:              {name: "idle", kind: kindBool},
	FieldMoodlight:         {name: "moodlight", kind: kindUint, max: uint64(MoodlightPreset3)},
	FieldSleep:             {name: "sleep", kind: kindBool},
	FieldFilterCleaning:    {name: "filter_cleaning", kind: kindBool},
	FieldFilterReplacement: {name: "filter_replacement", kind: kindBool},
	FieldFilterLife:        {name: "filter_life", kind: kindUint, max: MaxFilterMinutes},
	FieldLightSensor:       {name: "light_sensor", kind: kindBool},
	FieldParticulateSensor: {name: "particulate_sensor", kind: kindUint},
	FieldFilterTimer:       {name: "filter_timer", kind: kindUint, max: MaxFilterMinutes},
	FieldLights:            {name: "all_light_off", kind: kindUint, max: uint64(LightsAuto)},
	FieldError:             {name: "error", kind: kindUint, check: checkErrorCode},
	FieldTagState:          {name: "tag_state", kind: kindUint},
	FieldTagUID:            {name: "tag_uid", kind: kindUintList},
	FieldFilterType:        {name: "filter_type", kind: kindUint, max: uint64(FilterTypePetAllergy)},
	FieldPMSensor:          {name: "pm_sensor", kind: kindUintList},
	FieldColor:             {name: "color", kind: kindUintList, check: checkColor},
	FieldLightSensorCtl:    {name: "lsens_ctl", kind: kindBool},
	FieldFilterCtl:         {name: "filter_ctl", kind: kindBool},
	FieldBuzzer:            {name: "buzzer", kind: kindBool},
	FieldGas:               {name: "gas", kind: kindUint, max: uint64(GasLevel4)},
	FieldChildLock:         {name: "lock", kind: kindBool},
	FieldOpen:              {name: "open", kind: kindBool},
	FieldTimerMode:         {name: "timer_mode", kind: kindUint, max: uint64(TimerModeSchedule)},
	FieldTimer:             {name: "timer", kind: kindUint, max: MaxTimerMinutes},
	FieldSchedule:          {name: "schedule", kind: kindString, check: checkSchedule},
	FieldRSSI:              {name: "rssi", kind: kindInt},
	FieldWiFiFirmware:      {name: "wifi_firmware", key: "v", kind: kindString},
}

// String returns the field's wire name, or its numeric tag if unknown.
func (f Field) String() string {
	if spec, ok := fieldSpecs[f]; ok {
		return spec.name
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// wireKey is the field's key in firmware JSON payloads.
func (f Field) wireKey() string {
	spec, ok := fieldSpecs[f]
	if !ok {
		return ""
	}
	if spec.key != "" {
		return spec.key
	}
	return spec.name
}

// fieldByWireKey looks up a field by its firmware JSON key.
func fieldByWireKey(key string) (Field, bool) {
	for f := range fieldSpecs {
		if f.wireKey() == key {
			return f, true
		}
	}
	return 0, false
}

// Known reports whether the field is part of the current layout.
func (f Field) Known() bool {
	_, ok := fieldSpecs[f]
	return ok
}

// FieldByName looks up a field by its wire name.
func FieldByName(name string) (Field, bool) {
	for f, spec := range fieldSpecs {
		if spec.name == name {
			return f, true
		}
	}
	return 0, false
}

func checkColor(v any) error {
	colors := v.([]uint64)
	if len(colors) != ColorSlots {
		return fmt.Errorf("color needs %d values, got %d", ColorSlots, len(colors))
	}
	for _, c := range colors {
		if c > MaxColorValue {
			return fmt.Errorf("color values must be in the range 0-%d", MaxColorValue)
		}
	}
	return nil
}

func checkSchedule(v any) error {
	s := v.(string)
	if len(s) != ScheduleHours {
		return fmt.Errorf("schedule needs %d characters, got %d", ScheduleHours, len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '5') && c != 'A' {
			return fmt.Errorf("schedule values must be 0-5 or A, got %q", c)
		}
	}
	return nil
}

func checkErrorCode(v any) error {
	if _, ok := errorCodeNames[ErrorCode(v.(uint64))]; !ok {
		return fmt.Errorf("unknown error code %d", v.(uint64))
	}
	return nil
}

func enumString(names []string, v uint8, typ string) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", typ, v)
}

// Model identifies the purifier hardware.
type Model uint8

const (
	ModelMinusA2 Model = 1
	ModelBioGS   Model = 2
	ModelA3      Model = 3
)

var modelNames = []string{"", "MinusA2", "BioGS", "A3"}

func (m Model) String() string { return enumString(modelNames, uint8(m), "Model") }

// Mode is the mode of operation.
type Mode uint8

const (
	ModeAuto   Mode = 0
	ModePollen Mode = 1
	ModeManual Mode = 2
)

var modeNames = []string{"Auto", "Pollen", "Manual"}

func (m Mode) String() string { return enumString(modeNames, uint8(m), "Mode") }

// ParseMode parses a case-sensitive mode name such as "Auto".
func ParseMode(s string) (Mode, error) {
	v, err := parseEnum(modeNames, s, "mode")
	return Mode(v), err
}

// Speed is the fan speed. SpeedSuperSilent is reported by the device but
// cannot be selected manually.
type Speed uint8

const (
	SpeedSuperSilent Speed = 0
	SpeedSilent      Speed = 1
	SpeedLow         Speed = 2
	SpeedMedium      Speed = 3
	SpeedHigh        Speed = 4
	SpeedTurbo       Speed = 5
)

var speedNames = []string{"SuperSilent", "Silent", "Low", "Medium", "High", "Turbo"}

func (s Speed) String() string { return enumString(speedNames, uint8(s), "Speed") }

// ParseSpeed parses a speed name such as "Low".
func ParseSpeed(s string) (Speed, error) {
	v, err := parseEnum(speedNames, s, "speed")
	return Speed(v), err
}

// Quality is the air quality reading.
type Quality uint8

const (
	QualityLowest  Quality = 0 // not used by current firmware
	QualityLow     Quality = 1
	QualityMedium  Quality = 2
	QualityHigh    Quality = 3
	QualityHighest Quality = 4
)

var qualityNames = []string{"Lowest", "Low", "Medium", "High", "Highest"}

func (q Quality) String() string { return enumString(qualityNames, uint8(q), "Quality") }

// Sensitivity is the sensor sensitivity level.
type Sensitivity uint8

const (
	SensitivityHigh   Sensitivity = 0
	SensitivityMedium Sensitivity = 1
	SensitivityLow    Sensitivity = 2
)

var sensitivityNames = []string{"High", "Medium", "Low"}

func (s Sensitivity) String() string {
	return enumString(sensitivityNames, uint8(s), "Sensitivity")
}

// ParseSensitivity parses a sensitivity name such as "Medium".
func ParseSensitivity(s string) (Sensitivity, error) {
	v, err := parseEnum(sensitivityNames, s, "sensitivity")
	return Sensitivity(v), err
}

// Moodlight is the Mood Light mode. The A3 reports presets where older
// models report Auto, so value 2 is both MoodlightAuto and MoodlightPreset1.
type Moodlight uint8

const (
	MoodlightOff     Moodlight = 0
	MoodlightOn      Moodlight = 1
	MoodlightAuto    Moodlight = 2
	MoodlightPreset1 Moodlight = 2
	MoodlightPreset2 Moodlight = 3
	MoodlightPreset3 Moodlight = 4
)

var moodlightNames = []string{"Off", "On", "Auto", "Preset2", "Preset3"}

func (m Moodlight) String() string { return enumString(moodlightNames, uint8(m), "Moodlight") }

// ParseMoodlight parses a Mood Light name. "Preset1" is accepted as an alias of "Auto".
func ParseMoodlight(s string) (Moodlight, error) {
	if s == "Preset1" {
		return MoodlightPreset1, nil
	}
	v, err := parseEnum(moodlightNames, s, "moodlight")
	return Moodlight(v), err
}

// Lights controls the panel lights.
type Lights uint8

const (
	LightsOff  Lights = 0
	LightsOn   Lights = 1
	LightsAuto Lights = 2
)

var lightsNames = []string{"Off", "On", "Auto"}

func (l Lights) String() string { return enumString(lightsNames, uint8(l), "Lights") }

// ParseLights parses a light setting name.
func ParseLights(s string) (Lights, error) {
	v, err := parseEnum(lightsNames, s, "lights")
	return Lights(v), err
}

// ErrorCode is an internal device fault code.
type ErrorCode uint8

const (
	ErrorCodeNone       ErrorCode = 0
	ErrorCodeDustSensor ErrorCode = 1
	ErrorCodeGasSensor  ErrorCode = 2
	ErrorCodeGasAndDust ErrorCode = 3
	ErrorCodeFanLow     ErrorCode = 4
	ErrorCodeNFC        ErrorCode = 5
	ErrorCodeHallSensor ErrorCode = 8
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeNone:       "NoError",
	ErrorCodeDustSensor: "DustSensor",
	ErrorCodeGasSensor:  "GasSensor",
	ErrorCodeGasAndDust: "GasAndDust",
	ErrorCodeFanLow:     "FanLow",
	ErrorCodeNFC:        "NFC",
	ErrorCodeHallSensor: "HallSensor",
}

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(e))
}

// FilterType is the installed filter.
type FilterType uint8

const (
	FilterTypeUnknown       FilterType = 0
	FilterTypeToxinAbsorber FilterType = 1
	FilterTypeOdorRemover   FilterType = 2
	FilterTypeGermDefense   FilterType = 3
	FilterTypePetAllergy    FilterType = 4
)

var filterTypeNames = []string{"Unknown", "ToxinAbsorber", "OdorRemover", "GermDefense", "PetAllergy"}

func (f FilterType) String() string { return enumString(filterTypeNames, uint8(f), "FilterType") }

// Gas is the gas sensor reading.
type Gas uint8

const (
	GasPreheat Gas = 0
	GasLevel1  Gas = 1
	GasLevel2  Gas = 2
	GasLevel3  Gas = 3
	GasLevel4  Gas = 4
)

var gasNames = []string{"Preheat", "Level1", "Level2", "Level3", "Level4"}

func (g Gas) String() string { return enumString(gasNames, uint8(g), "Gas") }

// TimerMode selects how the shutdown timer operates.
type TimerMode uint8

const (
	TimerModeOff      TimerMode = 0
	TimerModeOn       TimerMode = 1
	TimerModeSchedule TimerMode = 2
)

var timerModeNames = []string{"Off", "On", "Schedule"}

func (t TimerMode) String() string { return enumString(timerModeNames, uint8(t), "TimerMode") }

// ParseTimerMode parses a timer mode name.
func ParseTimerMode(s string) (TimerMode, error) {
	v, err := parseEnum(timerModeNames, s, "timer mode")
	return TimerMode(v), err
}

func parseEnum(names []string, s, what string) (uint8, error) {
	for i, name := range names {
		if name != "" && name == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrValidation, what, s)
}
