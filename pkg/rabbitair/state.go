package rabbitair

import (
	"fmt"
	"slices"
	"strings"
)

// State is a snapshot of the fields reported by the device. Fields the
// device did not report are absent; every accessor returns false for them.
//
// Decoding checks wire types only. An enum field carrying a value outside
// the known set, such as a mode added by newer firmware, is kept as is: the
// accessor returns it with ok=true and its String method prints the number,
// e.g. "Mode(10)". Compare against the declared constants before acting on it.
type State struct {
	values map[Field]any
}

// Has reports whether the device reported f.
func (s *State) Has(f Field) bool {
	_, ok := s.values[f]
	return ok
}

// Fields returns the reported fields in tag order.
func (s *State) Fields() []Field {
	fields := make([]Field, 0, len(s.values))
	for f := range s.values {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// Value returns the decoded value of f. Lists are copied.
func (s *State) Value(f Field) (any, bool) {
	v, ok := s.values[f]
	if list, isList := v.([]uint64); isList {
		return slices.Clone(list), ok
	}
	return v, ok
}

// Len returns the number of reported fields.
func (s *State) Len() int { return len(s.values) }

func (s *State) boolean(f Field) (bool, bool) {
	v, ok := s.values[f].(bool)
	return v, ok
}

func (s *State) uint(f Field) (uint64, bool) {
	v, ok := s.values[f].(uint64)
	return v, ok
}

func (s *State) list(f Field) ([]uint64, bool) {
	v, ok := s.values[f].([]uint64)
	return slices.Clone(v), ok
}

func (s *State) str(f Field) (string, bool) {
	v, ok := s.values[f].(string)
	return v, ok
}

// Model is the device model.
func (s *State) Model() (Model, bool) {
	v, ok := s.uint(FieldModel)
	return Model(v), ok
}

// MainFirmware is the main board firmware version, e.g. "1.0.0.4".
func (s *State) MainFirmware() (string, bool) {
	v, ok := s.list(FieldFirmware)
	if !ok {
		return "", false
	}
	parts := make([]string, len(v))
	for i, p := range v {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, "."), true
}

func (s *State) Power() (bool, bool) { return s.boolean(FieldPower) }

func (s *State) Mode() (Mode, bool) {
	v, ok := s.uint(FieldMode)
	return Mode(v), ok
}

func (s *State) Speed() (Speed, bool) {
	v, ok := s.uint(FieldSpeed)
	return Speed(v), ok
}

// Quality is the air quality. BioGS units report it offset by one; the
// value returned here is normalized.
func (s *State) Quality() (Quality, bool) {
	v, ok := s.uint(FieldQuality)
	if !ok {
		return 0, false
	}
	if m, _ := s.Model(); m == ModelBioGS && v > 0 {
		v--
	}
	return Quality(v), true
}

func (s *State) Sensitivity() (Sensitivity, bool) {
	v, ok := s.uint(FieldSensitivity)
	return Sensitivity(v), ok
}

func (s *State) Ionizer() (bool, bool) { return s.boolean(FieldIonizer) }

func (s *State) Idle() (bool, bool) { return s.boolean(FieldIdle) }

func (s *State) Moodlight() (Moodlight, bool) {
	v, ok := s.uint(FieldMoodlight)
	return Moodlight(v), ok
}

func (s *State) Sleep() (bool, bool) { return s.boolean(FieldSleep) }

func (s *State) FilterCleaning() (bool, bool) { return s.boolean(FieldFilterCleaning) }

func (s *State) FilterReplacement() (bool, bool) { return s.boolean(FieldFilterReplacement) }

// FilterLife is the remaining filter lifetime in minutes.
func (s *State) FilterLife() (uint64, bool) { return s.uint(FieldFilterLife) }

func (s *State) LightSensor() (bool, bool) { return s.boolean(FieldLightSensor) }

func (s *State) ParticulateSensor() (uint64, bool) { return s.uint(FieldParticulateSensor) }

// FilterTimer is the nominal filter lifetime in minutes.
func (s *State) FilterTimer() (uint64, bool) { return s.uint(FieldFilterTimer) }

func (s *State) Lights() (Lights, bool) {
	v, ok := s.uint(FieldLights)
	return Lights(v), ok
}

// Fault is the internal error code. It is not named Error so that State
// does not satisfy the error interface.
func (s *State) Fault() (ErrorCode, bool) {
	v, ok := s.uint(FieldError)
	return ErrorCode(v), ok
}

func (s *State) TagState() (uint64, bool) { return s.uint(FieldTagState) }

func (s *State) TagUID() ([]uint64, bool) { return s.list(FieldTagUID) }

func (s *State) FilterType() (FilterType, bool) {
	v, ok := s.uint(FieldFilterType)
	return FilterType(v), ok
}

// PMSensor holds the extended particle sensor readings.
func (s *State) PMSensor() ([]uint64, bool) { return s.list(FieldPMSensor) }

// Color is the Mood Light palette.
func (s *State) Color() ([]uint64, bool) { return s.list(FieldColor) }

func (s *State) LightSensorCtl() (bool, bool) { return s.boolean(FieldLightSensorCtl) }

func (s *State) FilterCtl() (bool, bool) { return s.boolean(FieldFilterCtl) }

func (s *State) Buzzer() (bool, bool) { return s.boolean(FieldBuzzer) }

func (s *State) Gas() (Gas, bool) {
	v, ok := s.uint(FieldGas)
	return Gas(v), ok
}

func (s *State) ChildLock() (bool, bool) { return s.boolean(FieldChildLock) }

// Open reports whether the front panel is removed or open.
func (s *State) Open() (bool, bool) { return s.boolean(FieldOpen) }

func (s *State) TimerMode() (TimerMode, bool) {
	v, ok := s.uint(FieldTimerMode)
	return TimerMode(v), ok
}

// Timer is the time in minutes until the unit turns itself off.
func (s *State) Timer() (uint64, bool) { return s.uint(FieldTimer) }

// Schedule is the 24-hour UTC schedule, one speed character (1-5 or A) per hour.
func (s *State) Schedule() (string, bool) { return s.str(FieldSchedule) }

// RSSI is the Wi-Fi signal strength averaged over an hour.
func (s *State) RSSI() (int64, bool) {
	v, ok := s.values[FieldRSSI].(int64)
	return v, ok
}

func (s *State) WiFiFirmware() (string, bool) { return s.str(FieldWiFiFirmware) }

// String renders the reported fields as name=value pairs.
func (s *State) String() string {
	var b strings.Builder
	b.WriteString("State{")
	for i, f := range s.Fields() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", f, s.values[f])
	}
	b.WriteByte('}')
	return b.String()
}

// Info describes the device's Wi-Fi module and counters.
type Info struct {
	Name           string    `cbor:"1,keyasint" json:"name"`
	WiFiFirmware   string    `cbor:"2,keyasint" json:"mcu"`
	Build          string    `cbor:"3,keyasint" json:"build"`
	MAC            string    `cbor:"4,keyasint" json:"mac"`
	Time           *string   `cbor:"5,keyasint,omitempty" json:"time,omitempty"`
	Uptime         uint64    `cbor:"6,keyasint" json:"uptime"`
	MotorUptime    uint64    `cbor:"7,keyasint" json:"mup"`
	WiFiUptime     uint64    `cbor:"8,keyasint" json:"wup"`
	InternetUptime *uint64   `cbor:"9,keyasint,omitempty" json:"iup,omitempty"`
	CloudUptime    *uint64   `cbor:"10,keyasint,omitempty" json:"cup,omitempty"`
	MainFirmware   *string   `cbor:"11,keyasint,omitempty" json:"fv,omitempty"`
	RSSI           *RSSIInfo `cbor:"12,keyasint,omitempty" json:"rssi,omitempty"`
}

// RSSIInfo holds hourly Wi-Fi signal statistics.
type RSSIInfo struct {
	Current int64 `cbor:"1,keyasint" json:"cur"`
	Min     int64 `cbor:"2,keyasint" json:"min"`
	Max     int64 `cbor:"3,keyasint" json:"max"`
	Average int64 `cbor:"4,keyasint" json:"avg"`
}

// DecodeInfo parses a v1 (CBOR) info payload. Unknown keys are ignored.
func DecodeInfo(payload []byte) (*Info, error) {
	var info Info
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty info payload", ErrDecoding)
	}
	if err := decMode.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return &info, nil
}
