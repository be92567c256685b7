package rabbitair

import "fmt"

// Opcode selects the operation carried by an envelope.
type Opcode uint8

const (
	// OpState reads the state (empty payload) or changes it (non-empty payload).
	OpState Opcode = 0x04
	// OpTimestamp reads the device clock. Firmware requests carry it.
	OpTimestamp Opcode = 0x09
	// OpInfo reads Wi-Fi module information.
	OpInfo Opcode = 0xFF
)

// SetRequest lists the settings to change. Nil fields are left unchanged
// on the device.
type SetRequest struct {
	Power             *bool
	Mode              *Mode
	Speed             *Speed
	Sensitivity       *Sensitivity
	Ionizer           *bool
	Moodlight         *Moodlight
	FilterCleaning    *bool
	FilterReplacement *bool
	FilterLife        *int // minutes, 0-525600
	FilterTimer       *int // minutes, 0-525600
	Lights            *Lights
	Color             []int // 9 values, 0-40
	LightSensorCtl    *bool
	FilterCtl         *bool
	Buzzer            *bool
	ChildLock         *bool
	TimerMode         *TimerMode
	Timer             *int // minutes, 0-1440
	Schedule          *string
}

// Ptr returns a pointer to v, for filling SetRequest.
func Ptr[T any](v T) *T {
	return &v
}

// Fields validates the request and returns the command to encode. It fails
// with ErrValidation if any value is out of range or nothing is set.
func (r SetRequest) Fields() (map[Field]any, error) {
	fields := make(map[Field]any)

	setBool := func(f Field, v *bool) {
		if v != nil {
			fields[f] = *v
		}
	}
	setBool(FieldPower, r.Power)
	setBool(FieldIonizer, r.Ionizer)
	setBool(FieldFilterCleaning, r.FilterCleaning)
	setBool(FieldFilterReplacement, r.FilterReplacement)
	setBool(FieldLightSensorCtl, r.LightSensorCtl)
	setBool(FieldFilterCtl, r.FilterCtl)
	setBool(FieldBuzzer, r.Buzzer)
	setBool(FieldChildLock, r.ChildLock)

	if r.Mode != nil {
		fields[FieldMode] = *r.Mode
	}
	if r.Speed != nil {
		if *r.Speed == SpeedSuperSilent {
			return nil, fmt.Errorf("%w: speed %s cannot be set manually", ErrValidation, *r.Speed)
		}
		fields[FieldSpeed] = *r.Speed
	}
	if r.Sensitivity != nil {
		fields[FieldSensitivity] = *r.Sensitivity
	}
	if r.Moodlight != nil {
		fields[FieldMoodlight] = *r.Moodlight
	}
	if r.Lights != nil {
		fields[FieldLights] = *r.Lights
	}
	if r.TimerMode != nil {
		fields[FieldTimerMode] = *r.TimerMode
	}
	if r.FilterLife != nil {
		fields[FieldFilterLife] = *r.FilterLife
	}
	if r.FilterTimer != nil {
		fields[FieldFilterTimer] = *r.FilterTimer
	}
	if r.Timer != nil {
		fields[FieldTimer] = *r.Timer
	}
	if r.Color != nil {
		fields[FieldColor] = r.Color
	}
	if r.Schedule != nil {
		fields[FieldSchedule] = *r.Schedule
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no settings given", ErrValidation)
	}

	for f, v := range fields {
		spec := fieldSpecs[f]
		nv, err := normalize(spec, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrValidation, spec.name, err)
		}
		fields[f] = nv
	}
	return fields, nil
}
