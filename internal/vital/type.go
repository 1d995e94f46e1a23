package vital

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a string does not name any measurement type.
var ErrUnknownType = errors.New("unknown measurement type")

// Type identifies a kind of health measurement.
type Type int

const (
	Steps Type = iota
	Weight
	Temperature
	BloodPressure
	HeartRate
	Pulse

	numTypes
)

type typeInfo struct {
	wire  string
	code  string
	label string
	unit  string
}

// typeTable is indexed by Type. Every variant must have a row.
var typeTable = [...]typeInfo{
	Steps:         {wire: "steps", code: "STEPS", label: "歩数", unit: "歩"},
	Weight:        {wire: "weight", code: "WEIGHT", label: "体重", unit: "kg"},
	Temperature:   {wire: "temperature", code: "TEMPERATURE", label: "体温", unit: "℃"},
	BloodPressure: {wire: "bloodPressure", code: "BLOOD_PRESSURE", label: "血圧", unit: "mmHg"},
	HeartRate:     {wire: "heartRate", code: "HEART_RATE", label: "心拍数", unit: "bpm"},
	Pulse:         {wire: "pulse", code: "PULSE", label: "脈拍", unit: "bpm"},
}

// Fails to compile when typeTable and the Type constants disagree in length.
var _ = [1]struct{}{}[len(typeTable)-int(numTypes)]

// AllTypes returns every measurement type in declaration order.
func AllTypes() []Type {
	out := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a declared variant.
func (t Type) Valid() bool { return t >= 0 && t < numTypes }

func (t Type) info() typeInfo {
	if !t.Valid() {
		return typeInfo{}
	}
	return typeTable[t]
}

// Wire returns the type name used by the remote API and the local schema.
func (t Type) Wire() string { return t.info().wire }

// Code returns the remote measurement code (e.g. BLOOD_PRESSURE).
func (t Type) Code() string { return t.info().code }

// Label returns the display label.
func (t Type) Label() string { return t.info().label }

// Unit returns the canonical unit for the type.
func (t Type) Unit() string { return t.info().unit }

// HasSecondary reports whether records of this type carry a secondary value.
func (t Type) HasSecondary() bool { return t == BloodPressure }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return t.Wire()
}

// ParseType resolves a wire name, measurement code or display label.
func ParseType(s string) (Type, error) {
	for t := Type(0); t < numTypes; t++ {
		info := typeTable[t]
		if s == info.wire || s == info.code || s == info.label {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(t.Wire()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
