package daq

import "fmt"

// maxUnitBytes is the persisted fixed-width size of a unit string. Display
// units longer than this are silently truncated on write; readers must stop
// at the first NUL or at this many bytes, whichever comes first. This is a
// persistent-format invariant — do not widen it without a version bump.
const maxUnitBytes = 10

// Measurement is a scalar sample carrying both its display unit and its
// quantity expressed in the device's base unit.
type Measurement struct {
	Quantity           float64
	DisplayUnit        string
	BaseUnit           string
	QuantityInBaseUnit float64
}

// NewMeasurement constructs a Measurement, leaving unit truncation to the
// persistence layer (in-memory values are never truncated).
func NewMeasurement(quantity float64, displayUnit, baseUnit string, quantityInBaseUnit float64) Measurement {
	return Measurement{
		Quantity:           quantity,
		DisplayUnit:        displayUnit,
		BaseUnit:           baseUnit,
		QuantityInBaseUnit: quantityInBaseUnit,
	}
}

func (m Measurement) String() string {
	return fmt.Sprintf("%g%s", m.Quantity, m.DisplayUnit)
}

// TruncatedUnit returns the display unit truncated to the persisted fixed
// width, matching the on-disk MEASUREMENT record's char[10] field. The
// result may not be NUL-terminated if it fills all 10 bytes.
func TruncatedUnit(unit string) string {
	b := []byte(unit)
	if len(b) <= maxUnitBytes {
		return unit
	}
	return string(b[:maxUnitBytes])
}
