package resolver

import (
	"fmt"

	"github.com/spf13/cast"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
)

// CheckValue enforces spec §4.2.7 for a write to a key described by d. A
// nil error means the value is acceptable; description.ValueCheck == false
// always succeeds (caller-opted-out validation).
func CheckValue(d descmodel.Description, value any) error {
	if !d.ValueCheck {
		return nil
	}

	switch d.VType {
	case define.VTypeArray:
		return checkArray(d, value)
	case define.VTypeArrayExt:
		return checkArrayExt(d, value)
	case "": // legacy/untyped descriptions fall back to Range-style numeric check only if min/max present
		_, hasMin := d.Values["min"]
		_, hasMax := d.Values["max"]
		if hasMin && hasMax {
			return checkRange(d, value)
		}
		return nil
	case "Range":
		return checkRange(d, value)
	case "Date":
		return checkDate(value)
	default:
		return fmt.Errorf("resolver: vtype %q is not writable through setSystemSettings", d.VType)
	}
}

func checkArray(d descmodel.Description, value any) error {
	legal, _ := d.Values["array"].([]any)
	for _, v := range legal {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("resolver: value %v not in legal array for key %s", value, d.Key)
}

func checkArrayExt(d descmodel.Description, value any) error {
	items, _ := d.Values["array"].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok || m["value"] != value {
			continue
		}
		active, _ := m["active"].(bool)
		visible, _ := m["visible"].(bool)
		if !active || !visible {
			return fmt.Errorf("resolver: value %v for key %s is inactive or hidden", value, d.Key)
		}
		return nil
	}
	return fmt.Errorf("resolver: value %v has no matching arrayExt item for key %s", value, d.Key)
}

func checkRange(d descmodel.Description, value any) error {
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return fmt.Errorf("resolver: value %v is not numeric for Range key %s", value, d.Key)
	}
	min, _ := cast.ToFloat64E(d.Values["min"])
	max, _ := cast.ToFloat64E(d.Values["max"])
	interval, err := cast.ToFloat64E(d.Values["interval"])
	if err != nil || interval <= 0 {
		interval = 1
	}

	if v < min || v > max {
		return fmt.Errorf("resolver: value %v outside [%v, %v] for key %s", v, min, max, d.Key)
	}
	steps := (v - min) / interval
	if steps != float64(int64(steps)) {
		return fmt.Errorf("resolver: value %v is not a multiple of interval %v from min %v for key %s", v, interval, min, d.Key)
	}
	return nil
}

func checkDate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("resolver: Date value must be a string, got %T", value)
	}
	return nil
}
