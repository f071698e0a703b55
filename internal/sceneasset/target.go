package sceneasset

import (
	"fmt"
	"strings"
)

// Target selects which scene variant(s) a fetch asks for.
type Target string

const (
	TargetDefault Target = "default"
	TargetCustom  Target = "custom"
	TargetBoth    Target = "both"
)

func ParseTarget(raw string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(raw))); t {
	case TargetDefault, TargetCustom, TargetBoth:
		return t, nil
	case "":
		return TargetBoth, nil
	default:
		return "", newError(KindInvalidRequest, fmt.Sprintf("unknown target %q", raw), nil)
	}
}

func (t Target) Valid() bool {
	switch t {
	case TargetDefault, TargetCustom, TargetBoth:
		return true
	default:
		return false
	}
}

func (t Target) IncludesDefault() bool { return t == TargetDefault || t == TargetBoth }
func (t Target) IncludesCustom() bool  { return t == TargetCustom || t == TargetBoth }
