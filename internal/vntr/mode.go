// Package vntr describes the repeat tract an indel falls in: its motif,
// reference extent and purity.
package vntr

import (
	"fmt"
	"strings"
)

// Mode selects how the repeat tract around an indel is delimited.
type Mode int

const (
	// ModeExact extends the motif periodically with no mismatches.
	ModeExact Mode = iota
	// ModeFuzzy tolerates isolated mismatching bases.
	ModeFuzzy
	// ModePenalized scores mismatches and stops on an x-drop.
	ModePenalized
	// ModeIntegrated combines exact and fuzzy tracts and checks flank
	// resolution.
	ModeIntegrated
)

// String returns the single-letter mode code.
func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "e"
	case ModeFuzzy:
		return "f"
	case ModePenalized:
		return "p"
	case ModeIntegrated:
		return "x"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts a mode letter or its long name. An empty string selects
// ModeIntegrated.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e", "exact":
		return ModeExact, nil
	case "f", "fuzzy":
		return ModeFuzzy, nil
	case "p", "penalized":
		return ModePenalized, nil
	case "x", "integrated", "":
		return ModeIntegrated, nil
	}
	return 0, &ConfigError{Option: "mode", Value: s, Reason: "expected one of e, f, p, x"}
}

// ConfigError reports an invalid option value.
type ConfigError struct {
	Option string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Option, e.Value, e.Reason)
}
