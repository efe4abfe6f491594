// Package prompt holds the operating modes and the instruction templates
// sent to language models for each of them.
package prompt

import "strings"

// Mode selects how a request is handled.
type Mode int

const (
	Default Mode = iota
	Continue
	Improve
	Shorten
	Lengthen
	Fix
	ApplyCommand
)

var modeNames = map[Mode]string{
	Default:      "default",
	Continue:     "continue",
	Improve:      "improve",
	Shorten:      "shorten",
	Lengthen:     "lengthen",
	Fix:          "fix",
	ApplyCommand: "apply-command",
}

// aliases accepted on the wire in addition to the canonical names.
var aliases = map[string]Mode{
	"shorter": Shorten,
	"longer":  Lengthen,
	"zap":     ApplyCommand,
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	return []Mode{Default, Continue, Improve, Shorten, Lengthen, Fix, ApplyCommand}
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return modeNames[Default]
}

// IsRefinement reports whether the mode edits an existing text as a whole.
func (m Mode) IsRefinement() bool {
	switch m {
	case Improve, Fix, Shorten, Lengthen:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails:
// unknown names become Default.
func (m *Mode) UnmarshalText(b []byte) error {
	*m = ParseMode(string(b))
	return nil
}

// ParseMode normalizes a wire name to a Mode. Empty or unknown names map to Default.
func ParseMode(s string) Mode {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m
		}
	}
	if m, ok := aliases[s]; ok {
		return m
	}
	return Default
}
