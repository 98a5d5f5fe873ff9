package masking

import (
	"fmt"
	"strings"
)

// ParseOption turns one colon-delimited option into a binding:
//
//	NAME                         preset with its defaults
//	NAME:STRATEGY[:PARAM]        preset expression, overridden strategy
//	LABEL:REGEX[:STRATEGY[:PARAM]] custom rule, FULL when STRATEGY is absent
//
// A nil binding with a nil error means the option was blank. A custom rule
// with an unknown strategy returns both a FULL binding and a *ConfigError.
func ParseOption(option string) (*Binding, error) {
	option = strings.TrimSpace(option)
	parts := strings.Split(option, ":")
	if blank(parts) {
		return nil, nil
	}

	if len(parts) == 1 {
		p, ok := LookupPreset(parts[0])
		if !ok {
			return nil, &ConfigError{Option: option, Err: fmt.Errorf("%w: %q", ErrUnknownPreset, parts[0])}
		}
		b, err := p.Binding()
		if err != nil {
			return nil, &ConfigError{Option: option, Err: err}
		}
		return b, nil
	}

	if p, ok := LookupPreset(parts[0]); ok {
		return parsePresetOverride(option, p, parts[1:])
	}
	return parseCustomRule(option, parts[1:])
}

func parsePresetOverride(option string, p Preset, fields []string) (*Binding, error) {
	if len(fields) > 2 {
		return nil, &ConfigError{
			Option: option,
			Err:    fmt.Errorf("%w: preset override takes NAME:STRATEGY[:PARAM]", ErrMalformedOption),
		}
	}

	strategy, err := ParseStrategy(fields[0])
	if err != nil {
		return nil, &ConfigError{Option: option, Err: err}
	}

	// the preset's own parameter only carries over to its own strategy
	param := ""
	if strategy == p.Strategy {
		param = p.Param
	}
	if len(fields) == 2 {
		param = fields[1]
	}

	b, err := NewBinding(p.Expression, strategy, param)
	if err != nil {
		return nil, &ConfigError{Option: option, Err: err}
	}
	return b, nil
}

func parseCustomRule(option string, fields []string) (*Binding, error) {
	source := fields[0]
	if source == "" {
		return nil, &ConfigError{Option: option, Err: fmt.Errorf("%w: empty expression", ErrInvalidExpression)}
	}

	strategy := Full
	param := ""
	var fallback error

	if len(fields) >= 2 && strings.TrimSpace(fields[1]) != "" {
		s, err := ParseStrategy(fields[1])
		if err != nil {
			fallback = &ConfigError{Option: option, Err: fmt.Errorf("%w, using FULL", err)}
		} else {
			strategy = s
			if len(fields) >= 3 {
				param = fields[2]
			}
		}
	}

	b, err := NewBinding(source, strategy, param)
	if err != nil {
		return nil, &ConfigError{Option: option, Err: err}
	}
	return b, fallback
}

func blank(parts []string) bool {
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}
