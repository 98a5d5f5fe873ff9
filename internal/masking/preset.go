package masking

import (
	"fmt"
	"strings"
)

// Preset is a built-in detection expression with its default strategy.
type Preset struct {
	Name       string
	Expression string
	Strategy   Strategy
	Param      string
}

// Registry order is also the default evaluation order.
var presets = []Preset{
	// 1234-5678-9012-3456 -> 1234-****-****-3456
	{Name: "CARD_NUMBER", Expression: `\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}`, Strategy: Partial, Param: "4-4"},
	// 901234-1234567 -> 901234-****
	{Name: "SSN", Expression: `\d{6}[- ]?\d{7}`, Strategy: Partial, Param: "6-0"},
	// 110-12-345678 -> 110-****-****
	{Name: "ACCOUNT_NUMBER", Expression: `\d{3}[- ]?\d{2}[- ]?\d{4,6}`, Strategy: Partial, Param: "3-0"},
	// 010-1234-5678 -> 010-****-5678
	{Name: "PHONE", Expression: `01[0-9][- ]?\d{4}[- ]?\d{4}`, Strategy: Partial, Param: "3-4"},
	{Name: "EMAIL", Expression: `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, Strategy: Email},
	{Name: "PASSWORD", Expression: `(password|passwd|pwd|pass)[=:\s]+\S+`, Strategy: Warning},
	// Matches "name: 홍길동" and "name 홍길동" too, but USER_NAME only rewrites
	// "key=value" shapes, so those pass through. Override USER_NAME with a
	// FULL or WARNING strategy where logs use ':' or space separators.
	{Name: "USER_NAME", Expression: `(userName|username|user|name)[=:\s]+[가-힣a-zA-Z]{2,}`, Strategy: UserName},
}

// Presets returns the registry in evaluation order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset finds a preset by name, ignoring case.
func LookupPreset(name string) (Preset, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range presets {
		if p.Name == upper {
			return p, true
		}
	}
	return Preset{}, false
}

// Binding instantiates the preset with its default strategy and parameter.
func (p Preset) Binding() (*Binding, error) {
	return NewBinding(p.Expression, p.Strategy, p.Param)
}

func (p Preset) mustBinding() *Binding {
	b, err := p.Binding()
	if err != nil {
		panic(fmt.Sprintf("masking: preset %s: %v", p.Name, err))
	}
	return b
}
