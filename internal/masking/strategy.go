package masking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Strategy selects how a matched substring is redacted.
type Strategy int

const (
	Full Strategy = iota
	Partial
	None
	Email
	Warning
	UserName
)

const (
	// MaskToken replaces a fully masked value or one masked run
	MaskToken = "****"
	// WarningText replaces values matched by a WARNING binding
	WarningText = "[SECURITY WARNING: SENSITIVE DATA BLOCKED]"
)

var strategyNames = [...]string{
	Full:     "FULL",
	Partial:  "PARTIAL",
	None:     "NONE",
	Email:    "EMAIL",
	Warning:  "WARNING",
	UserName: "USER_NAME",
}

type strategyFunc func(text, param string) (string, error)

// Dispatch table indexed by Strategy.
var strategyFuncs = [...]strategyFunc{
	Full:     maskFull,
	Partial:  maskPartial,
	None:     maskNone,
	Email:    maskEmail,
	Warning:  maskWarning,
	UserName: maskUserName,
}

// ParseStrategy resolves a strategy name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range strategyNames {
		if n == upper {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

func (s Strategy) String() string {
	if !s.valid() {
		return "Strategy(" + strconv.Itoa(int(s)) + ")"
	}
	return strategyNames[s]
}

// MarshalText encodes the strategy by name for JSON payloads.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
	}
	return []byte(strategyNames[s]), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Strategy) valid() bool {
	return s >= 0 && int(s) < len(strategyNames)
}

// Apply transforms a matched substring. Only PARTIAL can fail; every other
// strategy is total over any input and ignores param.
func (s Strategy) Apply(text, param string) (string, error) {
	if !s.valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
	}
	return strategyFuncs[s](text, param)
}

func maskFull(string, string) (string, error) {
	return MaskToken, nil
}

func maskNone(text, _ string) (string, error) {
	return text, nil
}

func maskWarning(string, string) (string, error) {
	return WarningText, nil
}

func maskEmail(text, _ string) (string, error) {
	at := strings.IndexByte(text, '@')
	if at <= 0 {
		return MaskToken, nil
	}

	local := []rune(text[:at])
	visible := min(2, len(local)/2)
	// a one-character local part keeps its character
	if visible == 0 {
		visible = 1
	}
	return string(local[:visible]) + MaskToken + text[at:], nil
}

func maskUserName(text, _ string) (string, error) {
	eq := strings.IndexByte(text, '=')
	if eq < 0 || eq == len(text)-1 {
		return text, nil
	}

	key := text[:eq+1]
	name := graphemes(strings.TrimSpace(text[eq+1:]))
	n := len(name)

	switch {
	case n <= 1:
		return key + "*", nil
	case n == 2:
		return key + name[0] + "*", nil
	case n == 3:
		return key + name[0] + "*" + name[2], nil
	default:
		return key + name[0] + strings.Repeat("*", n-2) + name[n-1], nil
	}
}

var partialParamPattern = regexp.MustCompile(`^(\d+)-(\d+)$`)

// ParsePartialParam validates a PARTIAL parameter of the form "<prefix>-<suffix>".
func ParsePartialParam(param string) (prefix, suffix int, err error) {
	if param == "" {
		return 0, 0, &ParamError{Param: param, Reason: "PARTIAL requires a <prefix>-<suffix> parameter"}
	}

	m := partialParamPattern.FindStringSubmatch(param)
	if m == nil {
		return 0, 0, &ParamError{Param: param, Reason: "expected two non-negative integers separated by '-'"}
	}

	if prefix, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, &ParamError{Param: param, Reason: "prefix out of range"}
	}
	if suffix, err = strconv.Atoi(m[2]); err != nil {
		return 0, 0, &ParamError{Param: param, Reason: "suffix out of range"}
	}
	return prefix, suffix, nil
}

// maskPartial reveals prefix/suffix letters and digits, keeps every separator
// in place and collapses each masked run between separators into one MaskToken.
func maskPartial(text, param string) (string, error) {
	prefix, suffix, err := ParsePartialParam(param)
	if err != nil {
		return "", err
	}

	chars := graphemes(text)
	total := 0
	for _, c := range chars {
		if significant(c) {
			total++
		}
	}

	// prefix+suffix may overflow, so compare without adding
	if prefix >= total || suffix >= total-prefix {
		return "", &ParamError{
			Param:  param,
			Reason: fmt.Sprintf("value has %d letters or digits, needs more than %d revealed plus %d", total, prefix, suffix),
		}
	}

	var b strings.Builder
	b.Grow(len(text))

	seen := 0
	inRun := false
	for _, c := range chars {
		if !significant(c) {
			b.WriteString(c)
			inRun = false
			continue
		}

		if seen < prefix || seen >= total-suffix {
			b.WriteString(c)
			inRun = false
		} else if !inRun {
			b.WriteString(MaskToken)
			inRun = true
		}
		seen++
	}

	return b.String(), nil
}

// graphemes splits s into user-perceived characters.
func graphemes(s string) []string {
	if s == "" {
		return nil
	}

	out := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

func significant(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
