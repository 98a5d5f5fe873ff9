package masking

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Binding pairs a compiled detection expression with a redaction strategy.
// Bindings are immutable once constructed.
type Binding struct {
	source   string
	expr     *regexp.Regexp
	strategy Strategy
	param    string
}

// NewBinding compiles source and validates param for the strategy. A PARTIAL
// binding with a malformed parameter is rejected here, before any message is seen.
func NewBinding(source string, strategy Strategy, param string) (*Binding, error) {
	if !strategy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(strategy))
	}

	expr, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	if strategy == Partial {
		if _, _, err := ParsePartialParam(param); err != nil {
			return nil, err
		}
	}

	return &Binding{
		source:   source,
		expr:     expr,
		strategy: strategy,
		param:    param,
	}, nil
}

// Source returns the detection expression text, which is the override key.
func (b *Binding) Source() string {
	return b.source
}

// Strategy returns the binding's strategy.
func (b *Binding) Strategy() Strategy {
	return b.strategy
}

// Param returns the strategy parameter, or "" when none was given.
func (b *Binding) Param() string {
	return b.param
}

// Apply replaces every non-overlapping match in message, left to right.
func (b *Binding) Apply(message string) (string, error) {
	out, _, err := b.apply(message, nopSink{})
	return out, err
}

func (b *Binding) apply(message string, sink SignalSink) (string, int, error) {
	locs := b.expr.FindAllStringIndex(message, -1)
	if len(locs) == 0 {
		return message, 0, nil
	}

	var sb strings.Builder
	sb.Grow(len(message))

	last := 0
	for _, loc := range locs {
		masked, err := b.strategy.Apply(message[loc[0]:loc[1]], b.param)
		if err != nil {
			return "", 0, fmt.Errorf("%s rule %q: %w", b.strategy, b.source, err)
		}
		sb.WriteString(message[last:loc[0]])
		sb.WriteString(masked)
		last = loc[1]
	}
	sb.WriteString(message[last:])

	if b.strategy == Warning {
		sink.Signal(Signal{
			Kind:       SignalSecurityWarning,
			Expression: b.source,
			Strategy:   b.strategy.String(),
			Count:      len(locs),
			Time:       time.Now(),
		})
	}

	return sb.String(), len(locs), nil
}
