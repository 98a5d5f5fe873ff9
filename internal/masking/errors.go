package masking

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnknownPreset is returned for option names that match no preset
	ErrUnknownPreset = errors.New("unknown masking preset")
	// ErrUnknownStrategy is returned for strategy names outside the fixed set
	ErrUnknownStrategy = errors.New("unknown masking strategy")
	// ErrInvalidExpression is returned when a detection expression does not compile
	ErrInvalidExpression = errors.New("invalid detection expression")
	// ErrMalformedOption is returned for option strings with an unusable shape
	ErrMalformedOption = errors.New("malformed masking option")
	// ErrInvalidParameter is matched by every *ParamError
	ErrInvalidParameter = errors.New("invalid masking parameter")
	// ErrMessageTooLarge is returned when a message exceeds the masker's size cap
	ErrMessageTooLarge = errors.New("message exceeds masking size limit")
)

// ConfigError reports a masking option that could not be turned into a binding.
// The option is skipped; the rest of the configuration still applies.
type ConfigError struct {
	Option string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("masking option %q: %v", e.Option, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParamError reports a PARTIAL parameter that is malformed or cannot be
// satisfied by the matched value. It never carries the matched value itself.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return "invalid masking parameter " + strconv.Quote(e.Param) + ": " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidParameter) hold for every ParamError.
func (e *ParamError) Is(target error) bool {
	return target == ErrInvalidParameter
}
