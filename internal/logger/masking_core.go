package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/raaihank/logmask/internal/masking"
)

// maskingCore renders every entry message and string-valued field through
// the masker before handing the entry to the wrapped core.
type maskingCore struct {
	zapcore.Core
	masker *masking.Masker
	mode   masking.FailMode
}

// NewMaskingCore wraps core so nothing reaches it unmasked. When a render
// fails, mode decides whether the original text or a placeholder is written.
func NewMaskingCore(core zapcore.Core, masker *masking.Masker, mode masking.FailMode) zapcore.Core {
	return &maskingCore{Core: core, masker: masker, mode: mode}
}

func (c *maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskingCore{
		Core:   c.Core.With(c.maskFields(fields)),
		masker: c.masker,
		mode:   c.mode,
	}
}

func (c *maskingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *maskingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.mask(ent.Message)
	return c.Core.Write(ent, c.maskFields(fields))
}

// maskFields returns a masked copy; the caller's slice may be shared.
func (c *maskingCore) maskFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	copy(out, fields)

	for i, f := range out {
		switch f.Type {
		case zapcore.StringType:
			out[i].String = c.mask(f.String)
		case zapcore.ByteStringType:
			if b, ok := f.Interface.([]byte); ok {
				out[i] = zap.String(f.Key, c.mask(string(b)))
			}
		case zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				out[i] = zap.String(f.Key, c.mask(err.Error()))
			}
		case zapcore.StringerType:
			if s, ok := f.Interface.(fmt.Stringer); ok {
				out[i] = zap.String(f.Key, c.mask(s.String()))
			}
		}
	}
	return out
}

func (c *maskingCore) mask(s string) string {
	if s == "" {
		return s
	}
	out, err := c.masker.Render(s)
	if err != nil {
		return c.mode.Fallback(s)
	}
	return out
}
