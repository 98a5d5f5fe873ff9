package masking

import "time"

// SignalKind classifies an operator-facing signal.
type SignalKind string

const (
	SignalSecurityWarning SignalKind = "security_warning"
	SignalConfigError     SignalKind = "config_error"
	SignalRenderError     SignalKind = "render_error"
)

// Signal is an operational event raised by the masking engine. It names the
// binding involved but never carries the text that was matched.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Expression string     `json:"expression,omitempty"`
	Strategy   string     `json:"strategy,omitempty"`
	Count      int        `json:"count,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	Time       time.Time  `json:"time"`
}

// SignalSink receives signals. Implementations must not block the caller.
type SignalSink interface {
	Signal(sig Signal)
}

// SignalFunc adapts a function to SignalSink.
type SignalFunc func(sig Signal)

// Signal calls f(sig).
func (f SignalFunc) Signal(sig Signal) {
	f(sig)
}

type nopSink struct{}

func (nopSink) Signal(Signal) {}
