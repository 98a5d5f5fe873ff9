package masking

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FailedText stands in for a message that could not be masked when failing closed.
const FailedText = "[MASKING FAILED]"

// FailMode decides what a caller emits when rendering fails.
type FailMode string

const (
	// FailClosed replaces the message with FailedText
	FailClosed FailMode = "closed"
	// FailOpen emits the original, unmasked message
	FailOpen FailMode = "open"
)

// Fallback returns the text to emit for message after a render error.
func (f FailMode) Fallback(message string) string {
	if f == FailOpen {
		return message
	}
	return FailedText
}

// Masker holds the current pipeline behind an atomic pointer so a reload is
// published as one swap: renderers see the old set or the new one, never a mix.
type Masker struct {
	current  atomic.Pointer[Pipeline]
	reloadMu sync.Mutex
	sink     SignalSink
	maxBytes int
}

// MaskerOption configures a Masker.
type MaskerOption func(*Masker)

// WithMaxMessageBytes makes Render refuse messages longer than n bytes.
// Zero disables the cap.
func WithMaxMessageBytes(n int) MaskerOption {
	return func(m *Masker) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// NewMasker creates a masker loaded with the preset defaults.
func NewMasker(sink SignalSink, opts ...MaskerOption) *Masker {
	if sink == nil {
		sink = nopSink{}
	}
	m := &Masker{sink: sink}
	for _, opt := range opts {
		opt(m)
	}
	m.current.Store(NewPipeline(DefaultActiveSet(), sink))
	return m
}

// Reload builds a new active set from options and publishes it. Skipped
// options are reported to the signal sink and returned as a joined error;
// the new set is published either way.
func (m *Masker) Reload(options []string) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	set, errs := buildActiveSet(options)
	for _, err := range errs {
		m.sink.Signal(Signal{
			Kind:   SignalConfigError,
			Detail: err.Error(),
			Time:   time.Now(),
		})
	}

	m.current.Store(NewPipeline(set, m.sink))
	return errors.Join(errs...)
}

// Render masks message with the current active set.
func (m *Masker) Render(message string) (string, error) {
	if err := m.checkSize(message); err != nil {
		return "", err
	}

	out, err := m.current.Load().Render(message)
	if err != nil {
		m.renderFailed(err)
		return "", err
	}
	return out, nil
}

// RenderDetailed masks message and reports findings.
func (m *Masker) RenderDetailed(message string) (Result, error) {
	if err := m.checkSize(message); err != nil {
		return Result{}, err
	}

	result, err := m.current.Load().RenderDetailed(message)
	if err != nil {
		m.renderFailed(err)
		return Result{}, err
	}
	return result, nil
}

// Snapshot returns the active set currently published.
func (m *Masker) Snapshot() *ActiveSet {
	return m.current.Load().ActiveSet()
}

func (m *Masker) checkSize(message string) error {
	if m.maxBytes > 0 && len(message) > m.maxBytes {
		err := fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(message), m.maxBytes)
		m.renderFailed(err)
		return err
	}
	return nil
}

func (m *Masker) renderFailed(err error) {
	m.sink.Signal(Signal{
		Kind:   SignalRenderError,
		Detail: err.Error(),
		Time:   time.Now(),
	})
}
