package masking_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/logmask/internal/masking"
)

func TestMaskerDefaults(t *testing.T) {
	m := masking.NewMasker(nil)

	got, err := m.Render("call 010-1234-5678")
	require.NoError(t, err)
	assert.Equal(t, "call 010-****-5678", got)
	assert.Equal(t, 7, m.Snapshot().Len())
}

func TestMaskerReload(t *testing.T) {
	rec := &signalRecorder{}
	m := masking.NewMasker(rec)

	require.NoError(t, m.Reload([]string{"PHONE:NONE"}))

	got, err := m.Render("call 010-1234-5678")
	require.NoError(t, err)
	assert.Equal(t, "call 010-1234-5678", got)
	assert.Empty(t, rec.all())

	// reloading with no options restores the defaults
	require.NoError(t, m.Reload(nil))
	got, err = m.Render("call 010-1234-5678")
	require.NoError(t, err)
	assert.Equal(t, "call 010-****-5678", got)
}

func TestMaskerReloadReportsConfigErrors(t *testing.T) {
	rec := &signalRecorder{}
	m := masking.NewMasker(rec)

	err := m.Reload([]string{"UNKNOWN", "PHONE:NONE", "EMAIL:PARTIAL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, masking.ErrUnknownPreset)
	assert.ErrorIs(t, err, masking.ErrInvalidParameter)

	assert.Equal(t, []masking.SignalKind{masking.SignalConfigError, masking.SignalConfigError}, rec.kinds())

	// valid options still take effect
	got, err := m.Render("call 010-1234-5678")
	require.NoError(t, err)
	assert.Equal(t, "call 010-1234-5678", got)
}

func TestMaskerRenderError(t *testing.T) {
	rec := &signalRecorder{}
	m := masking.NewMasker(rec)
	require.NoError(t, m.Reload([]string{`ID:\d+:PARTIAL:2-2`}))

	_, err := m.Render("id 123")
	require.Error(t, err)

	signals := rec.all()
	require.Len(t, signals, 1)
	assert.Equal(t, masking.SignalRenderError, signals[0].Kind)
	assert.NotContains(t, signals[0].Detail, "123")

	_, err = m.RenderDetailed("id 456")
	require.Error(t, err)
	assert.Len(t, rec.all(), 2)
}

func TestMaskerHugePartialParamFailsClosed(t *testing.T) {
	m := masking.NewMasker(nil)
	require.NoError(t, m.Reload([]string{"CARD_NUMBER:PARTIAL:9223372036854775807-1"}))

	got, err := m.Render("card 1234-5678-9012-3456")
	assert.ErrorIs(t, err, masking.ErrInvalidParameter)
	assert.NotContains(t, got, "1234-5678-9012-3456")
	assert.NotContains(t, err.Error(), "5678")
}

func TestMaskerMaxMessageBytes(t *testing.T) {
	rec := &signalRecorder{}
	m := masking.NewMasker(rec, masking.WithMaxMessageBytes(16))

	_, err := m.Render(strings.Repeat("x", 17))
	assert.ErrorIs(t, err, masking.ErrMessageTooLarge)
	assert.Equal(t, []masking.SignalKind{masking.SignalRenderError}, rec.kinds())

	_, err = m.RenderDetailed(strings.Repeat("x", 17))
	assert.ErrorIs(t, err, masking.ErrMessageTooLarge)

	got, err := m.Render(strings.Repeat("x", 16))
	require.NoError(t, err)
	assert.Len(t, got, 16)

	unlimited := masking.NewMasker(nil, masking.WithMaxMessageBytes(0))
	_, err = unlimited.Render(strings.Repeat("x", 1<<20))
	assert.NoError(t, err)
}

func TestFailModeFallback(t *testing.T) {
	assert.Equal(t, masking.FailedText, masking.FailClosed.Fallback("secret"))
	assert.Equal(t, masking.FailedText, masking.FailMode("").Fallback("secret"))
	assert.Equal(t, "secret", masking.FailOpen.Fallback("secret"))
}

func TestMaskerConcurrentReload(t *testing.T) {
	m := masking.NewMasker(nil)

	const msg = "call 010-1234-5678"
	allowed := map[string]bool{
		"call 010-****-5678": true,
		"call 010-1234-5678": true,
		"call ****":          true,
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				out, err := m.Render(msg)
				if !assert.NoError(t, err) || !assert.True(t, allowed[out], "unexpected render %q", out) {
					return
				}
			}
		}()
	}

	options := [][]string{{"PHONE:NONE"}, {"PHONE:FULL"}, nil}
	for i := 0; i < 200; i++ {
		require.NoError(t, m.Reload(options[i%len(options)]))
	}
	close(stop)
	wg.Wait()
}
