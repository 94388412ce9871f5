package monitoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCapturesThroughGlobal(t *testing.T) {
	rec := &Recorder{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	boom := errors.New("boom")
	CaptureException(boom, map[string]string{"op": "sweep"})
	CaptureException(nil, nil)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, boom)
	assert.Equal(t, "sweep", events[0].Tags["op"])
}

func TestRecoveredConvertsPanic(t *testing.T) {
	rec := &Recorder{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	run := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = Recovered(r, map[string]string{"op": "test"})
			}
		}()
		panic("nil map")
	}
	err := run()
	require.Error(t, err)
	assert.Equal(t, "panic: nil map", err.Error())
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "nil map", rec.Events()[0].Panic)

	inner := errors.New("inner")
	assert.ErrorIs(t, Recovered(inner, nil), inner)
}

func TestNopIsDefault(t *testing.T) {
	Init(nil)
	assert.NotPanics(t, func() {
		CaptureException(errors.New("x"), nil)
		Flush(0)
	})
}
