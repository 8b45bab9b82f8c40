package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf})

	handler(NewEvent(JobCompleted, 1))

	output := buf.String()
	assert.Contains(t, output, "[job.completed]")
	assert.Contains(t, output, "job=#1")
}

func TestLogHandler_DefaultWriter(t *testing.T) {
	handler := LogHandler(LogConfig{})
	assert.NotPanics(t, func() { handler(NewEvent(JobStarted, 1)) })
}

func TestLogHandler_IncludePayload(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf, IncludePayload: true})

	handler(NewEvent(JobStarted, 1).WithPayload(map[string]string{"key": "value"}))

	assert.True(t, strings.Contains(buf.String(), "payload="))
}

func TestLogHandler_GroupAndStep(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf})

	handler(NewEvent(ChainStepCompleted, 3).WithGroup(2).WithStep(1))

	output := buf.String()
	assert.Contains(t, output, "group=#2")
	assert.Contains(t, output, "step=1")
}

type fakeSink struct{ touches int }

func (f *fakeSink) Touch() { f.touches++ }

func TestStateHandler_TouchesOnLifecycleEvents(t *testing.T) {
	sink := &fakeSink{}
	handler := StateHandler(StateConfig{Sink: sink})

	handler(NewEvent(JobStarted, 1))
	handler(NewEvent(JobCompleted, 1))
	handler(NewEvent(ChainStepCompleted, 1)) // not a lifecycle event, ignored

	assert.Equal(t, 2, sink.touches)
}

func TestStateHandler_NilSink(t *testing.T) {
	handler := StateHandler(StateConfig{})
	assert.NotPanics(t, func() { handler(NewEvent(JobStarted, 1)) })
}
