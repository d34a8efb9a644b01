package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stowage/pkg/domain"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	payload, err := domain.NewPayloadFromValue(map[string]int{"day": 1})
	require.NoError(t, err)
	events := sampleEvents()
	events[3].Payload = payload
	require.NoError(t, sink.Publish(context.Background(), events...))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "activity", entries[0].Message)
	assert.Equal(t, "activity", entries[0].LoggerName)

	first := entries[0].ContextMap()
	assert.Equal(t, "placement", first["type"])
	assert.Equal(t, "milk", first["item_id"])
	assert.Equal(t, "S1", first["to"])
	assert.NotContains(t, first, "from")

	third := entries[2].ContextMap()
	assert.Equal(t, "Out of Uses", third["reason"])

	last := entries[3].ContextMap()
	assert.Equal(t, `{"day":1}`, last["payload"])
}

func TestLogSinkNilLogger(t *testing.T) {
	assert.NoError(t, NewLogSink(nil).Publish(context.Background(), sampleEvents()...))
}
