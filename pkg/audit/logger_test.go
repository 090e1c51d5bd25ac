package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWritesPrefixedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	err := l.Record(context.Background(), EventBypass, "operator-1", "cooling.bypass", "phoenix_sess_1", map[string]any{"reason": "incident"})
	require.NoError(t, err)

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "operator-1", event.Actor)
	assert.Equal(t, EventBypass, event.Type)
	assert.Equal(t, "cooling.bypass", event.Action)
	assert.Equal(t, "incident", event.Metadata["reason"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecordDefaultsActor(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)
	require.NoError(t, l.Record(context.Background(), EventSystem, "", "startup", "kernel", nil))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(buf.String()), "AUDIT: ")), &event))
	assert.Equal(t, "system", event.Actor)
}

func TestRecordConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Record(context.Background(), EventConfig, "system", "config.reload", "config.yaml", nil))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 10)
	for _, line := range lines {
		var event Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "AUDIT: ")), &event))
	}
}
