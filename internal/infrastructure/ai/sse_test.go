package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeSSE(t *testing.T) {
	input := ": keepalive\n" +
		"event: first\n" +
		"data: one\n" +
		"data: two\n" +
		"\n" +
		"\n" +
		"data: {\"x\":1}\n"

	type got struct{ event, data string }
	var events []got
	err := consumeSSE(context.Background(), strings.NewReader(input), func(event, data string) error {
		events = append(events, got{event, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []got{{"first", "one\ntwo"}, {"", `{"x":1}`}}, events)
}

func TestConsumeSSEStopsOnHandlerError(t *testing.T) {
	calls := 0
	err := consumeSSE(context.Background(), strings.NewReader("data: a\n\ndata: b\n\n"), func(string, string) error {
		calls++
		return errConsumerStopped
	})
	assert.ErrorIs(t, err, errConsumerStopped)
	assert.Equal(t, 1, calls)
}
