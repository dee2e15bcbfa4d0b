package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/adapters/ai"
)

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("relay did not close in time")
		}
	}
}

func TestRelayFramesChunksInOrder(t *testing.T) {
	relay := NewRelay()

	chunks := make(chan ai.ChatStreamChunk, 3)
	errs := make(chan error, 1)
	chunks <- ai.ChatStreamChunk{Content: "Hel"}
	chunks <- ai.ChatStreamChunk{Content: "lo"}
	chunks <- ai.ChatStreamChunk{Done: true, FinishReason: "stop"}
	close(chunks)
	close(errs)

	content, _, err := relay.Run(context.Background(), chunks, errs)
	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	relay.End()

	events := collectEvents(t, relay.Events())
	require.Len(t, events, 4)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, "Hel", events[1].Content)
	assert.Equal(t, "lo", events[2].Content)
	assert.Equal(t, EventEnd, events[3].Type)
}

func TestRelayCapturesTerminalUsage(t *testing.T) {
	relay := NewRelay()

	chunks := make(chan ai.ChatStreamChunk, 2)
	errs := make(chan error, 1)
	chunks <- ai.ChatStreamChunk{Content: "hi"}
	chunks <- ai.ChatStreamChunk{Done: true, Usage: &ai.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}}
	close(chunks)
	close(errs)

	_, usage, err := relay.Run(context.Background(), chunks, errs)
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.PromptTokens)
	assert.Equal(t, 3, usage.CompletionTokens)
	relay.End()
	collectEvents(t, relay.Events())
}

func TestRelayErrorIsTerminal(t *testing.T) {
	relay := NewRelay()

	chunks := make(chan ai.ChatStreamChunk, 1)
	errs := make(chan error, 1)
	chunks <- ai.ChatStreamChunk{Content: "partial"}
	errs <- &ai.ProviderError{Kind: ai.ErrorKindServer, Message: "upstream died"}
	close(chunks)
	close(errs)

	content, _, err := relay.Run(context.Background(), chunks, errs)
	require.Error(t, err)
	assert.Equal(t, "partial", content)
	relay.Fail("the stream was interrupted")

	events := collectEvents(t, relay.Events())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "the stream was interrupted", last.Content)
	// Nothing follows the error: the channel closed right after it
	for _, e := range events[:len(events)-1] {
		assert.NotEqual(t, EventError, e.Type)
		assert.NotEqual(t, EventEnd, e.Type)
	}
}

func TestRelaySecondRunSkipsStartEvent(t *testing.T) {
	relay := NewRelay()

	failing := make(chan ai.ChatStreamChunk)
	failingErrs := make(chan error, 1)
	failingErrs <- &ai.ProviderError{Kind: ai.ErrorKindRateLimit, Message: "slow down"}
	close(failing)
	close(failingErrs)

	_, _, err := relay.Run(context.Background(), failing, failingErrs)
	require.Error(t, err)

	retry := make(chan ai.ChatStreamChunk, 1)
	retryErrs := make(chan error, 1)
	retry <- ai.ChatStreamChunk{Content: "answer"}
	close(retry)
	close(retryErrs)

	content, _, err := relay.Run(context.Background(), retry, retryErrs)
	require.NoError(t, err)
	assert.Equal(t, "answer", content)
	relay.End()

	events := collectEvents(t, relay.Events())
	starts := 0
	for _, e := range events {
		if e.Type == EventStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
}

func TestRelayAbortClosesWithoutTerminalEvent(t *testing.T) {
	relay := NewRelay()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := make(chan ai.ChatStreamChunk)
	errs := make(chan error)

	_, _, err := relay.Run(ctx, chunks, errs)
	require.ErrorIs(t, err, context.Canceled)
	relay.Abort()

	events := collectEvents(t, relay.Events())
	for _, e := range events {
		assert.NotEqual(t, EventEnd, e.Type)
		assert.NotEqual(t, EventError, e.Type)
	}
}

func TestRelayEndDoesNotBlockAbandonedConsumer(t *testing.T) {
	relay := NewRelay()

	// Fill the delivery buffer without any consumer draining it
	chunks := make(chan ai.ChatStreamChunk, 32)
	errs := make(chan error, 1)
	for i := 0; i < 32; i++ {
		chunks <- ai.ChatStreamChunk{Content: "x"}
	}
	close(chunks)
	close(errs)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := relay.Run(ctx, chunks, errs)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan struct{})
	go func() {
		relay.End()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("End blocked on an abandoned consumer")
	}

	// The channel is closed either way; the terminal event is best effort
	events := collectEvents(t, relay.Events())
	assert.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Type)
}
