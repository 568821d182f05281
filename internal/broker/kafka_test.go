package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingTimes(n int, calls *int) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		*calls++
		if *calls <= n {
			return errors.New("index unavailable")
		}
		return nil
	}
}

func TestHandleWithRetryRecoversOnSameMessage(t *testing.T) {
	calls := 0
	msg := kafka.Message{Offset: 42, Value: []byte(`{}`)}

	err := handleWithRetry(context.Background(), failingTimes(2, &calls), msg, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	calls := 0

	err := handleWithRetry(context.Background(), failingTimes(10, &calls), kafka.Message{}, 3, time.Millisecond)

	assert.EqualError(t, err, "index unavailable")
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handleWithRetry(ctx, failingTimes(10, &calls), kafka.Message{}, 3, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
