package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConsumer_ConsumeExchangeModeDeclaresAndBinds(t *testing.T) {
	deliveries := make(chan amqp.Delivery)

	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "inbox", "direct", true, false, false, false, amqp.Table(nil)).Return(nil).Once()
	ch.On("QueueDeclare", "inbox", true, false, false, false, amqp.Table(nil)).Return(nil).Once()
	ch.On("QueueBind", "inbox", "inbox", "inbox", false, amqp.Table(nil)).Return(nil).Once()
	ch.On("Consume", "inbox", mock.MatchedBy(func(tag string) bool {
		return strings.HasPrefix(tag, "relay-test-")
	}), false, false, false, false, amqp.Table(nil)).Return((<-chan amqp.Delivery)(deliveries), nil).Once()

	consumer := NewConsumer(newTestConnection(ch), discardLogger(), WithConsumerTagPrefix("relay-test"))

	stream, err := consumer.Consume(context.Background(), ExchangeTopology("inbox", KindDirect))
	require.NoError(t, err)

	assert.Equal(t, "inbox", stream.Topology().Name)
	assert.True(t, strings.HasPrefix(stream.ConsumerTag(), "relay-test-"))
	ch.AssertExpectations(t)
	ch.AssertNotCalled(t, "Qos", mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_ConsumeDirectModeDeclaresQueueOnly(t *testing.T) {
	deliveries := make(chan amqp.Delivery)

	ch := &mockChannel{}
	ch.On("QueueDeclare", "results", false, false, true, false, amqp.Table(nil)).Return(nil)
	ch.On("Qos", 10, 0, false).Return(nil)
	ch.On("Consume", "results", mock.Anything, false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(deliveries), nil)

	consumer := NewConsumer(newTestConnection(ch), discardLogger(), WithPrefetch(10))

	_, err := consumer.Consume(context.Background(), ResultQueue("results"))
	require.NoError(t, err)

	ch.AssertExpectations(t)
	ch.AssertNotCalled(t, "ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ch.AssertNotCalled(t, "QueueBind", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_SetupErrorIsLoggedAndReturned(t *testing.T) {
	bindErr := errors.New("NOT_FOUND - no exchange")

	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "inbox", "fanout", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueDeclare", "inbox", true, false, false, false, amqp.Table(nil)).Return(nil)
	ch.On("QueueBind", "inbox", "inbox", "inbox", false, amqp.Table(nil)).Return(bindErr)

	logger, logs := bufferLogger()
	consumer := NewConsumer(newTestConnection(ch), logger)

	stream, err := consumer.Consume(context.Background(), ExchangeTopology("inbox", KindFanout))
	require.ErrorIs(t, err, bindErr)
	assert.Nil(t, stream)

	ch.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Contains(t, logs.String(), `"msg":"failed to consume messages"`)
	assert.Contains(t, logs.String(), `"topology":"inbox"`)
}

func TestConsumer_ServeDecodesJSONAndAcks(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `{"hello":"world"}`), discardLogger())

	var got []*Envelope
	consumer := NewConsumer(nil, discardLogger())
	err := consumer.Serve(context.Background(), stream, func(_ context.Context, env *Envelope) error {
		got = append(got, env)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"hello": "world"}, got[0].Value)
	assert.False(t, got[0].Raw)
	assert.Equal(t, "msg-{\"hello\":\"world\"}", got[0].MessageID)
	assert.Equal(t, []uint64{1}, acker.Acked())
	assert.Empty(t, acker.Nacked())
}

func TestConsumer_ServeFallsBackToRawTextAndAcks(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, "notjson", "{broken"), discardLogger())

	var values []any
	consumer := NewConsumer(nil, discardLogger())
	err := consumer.Serve(context.Background(), stream, func(_ context.Context, env *Envelope) error {
		assert.True(t, env.Raw)
		values = append(values, env.Value)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []any{"notjson", "{broken"}, values)
	assert.Equal(t, []uint64{1, 2}, acker.Acked())
}

func TestConsumer_ServeDecodesScalarJSON(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `"quoted"`, `42`, `[1,"a"]`), discardLogger())

	var values []any
	consumer := NewConsumer(nil, discardLogger())
	require.NoError(t, consumer.Serve(context.Background(), stream, func(_ context.Context, env *Envelope) error {
		values = append(values, env.Value)
		return nil
	}))

	assert.Equal(t, []any{"quoted", float64(42), []any{float64(1), "a"}}, values)
}

func TestConsumer_HandlerErrorRejectsWithoutRequeue(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `{"n":1}`, `{"n":2}`), discardLogger())

	consumer := NewConsumer(nil, discardLogger())
	err := consumer.Serve(context.Background(), stream, func(_ context.Context, env *Envelope) error {
		var payload struct{ N int }
		assert.NoError(t, env.Decode(&payload))
		if payload.N == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, acker.Nacked())
	assert.Equal(t, []bool{false}, acker.requeue)
	assert.Equal(t, []uint64{2}, acker.Acked())
}

func TestConsumer_HandlerErrorLeaveUnacked(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `{}`), discardLogger())

	consumer := NewConsumer(nil, discardLogger(), WithFailurePolicy(FailureLeaveUnacked))
	err := consumer.Serve(context.Background(), stream, func(context.Context, *Envelope) error {
		return errors.New("boom")
	})
	require.NoError(t, err)

	assert.Empty(t, acker.Acked())
	assert.Empty(t, acker.Nacked())
}

func TestConsumer_HandlerPanicIsRecovered(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `{}`, `{}`), discardLogger())

	logger, logs := bufferLogger()
	consumer := NewConsumer(nil, logger)

	var calls atomic.Int32
	err := consumer.Serve(context.Background(), stream, func(context.Context, *Envelope) error {
		if calls.Add(1) == 1 {
			panic("nil map write")
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, acker.Nacked())
	assert.Equal(t, []uint64{2}, acker.Acked())
	assert.Contains(t, logs.String(), `"msg":"panic recovered"`)
	assert.Contains(t, logs.String(), ErrHandlerPanic.Error())
}

func TestConsumer_ServeRespectsConcurrencyLimit(t *testing.T) {
	acker := &fakeAcknowledger{}
	bodies := make([]string, 8)
	for i := range bodies {
		bodies[i] = `{}`
	}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, bodies...), discardLogger())

	var inFlight, maxInFlight atomic.Int32
	consumer := NewConsumer(nil, discardLogger(), WithConcurrency(2))
	err := consumer.Serve(context.Background(), stream, func(context.Context, *Envelope) error {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	assert.Len(t, acker.Acked(), 8)
}

func TestConsumer_ServeWaitsForInFlightHandlers(t *testing.T) {
	acker := &fakeAcknowledger{}
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", deliveriesOf(acker, `{}`), discardLogger())

	var finished atomic.Bool
	consumer := NewConsumer(nil, discardLogger(), WithConcurrency(4))
	err := consumer.Serve(context.Background(), stream, func(context.Context, *Envelope) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	require.NoError(t, err)

	assert.True(t, finished.Load(), "Serve returned before the handler completed")
	assert.Equal(t, []uint64{1}, acker.Acked())
}

func TestConsumer_ServeStopsOnContextCancel(t *testing.T) {
	stream := newStream(&mockChannel{}, DirectQueue("testq"), "tag", make(chan amqp.Delivery), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(nil, discardLogger()).Serve(ctx, stream, func(context.Context, *Envelope) error { return nil })
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStream_CloseCancelsConsumerOnce(t *testing.T) {
	deliveries := make(chan amqp.Delivery)

	ch := &mockChannel{}
	ch.On("Cancel", "tag-1", false).Return(nil).Run(func(mock.Arguments) {
		close(deliveries)
	}).Once()

	stream := newStream(ch, DirectQueue("testq"), "tag-1", deliveries, discardLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	var serveErr error
	go func() {
		defer wg.Done()
		serveErr = NewConsumer(nil, discardLogger()).Serve(context.Background(), stream, func(context.Context, *Envelope) error { return nil })
	}()

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	wg.Wait()

	assert.NoError(t, serveErr)
	ch.AssertNumberOfCalls(t, "Cancel", 1)

	_, err := stream.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStream_CloseError(t *testing.T) {
	cancelErr := errors.New("channel/connection is not open")

	ch := &mockChannel{}
	ch.On("Cancel", "tag-1", false).Return(cancelErr).Once()

	stream := newStream(ch, DirectQueue("testq"), "tag-1", make(chan amqp.Delivery), discardLogger())

	require.ErrorIs(t, stream.Close(), cancelErr)
	require.ErrorIs(t, stream.Close(), cancelErr)
	ch.AssertNumberOfCalls(t, "Cancel", 1)
}

func TestEnvelope_DecodeError(t *testing.T) {
	env := newEnvelope(amqp.Delivery{Body: []byte("plain text")})

	assert.True(t, env.Raw)
	assert.Equal(t, "plain text", env.Value)

	var v map[string]any
	assert.Error(t, env.Decode(&v))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"direct": ModeDirect, "queue": ModeDirect, "Exchange": ModeExchange} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("topic")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
