package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-lane/internal/events"
)

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitFansOut(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Notifiers: []events.Notifier{first, nil, second},
		Now:       func() time.Time { return fixed },
	}

	event, err := bus.Emit(context.Background(), events.TopicCheckoutSettled, "cust-1", map[string]any{"lane": "l1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicCheckoutSettled, event.Topic)
	require.Equal(t, fixed, event.OccurredAt)
	require.JSONEq(t, `{"lane":"l1"}`, string(event.Payload))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, event.ID, second.events[0].ID)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	capture := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(context.Context, events.Event) error { return boom }),
		capture,
	}}

	_, err := bus.Emit(context.Background(), events.TopicLaneExited, "cust-1", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, capture.events, 1)
	require.Equal(t, "{}", string(capture.events[0].Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	var bus *events.Bus
	_, err := bus.Emit(context.Background(), " ", "a", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicLaneExited, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicLaneExited, "a", "{not json")
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicLaneExited, "a", json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(ev.Payload))
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	bus := events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicCheckoutBalanceOwed, "cust-9", map[string]string{"balance": "1.3"})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "domain_event", line["message"])
	require.Equal(t, events.TopicCheckoutBalanceOwed, line["topic"])
	require.Equal(t, map[string]any{"balance": "1.3"}, line["payload"])
}
