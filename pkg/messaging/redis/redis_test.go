package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

func newTestBroker(t *testing.T) (*miniredis.Miniredis, messaging.Broker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	return mr, NewRedisBroker(client, nil, nil)
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	_, broker := newTestBroker(t)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := broker.Subscribe(ctx, "changes")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "changes", map[string]string{"collection": "doctors"}))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"collection":"doctors"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBroker_SubscribeClosesOnCancel(t *testing.T) {
	_, broker := newTestBroker(t)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, "changes")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBrokerAdapter_RawPayload(t *testing.T) {
	_, broker := newTestBroker(t)
	adapter := messaging.NewBrokerAdapter(broker, nil)
	defer adapter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	require.NoError(t, adapter.Subscribe(ctx, "changes", func(b []byte) error {
		got <- b
		return nil
	}))
	require.NoError(t, adapter.Publish(ctx, "changes", []byte(`{"op":"update"}`)))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"op":"update"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "not a url"})
	assert.Error(t, err)
}
