package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmc/meridian-core/internal/observability"
	_ "github.com/meridianmc/meridian-core/testing"
)

func busClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client := busClient(t)
	metrics := observability.NewMetrics()
	pub := NewPublisher(client, "origin-a", metrics)
	sub := NewSubscriber(client, slog.Default(), metrics)

	received := make(chan Envelope, 1)
	sub.Handle("topic.test", func(ctx context.Context, env Envelope) error {
		received <- env
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	// Give the subscription a moment to register before publishing.
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "topic.test").Result()
		return err == nil && n["topic.test"] > 0
	}, time.Second, 5*time.Millisecond)

	type payload struct {
		Value string `json:"value"`
	}
	env, err := pub.Publish(ctx, "topic.test", "player-1", "test.updated", payload{Value: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "origin-a", env.Origin)
	assert.Equal(t, uint64(1), env.Seq)

	select {
	case got := <-received:
		assert.Equal(t, env.Origin, got.Origin)
		assert.Equal(t, env.Seq, got.Seq)
		assert.Equal(t, "player-1", got.EntityID)
		assert.Equal(t, "test.updated", got.Type)
		var p payload
		require.NoError(t, got.DecodePayload(&p))
		assert.Equal(t, "hello", p.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}

	cancel()
	<-done
}

func TestSubscriberDropsMalformedPayload(t *testing.T) {
	client := busClient(t)
	sub := NewSubscriber(client, slog.Default(), observability.NewMetrics())

	received := make(chan Envelope, 1)
	sub.Handle("topic.test", func(ctx context.Context, env Envelope) error {
		received <- env
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "topic.test").Result()
		return err == nil && n["topic.test"] > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Publish(ctx, "topic.test", "not json").Err())
	pub := NewPublisher(client, "origin-a", nil)
	env, err := pub.Publish(ctx, "topic.test", "player-1", "test.updated", map[string]string{"k": "v"})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, env.Seq, got.Seq, "the well-formed event still flows after the malformed one")
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestSubscriberSurvivesHandlerFailure(t *testing.T) {
	client := busClient(t)
	sub := NewSubscriber(client, slog.Default(), nil)

	calls := make(chan uint64, 2)
	sub.Handle("topic.test", func(ctx context.Context, env Envelope) error {
		calls <- env.Seq
		if env.Seq == 1 {
			return errors.New("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "topic.test").Result()
		return err == nil && n["topic.test"] > 0
	}, time.Second, 5*time.Millisecond)

	pub := NewPublisher(client, "origin-a", nil)
	_, err := pub.Publish(ctx, "topic.test", "player-1", "test.updated", nil)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "topic.test", "player-1", "test.updated", nil)
	require.NoError(t, err)

	for want := uint64(1); want <= 2; want++ {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("handler call %d never happened", want)
		}
	}
}
