package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianmc/meridian-core/internal/observability"
)

// Publisher sends envelopes to the broker. Each publisher owns one origin id
// and a monotonically increasing sequence counter; subscribers use the pair
// to discard duplicates.
type Publisher struct {
	client  *redis.Client
	origin  string
	seq     atomic.Uint64
	metrics *observability.Metrics
}

// NewPublisher constructs a publisher for the given origin process id.
func NewPublisher(client *redis.Client, origin string, metrics *observability.Metrics) *Publisher {
	return &Publisher{client: client, origin: origin, metrics: metrics}
}

// Origin returns the publisher's process id.
func (p *Publisher) Origin() string {
	return p.origin
}

// Publish serializes payload and sends it on topic. It returns once the
// broker acknowledges receipt, not once subscribers have applied it. The
// returned envelope carries the origin and sequence number the caller needs
// to apply the same change locally.
func (p *Publisher) Publish(ctx context.Context, topic, entityID, eventType string, payload any) (Envelope, error) {
	env := Envelope{
		Origin:    p.origin,
		Seq:       p.seq.Add(1),
		EntityID:  entityID,
		Type:      eventType,
		EmittedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("events: marshal payload: %w", err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, topic, data).Err(); err != nil {
		return Envelope{}, fmt.Errorf("events: publish %s: %w", topic, err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(topic).Inc()
	}
	return env, nil
}
