package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/meridianmc/meridian-core/internal/observability"
)

// HandlerFunc is invoked once per received envelope. Errors are logged and
// isolated; a failing handler never stops the subscription loop.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Subscriber delivers broker messages to registered handlers. Delivery is
// concurrent across topics and serialized within a topic. The underlying
// pub/sub connection resubscribes after a drop; messages missed while the
// connection was down are not replayed, the next cache read falls back to
// the store instead.
type Subscriber struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	handlers map[string][]HandlerFunc
}

// NewSubscriber constructs a subscriber bound to the given broker client.
func NewSubscriber(client *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		client:   client,
		logger:   logger,
		metrics:  metrics,
		handlers: make(map[string][]HandlerFunc),
	}
}

// Handle registers a handler for a topic. Must be called before Run.
func (s *Subscriber) Handle(topic string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = append(s.handlers[topic], h)
}

// Run consumes the broker until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	topics := make([]string, 0, len(s.handlers))
	for topic := range s.handlers {
		topics = append(topics, topic)
	}
	s.mu.Unlock()
	if len(topics) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	pubsub := s.client.Subscribe(ctx, topics...)
	defer func() { _ = pubsub.Close() }()

	// One worker per topic keeps within-topic ordering while topics
	// progress independently.
	queues := make(map[string]chan Envelope, len(topics))
	var wg sync.WaitGroup
	for _, topic := range topics {
		queue := make(chan Envelope, 128)
		queues[topic] = queue
		wg.Add(1)
		go func(topic string, queue <-chan Envelope) {
			defer wg.Done()
			for env := range queue {
				s.dispatch(ctx, topic, env)
			}
		}(topic, queue)
	}
	defer func() {
		for _, queue := range queues {
			close(queue)
		}
		wg.Wait()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn("drop malformed event",
					slog.String("topic", msg.Channel), slog.Any("error", err))
				if s.metrics != nil {
					s.metrics.EventsDiscarded.WithLabelValues(msg.Channel).Inc()
				}
				continue
			}
			queue, ok := queues[msg.Channel]
			if !ok {
				continue
			}
			select {
			case queue <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, topic string, env Envelope) {
	s.mu.Lock()
	handlers := s.handlers[topic]
	s.mu.Unlock()
	for _, h := range handlers {
		s.invoke(ctx, topic, env, h)
	}
}

func (s *Subscriber) invoke(ctx context.Context, topic string, env Envelope, h HandlerFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("event handler panic",
				slog.String("topic", topic),
				slog.String("entity", env.EntityID),
				slog.Any("panic", rec))
		}
	}()
	if err := h(ctx, env); err != nil {
		s.logger.Warn("event handler failed",
			slog.String("topic", topic),
			slog.String("entity", env.EntityID),
			slog.Uint64("seq", env.Seq),
			slog.Any("error", err))
	}
}
