package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/msgxform/internal/observability"
	"github.com/vyrodovalexey/msgxform/internal/retry"
)

const dialTimeout = 5 * time.Second

var broadcastTracer = otel.Tracer("msgxform/broadcast")

// ErrNotStarted is returned by Stop when the subscriber is not running.
var ErrNotStarted = errors.New("broadcast subscriber not started")

// Notice announces a completed reload.
type Notice struct {
	Instance string    `json:"instance"`
	Specs    int       `json:"specs"`
	Profile  string    `json:"profile,omitempty"`
	At       time.Time `json:"at"`
}

// HandlerFunc reacts to a notice published by another instance.
type HandlerFunc func(ctx context.Context, n Notice) error

// Options configures the Redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, opts Options) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	err := retry.Do(pingCtx, retry.Policy{}, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Broadcaster publishes and receives reload notices.
type Broadcaster struct {
	client      redis.UniversalClient
	channel     string
	instance    string
	logger      observability.Logger
	retryPolicy retry.Policy

	mu     sync.Mutex
	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) Option {
	return func(b *Broadcaster) {
		if id != "" {
			b.instance = id
		}
	}
}

// WithRetry sets the retry policy for publishing.
func WithRetry(p retry.Policy) Option {
	return func(b *Broadcaster) {
		b.retryPolicy = p
	}
}

// New creates a broadcaster on channel.
func New(client redis.UniversalClient, channel string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		client:   client,
		channel:  channel,
		instance: uuid.New().String(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Instance returns this broadcaster's instance id.
func (b *Broadcaster) Instance() string {
	return b.instance
}

// Client returns the underlying Redis client.
func (b *Broadcaster) Client() redis.UniversalClient {
	return b.client
}

// Publish announces a reload. The notice's instance and time are filled in.
func (b *Broadcaster) Publish(ctx context.Context, n Notice) error {
	ctx, span := broadcastTracer.Start(ctx, "broadcast.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("messaging.destination.name", b.channel)),
	)
	defer span.End()

	n.Instance = b.instance
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}

	var receivers int64
	policy := b.retryPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		b.logger.Warn("retrying reload notice publish",
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err),
		)
	}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		var pubErr error
		receivers, pubErr = b.client.Publish(ctx, b.channel, payload).Result()
		return pubErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		GetMetrics().published.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish reload notice: %w", err)
	}
	GetMetrics().published.WithLabelValues("ok").Inc()
	b.logger.Debug("reload notice published",
		observability.String("channel", b.channel),
		observability.Int64("receivers", receivers),
	)
	return nil
}

// Start subscribes to the channel and calls handle for every notice from
// another instance. It returns once the subscription is confirmed.
func (b *Broadcaster) Start(ctx context.Context, handle HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return nil
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.sub = sub
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.listen(runCtx, sub.Channel(), handle, b.done)

	b.logger.Info("reload broadcast subscribed",
		observability.String("channel", b.channel),
		observability.String("instance", b.instance),
	)
	return nil
}

// Stop unsubscribes and waits for the listener to exit.
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	sub, cancel, done := b.sub, b.cancel, b.done
	b.sub, b.cancel, b.done = nil, nil, nil
	b.mu.Unlock()

	if sub == nil {
		return ErrNotStarted
	}
	cancel()
	err := sub.Close()
	<-done
	return err
}

func (b *Broadcaster) listen(ctx context.Context, ch <-chan *redis.Message, handle HandlerFunc, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(ctx, msg, handle)
		}
	}
}

func (b *Broadcaster) dispatch(ctx context.Context, msg *redis.Message, handle HandlerFunc) {
	var n Notice
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		GetMetrics().received.WithLabelValues("malformed").Inc()
		b.logger.Warn("ignoring malformed reload notice", observability.Error(err))
		return
	}
	if n.Instance == b.instance {
		GetMetrics().received.WithLabelValues("self").Inc()
		return
	}

	ctx, span := broadcastTracer.Start(ctx, "broadcast.Receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("broadcast.source", n.Instance)),
	)
	defer span.End()

	b.logger.Info("reload notice received",
		observability.String("source", n.Instance),
		observability.Int("specs", n.Specs),
	)
	if err := handle(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reload failed")
		GetMetrics().received.WithLabelValues("error").Inc()
		b.logger.Error("reload triggered by broadcast failed",
			observability.String("source", n.Instance),
			observability.Error(err),
		)
		return
	}
	GetMetrics().received.WithLabelValues("ok").Inc()
}
