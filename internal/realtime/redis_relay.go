package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/metrics"
)

// envelope is the wire form of a relayed event.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between API instances over Redis pub/sub. Each
// instance keeps its own Hub; the relay publishes local events on a per
// conversation channel and feeds events from other instances into the
// local hub.
//
// Order is kept per origin instance only. Local events skip Redis, so a
// subscriber can see this instance's seq N+1 before another instance's seq
// N; clients order by Message.Seq and fill gaps from the message history.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	prefix string
	origin string
	log    zerolog.Logger
}

func NewRedisRelay(ctx context.Context, redisURL, prefix string, hub *Hub, logger zerolog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	if prefix == "" {
		prefix = "bookloop"
	}
	origin := uuid.NewString()
	return &RedisRelay{
		client: client,
		hub:    hub,
		prefix: prefix,
		origin: origin,
		log:    logger.With().Str("component", "relay").Str("origin", origin).Logger(),
	}, nil
}

func (r *RedisRelay) channel(requestID uint64) string {
	return fmt.Sprintf("%s:conv:%d", r.prefix, requestID)
}

// Publish delivers ev locally and then forwards it to the other instances.
// A Redis failure does not undo the local delivery; it is returned so the
// caller can log it.
func (r *RedisRelay) Publish(ctx context.Context, requestID uint64, ev Event) error {
	ev.RequestID = requestID
	stamp(&ev)
	if err := r.hub.Publish(ctx, requestID, ev); err != nil {
		return err
	}

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		metrics.RelayErrors.WithLabelValues("encode").Inc()
		return err
	}
	if err := r.client.Publish(ctx, r.channel(requestID), payload).Err(); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Start subscribes to every conversation channel and returns once Redis
// has confirmed the subscription. Incoming events are delivered until ctx
// is cancelled or the relay is closed.
func (r *RedisRelay) Start(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, r.prefix+":conv:*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	go r.run(ctx, ps)
	return nil
}

func (r *RedisRelay) run(ctx context.Context, ps *redis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg)
		}
	}
}

func (r *RedisRelay) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		metrics.RelayErrors.WithLabelValues("decode").Inc()
		r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("bad relay payload")
		return
	}
	if env.Origin == r.origin {
		return
	}
	// The channel name is authoritative for the conversation id.
	idStr := strings.TrimPrefix(msg.Channel, r.prefix+":conv:")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("decode").Inc()
		return
	}
	env.Event.RequestID = id
	r.hub.Deliver(env.Event)
}

func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
