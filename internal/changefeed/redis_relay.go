package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anonto42/nano-pulse/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayQueueSize = 1024

// envelope is the wire form of an event on the Redis channel. Row is decoded
// into its concrete model type by relation on receipt.
type envelope struct {
	Origin   string          `json:"origin"`
	Op       Op              `json:"op"`
	Relation models.Relation `json:"relation"`
	Row      json.RawMessage `json:"row"`
}

// RedisRelay fans events out between instances over Redis pub/sub. Local
// publishes are forwarded to the channel; messages from other instances are
// delivered to local subscribers without being forwarded again.
type RedisRelay struct {
	client  *redis.Client
	broker  *Broker
	channel string
	origin  string
	logger  *zap.Logger

	outbound chan Event
}

// NewRedisRelay wires broker to channel on client.
func NewRedisRelay(client *redis.Client, broker *Broker, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:   client,
		broker:   broker,
		channel:  channel,
		origin:   uuid.NewString(),
		logger:   logger.With(zap.String("component", "redis_relay"), zap.String("channel", channel)),
		outbound: make(chan Event, relayQueueSize),
	}
}

// Start subscribes to the channel and begins relaying until ctx is done.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	r.broker.Tap(func(ev Event) {
		select {
		case r.outbound <- ev:
		default:
			r.logger.Warn("relay queue full, dropping outbound event",
				zap.String("relation", string(ev.Relation())), zap.Uint64("seq", ev.Seq))
		}
	})

	go r.sendLoop(ctx)
	go r.receiveLoop(ctx, pubsub)
	r.logger.Info("change feed relay started", zap.String("origin", r.origin))
	return nil
}

func (r *RedisRelay) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.outbound:
			payload, err := encodeEnvelope(r.origin, ev)
			if err != nil {
				r.logger.Error("encode event", zap.Error(err))
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = r.client.Publish(pubCtx, r.channel, payload).Err()
			cancel()
			if err != nil {
				r.logger.Error("publish event", zap.Error(err), zap.String("relation", string(ev.Relation())))
			}
		}
	}
}

func (r *RedisRelay) receiveLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			origin, op, row, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("drop undecodable event", zap.Error(err))
				continue
			}
			if origin == r.origin {
				continue
			}
			r.broker.Deliver(op, row)
		}
	}
}

func encodeEnvelope(origin string, ev Event) ([]byte, error) {
	row, err := json.Marshal(ev.Row)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Origin: origin, Op: ev.Op, Relation: ev.Relation(), Row: row})
}

func decodeEnvelope(data []byte) (string, Op, models.Row, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", "", nil, err
	}
	switch env.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return "", "", nil, fmt.Errorf("unknown op %q", env.Op)
	}
	row, err := DecodeRow(env.Relation, env.Row)
	if err != nil {
		return "", "", nil, err
	}
	return env.Origin, env.Op, row, nil
}

// DecodeRow turns a JSON row of relation rel into its model type.
func DecodeRow(rel models.Relation, raw []byte) (models.Row, error) {
	switch {
	case rel.IsEdge():
		var e models.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		e.Relation = rel
		return e, nil
	case rel == models.RelationPosts:
		var p models.Post
		err := json.Unmarshal(raw, &p)
		return p, err
	case rel == models.RelationComments:
		var c models.Comment
		err := json.Unmarshal(raw, &c)
		return c, err
	case rel == models.RelationNotifications:
		var n models.Notification
		err := json.Unmarshal(raw, &n)
		return n, err
	case rel == models.RelationUsers:
		var u models.User
		err := json.Unmarshal(raw, &u)
		return u, err
	}
	return nil, fmt.Errorf("unknown relation %q", rel)
}
