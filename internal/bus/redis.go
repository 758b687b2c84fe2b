package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis implements Bus over Redis pub/sub channels named after addresses.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL string, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, log), nil
}

// NewRedisWithClient creates a bus from an existing Redis client.
func NewRedisWithClient(client *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{client: client, log: log.With().Str("component", "bus").Logger()}
}

func (r *Redis) Publish(ctx context.Context, address string, body any) error {
	return r.send(ctx, Message{Address: address}, body)
}

func (r *Redis) send(ctx context.Context, msg Message, body any) error {
	raw, err := encode(body)
	if err != nil {
		return err
	}
	msg.Body = raw
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	receivers, err := r.client.Publish(ctx, msg.Address, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Address, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w: %s", ErrNoHandlers, msg.Address)
	}
	return nil
}

func (r *Redis) Request(ctx context.Context, address string, body any) (json.RawMessage, error) {
	inbox := "reply." + uuid.NewString()
	sub := r.client.Subscribe(ctx, inbox)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", inbox, err)
	}

	if err := r.send(ctx, Message{Address: address, ReplyTo: inbox}, body); err != nil {
		return nil, err
	}

	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, fmt.Errorf("reply channel %s closed", inbox)
		}
		var reply Message
		if err := json.Unmarshal([]byte(m.Payload), &reply); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return reply.Body, nil
	case <-ctx.Done():
		return nil, timeoutError(address, ctx.Err())
	}
}

func (r *Redis) Subscribe(ctx context.Context, address string, h HandlerFunc) (Subscription, error) {
	ps := r.client.Subscribe(ctx, address)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", address, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &redisSubscription{ps: ps, cancel: cancel}
	ch := ps.Channel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for m := range ch {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn().Err(err).Str("address", address).Msg("dropping malformed message")
				continue
			}
			go r.dispatch(subCtx, msg, h)
		}
	}()
	return s, nil
}

func (r *Redis) dispatch(ctx context.Context, msg Message, h HandlerFunc) {
	reply := h(ctx, msg)
	if reply == nil || msg.ReplyTo == "" {
		return
	}
	if err := r.send(ctx, Message{Address: msg.ReplyTo}, reply); err != nil {
		r.log.Warn().Err(err).Str("address", msg.Address).Msg("reply not delivered")
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	err    error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.ps.Close()
		s.wg.Wait()
	})
	return s.err
}
