package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/sensor-dashboard/pkg/config"
	"github.com/smukkama/sensor-dashboard/pkg/logger"
)

// Client reads sensor paths from Redis and pushes their values to watchers
// whenever a keyspace notification reports a change.
type Client struct {
	rdb *redis.Client
	db  int
	log *zap.Logger
}

// Dial connects to the store described by cfg and verifies the connection.
// The API key is used as the password when the database URL carries none.
func Dial(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = cfg.APIKey
	}
	opts.ClientName = cfg.AppID

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to store %s: %w", opts.Addr, err)
	}

	c := NewClient(rdb, log)
	c.log.Info("connected to store",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("project", cfg.ProjectID),
		zap.String("auth_domain", cfg.AuthDomain),
		zap.String("storage_bucket", cfg.StorageBucket),
		zap.String("sender_id", cfg.MessagingSenderID))

	// Keyspace events may already be enabled, or CONFIG may be disabled on
	// managed deployments; watches still work if the server publishes them.
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "KA").Err(); err != nil {
		c.log.Warn("could not enable keyspace notifications", zap.Error(err))
	}

	return c, nil
}

// NewClient wraps an existing Redis client.
func NewClient(rdb *redis.Client, log *zap.Logger) *Client {
	return &Client{
		rdb: rdb,
		db:  rdb.Options().DB,
		log: logger.OrNop(log),
	}
}

// Watch delivers the current value of key to fn, then the new value after
// every change. Deliveries happen on a single goroutine, in order. The
// returned function stops the watch and may be called more than once.
func (c *Client) Watch(ctx context.Context, key string, fn func(raw any)) (func(), error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", c.db, key)

	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	initial, err := c.Read(ctx, key)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	events := pubsub.Channel()

	go func() {
		fn(initial)

		for {
			select {
			case <-watchCtx.Done():
				return
			case msg, ok := <-events:
				if !ok {
					return
				}
				value, err := c.Read(watchCtx, key)
				if err != nil {
					if watchCtx.Err() != nil {
						return
					}
					c.log.Warn("failed to read changed key",
						zap.String("key", key),
						zap.String("event", msg.Payload),
						zap.Error(err))
					continue
				}
				fn(value)
			}
		}
	}()

	return sync.OnceFunc(func() {
		cancel()
		pubsub.Close()
	}), nil
}

// Read returns the decoded value stored at key: nil when the key does not
// exist, a decoded JSON value for a string, a map for a hash and a slice for
// a list. Strings and members that are not JSON are returned verbatim.
func (c *Client) Read(ctx context.Context, key string) (any, error) {
	typ, err := c.rdb.Type(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read type of %s: %w", key, err)
	}

	switch typ {
	case "none":
		return nil, nil

	case "string":
		data, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}
		return decodeValue(data), nil

	case "hash":
		fields, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get hash %s: %w", key, err)
		}
		out := make(map[string]any, len(fields))
		for field, data := range fields {
			out[field] = decodeValue(data)
		}
		return out, nil

	case "list":
		items, err := c.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get list %s: %w", key, err)
		}
		out := make([]any, len(items))
		for i, data := range items {
			out[i] = decodeValue(data)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported type %q at %s", typ, key)
	}
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func decodeValue(data string) any {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return data
	}
	return v
}
