// Package resultsink optionally publishes finished task ids to Redis for
// out-of-band consumption. It is never part of the dispatch core's own
// correctness — the master already accounts for a finished task the
// moment it reaches the result queue, sink or no sink.
package resultsink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabrieleiannetti/cyclone/internal/events"
	"github.com/gabrieleiannetti/cyclone/internal/logger"
)

// Config holds the [result_sink] section of the master configuration.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	ListKey  string `mapstructure:"list_key"`
}

// pusher is the slice of *redis.Client this sink actually calls, narrowed
// so tests can substitute a fake without dialing a real server.
type pusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Close() error
}

// RedisResultSink subscribes to the dispatch event feed and LPUSHes every
// finished tid onto a Redis list. It never feeds back into the dispatch
// core's own state.
type RedisResultSink struct {
	client  pusher
	listKey string
	cancel  func()
}

// NewRedisResultSink dials Redis, verifies the connection, and subscribes
// to publisher for TaskFinished events.
func NewRedisResultSink(cfg Config, publisher *events.Publisher) (*RedisResultSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("resultsink: connect to redis: %w", err)
	}

	return newResultSink(client, cfg.ListKey, publisher), nil
}

func newResultSink(client pusher, listKey string, publisher *events.Publisher) *RedisResultSink {
	sub, cancel := publisher.Subscribe(64)
	sink := &RedisResultSink{client: client, listKey: listKey, cancel: cancel}
	go sink.run(sub)
	return sink
}

func (s *RedisResultSink) run(sub <-chan *events.Event) {
	log := logger.WithComponent("resultsink")
	for e := range sub {
		if e.Type != events.TaskFinished {
			continue
		}
		tid, _ := e.Data["tid"].(string)
		if tid == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.client.LPush(ctx, s.listKey, tid).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("tid", tid).Msg("failed to push finished tid to redis")
		}
	}
}

// Close unsubscribes from the event feed and closes the Redis connection.
func (s *RedisResultSink) Close() error {
	s.cancel()
	return s.client.Close()
}
