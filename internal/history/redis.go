package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/metrics"
)

// Redis defaults
const (
	DefaultRedisKey     = "mediaqueue:history"
	DefaultRedisTimeout = 3 * time.Second
)

// RedisSink mirrors history into a capped Redis list, newest first
type RedisSink struct {
	client     *redis.Client
	key        string
	maxEntries int64
	timeout    time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// ConnectRedis creates a sink and checks the connection
func ConnectRedis(addr, password string, db int, key string, maxEntries int, logger *zap.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		MinIdleConns: 1,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSink(client, key, maxEntries, logger), nil
}

// NewRedisSink wraps an existing client
func NewRedisSink(client *redis.Client, key string, maxEntries int, logger *zap.Logger) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSink{
		client:     client,
		key:        key,
		maxEntries: int64(maxEntries),
		timeout:    DefaultRedisTimeout,
		logger:     logger.Named("history.redis"),
	}
}

// Add pushes rec in the background. Errors are logged and counted.
func (r *RedisSink) Add(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("failed to marshal history record", zap.String("task_id", rec.ID), zap.Error(err))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		pipe := r.client.TxPipeline()
		pipe.LPush(ctx, r.key, data)
		pipe.LTrim(ctx, r.key, 0, r.maxEntries-1)
		if _, err := pipe.Exec(ctx); err != nil {
			metrics.HistoryWriteErrors.WithLabelValues("redis").Inc()
			r.logger.Warn("failed to push history record", zap.String("task_id", rec.ID), zap.Error(err))
		}
	}()
}

// List returns the mirrored records, oldest first
func (r *RedisSink) List() ([]Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	items, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", r.key, err)
	}

	records := make([]Record, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal([]byte(items[i]), &rec); err != nil {
			r.logger.Debug("skipping malformed history entry", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close waits for pending writes and closes the client
func (r *RedisSink) Close() error {
	r.wg.Wait()
	return r.client.Close()
}
