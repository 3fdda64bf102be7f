package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/domain"
	"invoicesync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultDeadLetterKey = "invoicesync:deadletter"
	deadLetterCap        = 1000
)

// NewRedisClient builds a client from the configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock shared by all instances using the same Redis.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.client == nil {
		return nil, errors.New("redis client is nil")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// DeadLetters keeps tasks that used up their attempts in a capped Redis list, newest first.
type DeadLetters struct {
	client *redis.Client
	key    string
}

func NewDeadLetters(client *redis.Client, key string) *DeadLetters {
	if key == "" {
		key = DefaultDeadLetterKey
	}
	return &DeadLetters{client: client, key: key}
}

func (d *DeadLetters) PushDeadLetter(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode dead letter %d: %w", task.ID, err)
	}
	pipe := d.client.TxPipeline()
	pipe.LPush(ctx, d.key, data)
	pipe.LTrim(ctx, d.key, 0, deadLetterCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dead letter %d: %w", task.ID, err)
	}
	return nil
}

// List returns up to limit dead-lettered tasks, newest first.
func (d *DeadLetters) List(ctx context.Context, limit int) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = models.DefaultPageSize
	}
	raw, err := d.client.LRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	tasks := make([]models.SyncTask, 0, len(raw))
	for _, r := range raw {
		var t models.SyncTask
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
