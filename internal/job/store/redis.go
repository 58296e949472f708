package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/articleforge/articleforge/internal/job/model"
)

// Redis implements Store on a Redis instance. Each job is a plain
// string value under "job:<id>"; no secondary indexes.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Put upserts the record under its id. Records are kept without TTL;
// expiry policy belongs to the deployment, not the orchestrator.
func (s *Redis) Put(ctx context.Context, rec *model.Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, Key(rec.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store job %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves the record for the id.
func (s *Redis) Get(ctx context.Context, id string) (*model.Record, error) {
	data, err := s.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return model.Decode(data)
}

// Close releases the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}
