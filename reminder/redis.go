// Package reminder keeps the pending-reminder schedule in a Redis sorted
// set per profile, scored by the unix time each reminder fires. Due
// lookups are a single range query.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reminders:"

// Key returns the sorted-set key holding a profile's reminders.
func Key(profile string) string { return keyPrefix + profile }

// RedisScheduler is the Redis-backed reminder schedule.
type RedisScheduler struct {
	redis *redis.Client
}

// NewRedisScheduler wraps a connected client.
func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	if client == nil {
		panic("reminder.NewRedisScheduler: redis client is required")
	}
	return &RedisScheduler{redis: client}
}

// Schedule registers the reminder for a task, replacing any previous one.
func (s *RedisScheduler) Schedule(ctx context.Context, profile string, taskID uuid.UUID, at time.Time) error {
	err := s.redis.ZAdd(ctx, Key(profile), redis.Z{
		Score:  float64(at.Unix()),
		Member: taskID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

// Cancel removes a task's reminder. Cancelling a reminder that does not
// exist is not an error.
func (s *RedisScheduler) Cancel(ctx context.Context, profile string, taskID uuid.UUID) error {
	if err := s.redis.ZRem(ctx, Key(profile), taskID.String()).Err(); err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return nil
}

// Due returns the IDs of tasks whose reminders have fired by now, soonest
// first. Members that no longer parse as UUIDs are dropped from the set.
func (s *RedisScheduler) Due(ctx context.Context, profile string, now time.Time) ([]uuid.UUID, error) {
	members, err := s.redis.ZRangeByScore(ctx, Key(profile), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			s.redis.ZRem(ctx, Key(profile), m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Clear drops every reminder for a profile.
func (s *RedisScheduler) Clear(ctx context.Context, profile string) error {
	if err := s.redis.Del(ctx, Key(profile)).Err(); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}
	return nil
}
