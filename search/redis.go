// Package search mirrors task text into Redis so lookups can run against
// an external index. Each task is a sonic-encoded document keyed by
// profile and task ID, with a per-profile member set for enumeration.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "search:"

// Entry is the indexed projection of a task.
type Entry struct {
	TaskID       uuid.UUID `json:"taskId"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	CategoryName string    `json:"categoryName,omitempty"`
	Completed    bool      `json:"isCompleted"`
}

// SetKey returns the member set holding a profile's indexed task IDs.
func SetKey(profile string) string { return keyPrefix + profile }

// DocKey returns the key holding one task's indexed document.
func DocKey(profile string, taskID uuid.UUID) string {
	return keyPrefix + profile + ":" + taskID.String()
}

// RedisIndex is the Redis-backed search index.
type RedisIndex struct {
	redis *redis.Client
}

// NewRedisIndex wraps a connected client.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	if client == nil {
		panic("search.NewRedisIndex: redis client is required")
	}
	return &RedisIndex{redis: client}
}

// Upsert writes or replaces the documents for the given entries.
func (ix *RedisIndex) Upsert(ctx context.Context, profile string, entries ...Entry) error {
	for _, e := range entries {
		payload, err := sonic.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode search entry: %w", err)
		}
		if err := ix.redis.Set(ctx, DocKey(profile, e.TaskID), payload, 0).Err(); err != nil {
			return fmt.Errorf("store search entry: %w", err)
		}
		if err := ix.redis.SAdd(ctx, SetKey(profile), e.TaskID.String()).Err(); err != nil {
			return fmt.Errorf("register search entry: %w", err)
		}
	}
	return nil
}

// Remove drops a task's document. Removing an unindexed task is not an
// error.
func (ix *RedisIndex) Remove(ctx context.Context, profile string, taskID uuid.UUID) error {
	if err := ix.redis.SRem(ctx, SetKey(profile), taskID.String()).Err(); err != nil {
		return fmt.Errorf("unregister search entry: %w", err)
	}
	if err := ix.redis.Del(ctx, DocKey(profile, taskID)).Err(); err != nil {
		return fmt.Errorf("delete search entry: %w", err)
	}
	return nil
}

// Query returns the entries whose title, description, or category name
// contains term, ignoring case. Documents that fail to decode are dropped
// from the index. Results are ordered by title for stable output.
func (ix *RedisIndex) Query(ctx context.Context, profile, term string) ([]Entry, error) {
	members, err := ix.redis.SMembers(ctx, SetKey(profile)).Result()
	if err != nil {
		return nil, fmt.Errorf("list search entries: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			ix.redis.SRem(ctx, SetKey(profile), m)
			continue
		}
		keys = append(keys, DocKey(profile, id))
		ids = append(ids, m)
	}

	vals, err := ix.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch search entries: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	var out []Entry
	for i, raw := range vals {
		payload, ok := raw.(string)
		if !ok {
			ix.redis.SRem(ctx, SetKey(profile), ids[i])
			continue
		}
		var e Entry
		if err := sonic.Unmarshal([]byte(payload), &e); err != nil {
			ix.redis.SRem(ctx, SetKey(profile), ids[i])
			ix.redis.Del(ctx, keys[i])
			continue
		}
		if needle == "" || matches(e, needle) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return out[i].TaskID.String() < out[j].TaskID.String()
	})
	return out, nil
}

// Clear drops every document for a profile.
func (ix *RedisIndex) Clear(ctx context.Context, profile string) error {
	members, err := ix.redis.SMembers(ctx, SetKey(profile)).Result()
	if err != nil {
		return fmt.Errorf("list search entries: %w", err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		if id, err := uuid.Parse(m); err == nil {
			keys = append(keys, DocKey(profile, id))
		}
	}
	keys = append(keys, SetKey(profile))
	if err := ix.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear search entries: %w", err)
	}
	return nil
}

func matches(e Entry, needle string) bool {
	return strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(e.Description), needle) ||
		strings.Contains(strings.ToLower(e.CategoryName), needle)
}
