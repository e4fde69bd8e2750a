package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/you-humble/mybook/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisJobStore keeps one hash per job plus a ZSET index by creation time
// for the expiry sweep. All mutations of a single job go through a WATCH
// guarded read-modify-write, which gives the per-id atomicity the state
// machine relies on.
type redisJobStore struct {
	rdb *redis.Client
}

func NewRedisJobStore(rdb *redis.Client) *redisJobStore {
	return &redisJobStore{rdb: rdb}
}

func (s *redisJobStore) Create(ctx context.Context, id string, inputKeys []string) error {
	if id == "" {
		return fmt.Errorf("empty job id")
	}

	keys, err := json.Marshal(inputKeys)
	if err != nil {
		return fmt.Errorf("marshal input keys: %w", err)
	}

	now := time.Now()
	hk := jobKey(id)

	pipe := s.rdb.TxPipeline()

	pipe.HSet(ctx, hk, map[string]interface{}{
		"id":         id,
		"status":     string(domain.StatusPending),
		"progress":   0,
		"result":     "",
		"error":      "",
		"input_keys": string(keys),
		"created_at": now.UnixNano(),
		"updated_at": now.UnixNano(),
	})

	pipe.ZAdd(ctx, jobsByCreatedKey(), redis.Z{
		Score:  float64(now.Unix()),
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline Create: %w", err)
	}

	return nil
}

func (s *redisJobStore) Job(ctx context.Context, id string) (domain.Job, error) {
	res, err := s.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("redis HGetAll: %w", err)
	}
	if len(res) == 0 {
		return domain.Job{}, domain.ErrJobNotFound
	}

	return jobFromHash(id, res), nil
}

// Update merges the non-nil patch fields into the stored job. It fails with
// ErrJobNotFound for unknown ids and ErrJobTerminal once the stored status is
// COMPLETED or FAILED, leaving terminal state untouched either way.
func (s *redisJobStore) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	hk := jobKey(id)

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, hk, "status").Result()
		if err == redis.Nil {
			return domain.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("redis HGet status: %w", err)
		}

		if domain.JobStatus(cur).IsTerminal() {
			return domain.ErrJobTerminal
		}

		fields := map[string]interface{}{
			"updated_at": time.Now().UnixNano(),
		}
		if patch.Status != nil {
			fields["status"] = string(*patch.Status)
		}
		if patch.Progress != nil {
			fields["progress"] = *patch.Progress
		}
		if patch.ResultKey != nil {
			fields["result"] = *patch.ResultKey
		}
		if patch.Error != nil {
			fields["error"] = *patch.Error
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hk, fields)
			return nil
		})
		return err
	}, hk)

	if err == redis.TxFailedErr {
		return fmt.Errorf("redis Update conflict on job %s: %w", id, err)
	}

	return err
}

// StaleJobIDs returns jobs that are still not terminal although their last
// write is older than ttl. A job ends up here when the final status write was
// lost; the sweep repairs it out of band.
func (s *redisJobStore) StaleJobIDs(ctx context.Context, now time.Time, ttl time.Duration) []string {
	ids, err := s.rdb.ZRangeByScore(ctx, jobsByCreatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprint(now.Add(-ttl).Unix()),
	}).Result()
	if err != nil {
		slog.Warn("redis StaleJobIDs", slog.String("error", err.Error()))
		return nil
	}

	var stale []string
	for _, id := range ids {
		job, err := s.Job(ctx, id)
		if err != nil {
			continue
		}
		if !job.Status.IsTerminal() && now.Sub(job.UpdatedAt) > ttl {
			stale = append(stale, id)
		}
	}

	return stale
}

// DeleteOlderThan drops job records created more than age ago. Returns the
// number of removed jobs.
func (s *redisJobStore) DeleteOlderThan(ctx context.Context, now time.Time, age time.Duration) int {
	ids, err := s.rdb.ZRangeByScore(ctx, jobsByCreatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprint(now.Add(-age).Unix()),
	}).Result()
	if err != nil {
		slog.Warn("redis DeleteOlderThan", slog.String("error", err.Error()))
		return 0
	}

	deleted := 0
	for _, id := range ids {
		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, jobKey(id))
		pipe.ZRem(ctx, jobsByCreatedKey(), id)

		if _, err := pipe.Exec(ctx); err == nil {
			deleted++
		}
	}

	return deleted
}

func jobFromHash(id string, res map[string]string) domain.Job {
	job := domain.Job{
		ID:        id,
		Status:    domain.JobStatus(res["status"]),
		ResultKey: res["result"],
		Error:     res["error"],
	}

	if v := res["progress"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Progress = n
		}
	}

	if v := res["input_keys"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.InputKeys); err != nil {
			slog.Warn("redis job input_keys", slog.String("job_id", id), slog.String("error", err.Error()))
		}
	}

	if v := res["created_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			job.CreatedAt = time.Unix(0, n)
		}
	}
	if v := res["updated_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			job.UpdatedAt = time.Unix(0, n)
		}
	}

	return job
}

func jobKey(id string) string {
	return "job:" + id
}

func jobsByCreatedKey() string {
	return "jobs:by_created"
}
