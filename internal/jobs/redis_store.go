package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/moznion/go-optional"
	"github.com/produvia/kryptos-go/internal/broker"
	"github.com/produvia/kryptos-go/internal/logger"
	"github.com/produvia/kryptos-go/internal/strategy"
	"github.com/produvia/kryptos-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis key layout. Queue lists hold job ids; jobs, run state, and worker
// entries are JSON values.
const (
	keyQueuePrefix = "jobs:queue:"
	keyJobPrefix   = "jobs:job:"
	keyStatePrefix = "jobs:state:"
	keyKillSet     = "jobs:kill"
	keyWorkers     = "jobs:workers"
	keyUpdates     = keyQueuePrefix + string(QueueUpdates)
)

// RedisConfig configures the shared Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Retention bounds how long terminal jobs stay queryable. Zero means
	// DefaultRetention.
	Retention time.Duration
}

// RedisStore is the production Store over a shared Redis instance. All
// cross-process coordination (queues, kill switches, worker registry) lives
// here.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	logger    *logger.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.WrapKind(errors.ErrCodeQueueUnavailable, errors.KindTransient,
			"failed to connect to redis", err)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	log.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	return &RedisStore{
		client:    client,
		retention: retention,
		logger:    log.Named("store"),
	}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Enqueue implements Store. The job key is claimed inside a WATCH transaction
// so two submitters racing on the same run id cannot both enqueue it: the
// loser's transaction aborts and surfaces as a duplicate.
func (s *RedisStore) Enqueue(ctx context.Context, job *Job) error {
	job.Status = StatusQueued
	job.EnqueuedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to marshal job", err)
	}

	key := keyJobPrefix + job.ID

	claim := func(tx *redis.Tx) error {
		prior, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if err == nil {
			existing := &Job{}
			if err := json.Unmarshal(prior, existing); err != nil {
				return err
			}

			// Terminal jobs may be resubmitted; in-flight ones may not.
			if !existing.Status.Terminal() {
				return errors.Newf(errors.ErrCodeDuplicateJob, "job %s is already in flight", job.ID)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.LPush(ctx, keyQueuePrefix+string(job.Queue), job.ID)

			return nil
		})

		return err
	}

	err = s.client.Watch(ctx, claim, key)
	switch {
	case err == nil:
		return nil
	case errors.HasCode(err, errors.ErrCodeDuplicateJob):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return errors.Newf(errors.ErrCodeDuplicateJob, "job %s is already in flight", job.ID)
	default:
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to enqueue job", err)
	}
}

// Dequeue implements Store using BRPOP across the queue keys.
func (s *RedisStore) Dequeue(ctx context.Context, queues []Queue, timeout time.Duration) (*Job, error) {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = keyQueuePrefix + string(q)
	}

	popped, err := s.client.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to pop job", err)
	}

	// BRPOP returns [key, value].
	return s.Job(ctx, popped[1])
}

// Requeue implements Store.
func (s *RedisStore) Requeue(ctx context.Context, job *Job) error {
	job.Status = StatusQueued

	if err := s.saveJob(ctx, job, 0); err != nil {
		return err
	}

	if err := s.client.LPush(ctx, keyQueuePrefix+string(job.Queue), job.ID).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to requeue job", err)
	}

	return nil
}

// Job implements Store.
func (s *RedisStore) Job(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, keyJobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Newf(errors.ErrCodeJobNotFound, "job %s not found", id)
		}

		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to load job", err)
	}

	job := &Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to unmarshal job", err)
	}

	return job, nil
}

// UpdateStatus implements Store.
func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return s.mutateJob(ctx, id, func(job *Job) {
		job.Status = status

		switch status {
		case StatusStarted:
			job.StartedAt = time.Now().UTC()
		case StatusFinished, StatusFailed:
			job.EndedAt = time.Now().UTC()
		case StatusQueued, StatusPaused:
		}
	})
}

// UpdateMeta implements Store.
func (s *RedisStore) UpdateMeta(ctx context.Context, id string, meta Meta) error {
	return s.mutateJob(ctx, id, func(job *Job) {
		job.Meta = meta
	})
}

// SaveResult implements Store.
func (s *RedisStore) SaveResult(ctx context.Context, id string, result broker.Result) error {
	return s.mutateJob(ctx, id, func(job *Job) {
		job.Result = optional.Some(result)
	})
}

// SaveRunState implements Store and strategy.StatePersister.
func (s *RedisStore) SaveRunState(ctx context.Context, runID string, state strategy.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStatePersistence, "failed to marshal run state", err)
	}

	if err := s.client.Set(ctx, keyStatePrefix+runID, data, s.retention).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStatePersistence, "failed to persist run state", err)
	}

	return nil
}

// LoadRunState implements Store.
func (s *RedisStore) LoadRunState(ctx context.Context, runID string) (strategy.State, bool, error) {
	data, err := s.client.Get(ctx, keyStatePrefix+runID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return strategy.State{}, false, nil
		}

		return strategy.State{}, false, errors.Wrap(errors.ErrCodeStatePersistence, "failed to load run state", err)
	}

	state := strategy.State{}
	if err := json.Unmarshal(data, &state); err != nil {
		return strategy.State{}, false, errors.Wrap(errors.ErrCodeStatePersistence, "failed to unmarshal run state", err)
	}

	return state, true, nil
}

// RequestKill implements Store.
func (s *RedisStore) RequestKill(ctx context.Context, runID string) error {
	if err := s.client.SAdd(ctx, keyKillSet, runID).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to request kill", err)
	}

	return nil
}

// ConsumeKill implements Store. SREM is atomic, so concurrent watchers cannot
// both observe the same entry.
func (s *RedisStore) ConsumeKill(ctx context.Context, runID string) (bool, error) {
	removed, err := s.client.SRem(ctx, keyKillSet, runID).Result()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to consume kill entry", err)
	}

	return removed > 0, nil
}

// RegisterWorker implements Store.
func (s *RedisStore) RegisterWorker(ctx context.Context, info WorkerInfo) error {
	info.LastBeat = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to marshal worker entry", err)
	}

	if err := s.client.HSet(ctx, keyWorkers, info.ID, data).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to register worker", err)
	}

	return nil
}

// Heartbeat implements Store.
func (s *RedisStore) Heartbeat(ctx context.Context, workerID, currentJob string) error {
	data, err := s.client.HGet(ctx, keyWorkers, workerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errors.Newf(errors.ErrCodeWorkerNotFound, "worker %s not registered", workerID)
		}

		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to load worker entry", err)
	}

	info := WorkerInfo{}
	if err := json.Unmarshal(data, &info); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to unmarshal worker entry", err)
	}

	info.CurrentJob = currentJob
	info.LastBeat = time.Now().UTC()

	return s.RegisterWorker(ctx, info)
}

// Workers implements Store.
func (s *RedisStore) Workers(ctx context.Context) ([]WorkerInfo, error) {
	entries, err := s.client.HGetAll(ctx, keyWorkers).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to list workers", err)
	}

	workers := make([]WorkerInfo, 0, len(entries))

	for id, data := range entries {
		info := WorkerInfo{}
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			s.logger.Warn("dropping unreadable worker entry", zap.String("worker_id", id), zap.Error(err))

			continue
		}

		workers = append(workers, info)
	}

	return workers, nil
}

// DeregisterWorker implements Store.
func (s *RedisStore) DeregisterWorker(ctx context.Context, workerID string) error {
	if err := s.client.HDel(ctx, keyWorkers, workerID).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to deregister worker", err)
	}

	return nil
}

// QueueDepth implements Store.
func (s *RedisStore) QueueDepth(ctx context.Context, queue Queue) (int, error) {
	depth, err := s.client.LLen(ctx, keyQueuePrefix+string(queue)).Result()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to read queue depth", err)
	}

	return int(depth), nil
}

// PushUpdate implements Store.
func (s *RedisStore) PushUpdate(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to marshal notification", err)
	}

	if err := s.client.LPush(ctx, keyUpdates, data).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to push notification", err)
	}

	return nil
}

// PopUpdate implements Store.
func (s *RedisStore) PopUpdate(ctx context.Context, timeout time.Duration) (*Notification, error) {
	popped, err := s.client.BRPop(ctx, timeout, keyUpdates).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to pop notification", err)
	}

	n := &Notification{}
	if err := json.Unmarshal([]byte(popped[1]), n); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to unmarshal notification", err)
	}

	return n, nil
}

// mutateJob loads, mutates, and rewrites a job. The queue system has
// single-owner semantics per in-flight job, so read-modify-write is safe.
func (s *RedisStore) mutateJob(ctx context.Context, id string, mutate func(*Job)) error {
	job, err := s.Job(ctx, id)
	if err != nil {
		return err
	}

	mutate(job)

	ttl := time.Duration(0)
	if job.Status.Terminal() {
		ttl = s.retention
	}

	return s.saveJob(ctx, job, ttl)
}

func (s *RedisStore) saveJob(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to marshal job", err)
	}

	if err := s.client.Set(ctx, keyJobPrefix+job.ID, data, ttl).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueueUnavailable, "failed to save job", err)
	}

	return nil
}
