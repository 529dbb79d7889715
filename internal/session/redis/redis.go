package redis_session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"newsight/config"
	"newsight/internal/models"
	"newsight/internal/session"
)

// Store persists session snapshots in Redis so sessions survive a
// process restart. The retrieval index itself stays in process memory
// and is rebuilt from the persisted chunks on first access.
type Store struct {
	client *redis.Client
	ttl    time.Duration

	mu   sync.RWMutex
	live map[string]*session.Session
}

func NewStore(cfg config.RedisConfig, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: rdb, ttl: ttl, live: make(map[string]*session.Session)}
}

func metaKey(id string) string   { return fmt.Sprintf("session:%s:meta", id) }
func chunksKey(id string) string { return fmt.Sprintf("session:%s:chunks", id) }

func (store *Store) Create(ctx context.Context) (*session.Session, error) {
	sess, err := session.NewSession(store.ttl)
	if err != nil {
		return nil, err
	}
	store.mu.Lock()
	store.live[sess.ID()] = sess
	store.mu.Unlock()
	if err := store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (store *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	store.mu.RLock()
	sess, ok := store.live[id]
	store.mu.RUnlock()
	if ok {
		if sess.Expired() {
			store.mu.Lock()
			delete(store.live, id)
			store.mu.Unlock()
			return nil, session.ErrSessionNotFound
		}
		sess.Expire(store.ttl)
		_ = store.client.Expire(ctx, metaKey(id), store.ttl).Err()
		_ = store.client.Expire(ctx, chunksKey(id), store.ttl).Err()
		return sess, nil
	}
	return store.load(ctx, id)
}

// load rebuilds a session from its Redis snapshot after a restart.
func (store *Store) load(ctx context.Context, id string) (*session.Session, error) {
	val, err := store.client.Get(ctx, metaKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session meta: %w", err)
	}
	var info session.Info
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return nil, fmt.Errorf("decode session meta: %w", err)
	}

	var chunks []models.Chunk
	cval, err := store.client.Get(ctx, chunksKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session chunks: %w", err)
	}
	if cval != "" {
		if err := json.Unmarshal([]byte(cval), &chunks); err != nil {
			return nil, fmt.Errorf("decode session chunks: %w", err)
		}
	}

	sess, err := session.Restore(info, chunks, store.ttl)
	if err != nil {
		return nil, err
	}
	store.mu.Lock()
	store.live[id] = sess
	store.mu.Unlock()
	return sess, nil
}

func (store *Store) Save(ctx context.Context, s *session.Session) error {
	info := s.Snapshot()
	meta, err := json.Marshal(info)
	if err != nil {
		return err
	}
	chunks, err := json.Marshal(s.Index().Chunks())
	if err != nil {
		return err
	}
	if err := store.client.Set(ctx, metaKey(info.ID), meta, store.ttl).Err(); err != nil {
		return fmt.Errorf("save session meta: %w", err)
	}
	if err := store.client.Set(ctx, chunksKey(info.ID), chunks, store.ttl).Err(); err != nil {
		return fmt.Errorf("save session chunks: %w", err)
	}
	return nil
}
