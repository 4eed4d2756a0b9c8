// Package redisstore 基于 Redis 的键值存储，变更通过发布订阅在进程间广播
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"zenstyle/internal/logger"
	"zenstyle/internal/store"
	"zenstyle/pkg/errx"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix 默认键前缀
const DefaultPrefix = "zenstyle:"

// message 变更广播消息
type message struct {
	Source  string                  `json:"source"`
	Changes map[string]store.Change `json:"changes"`
}

// Store Redis 键值存储。
// 本进程的写入在成功后同步通知，其他进程的写入由 Watch 接收后通知。
type Store struct {
	store.Notifier
	rdb    *redis.Client
	prefix string
	id     string
	log    logger.Logger
}

// New 创建存储，client 由调用方管理
func New(client *redis.Client, prefix string, l logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Store{
		rdb:    client,
		prefix: prefix,
		id:     uuid.NewString(),
		log:    l.With("component", "redisstore"),
	}
}

// Channel 变更广播频道
func (s *Store) Channel() string {
	return s.prefix + "changes"
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get 实现 store.Store
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, errx.Wrap(errx.CodeStoreFailure, err, "读取 Redis 失败")
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

// Set 实现 store.Store
func (s *Store) Set(ctx context.Context, kvs map[string]string) error {
	if len(kvs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	old, err := s.Get(ctx, keys...)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range kvs {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		s.log.Err(err, "写入 Redis 失败", "keys", keys)
		return errx.Wrap(errx.CodeStoreFailure, err, "写入 Redis 失败")
	}

	s.dispatch(ctx, store.Diff(old, kvs))
	return nil
}

// Remove 实现 store.Store
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	old, err := s.Get(ctx, keys...)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, s.key(k))
		}
		return nil
	})
	if err != nil {
		s.log.Err(err, "删除 Redis 键失败", "keys", keys)
		return errx.Wrap(errx.CodeStoreFailure, err, "删除 Redis 键失败")
	}

	s.dispatch(ctx, store.Removed(old))
	return nil
}

// dispatch 先通知本进程，再广播给其他进程
func (s *Store) dispatch(ctx context.Context, changes map[string]store.Change) {
	if len(changes) == 0 {
		return
	}
	s.Notify(changes, store.AreaLocal)

	payload, err := json.Marshal(message{Source: s.id, Changes: changes})
	if err != nil {
		s.log.Err(err, "序列化变更消息失败")
		return
	}
	if err := s.rdb.Publish(ctx, s.Channel(), payload).Err(); err != nil {
		s.log.Warn("广播变更失败", "error", err.Error())
	}
}

// Watch 订阅变更频道，订阅确认后返回，之后在后台分发其他进程的变更直到 ctx 结束
func (s *Store) Watch(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.Channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errx.Wrap(errx.CodeStoreFailure, err, "订阅变更频道失败")
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				s.handleMessage(msg.Payload)
			}
		}
	}()
	return nil
}

func (s *Store) handleMessage(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		s.log.Warn("无法解析变更消息", "error", err.Error())
		return
	}
	if m.Source == s.id {
		return
	}
	s.log.Debug("收到远端变更", "source", m.Source, "keys", len(m.Changes))
	s.Notify(m.Changes, store.AreaLocal)
}

// Ping 检查连接
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errx.Wrap(errx.CodeStoreFailure, err, "连接 Redis 超时")
		}
		return errx.Wrap(errx.CodeStoreFailure, err, fmt.Sprintf("连接 Redis 失败: %s", s.rdb.Options().Addr))
	}
	return nil
}

var _ store.Store = (*Store)(nil)
