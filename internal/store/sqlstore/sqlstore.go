// Package sqlstore 基于 SQLite 的键值存储
package sqlstore

import (
	"context"

	"zenstyle/internal/logger"
	"zenstyle/internal/storage/db"
	"zenstyle/internal/storage/model"
	"zenstyle/internal/storage/repo"
	"zenstyle/internal/store"
	"zenstyle/pkg/errx"

	"gorm.io/gorm"
)

// Store SQLite 键值存储，变更在事务提交后同步分发
type Store struct {
	store.Notifier
	db   *gorm.DB
	repo *repo.EntryRepo
	log  logger.Logger
}

// Open 打开数据库并完成迁移
func Open(opts db.Options, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = db.NewLogger(l)
	}
	gdb, err := db.New(opts)
	if err != nil {
		return nil, errx.Wrap(errx.CodeStoreFailure, err, "打开数据库失败")
	}
	return New(gdb, l)
}

// New 使用已有连接创建存储
func New(gdb *gorm.DB, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := db.Migrate(gdb, &model.Entry{}); err != nil {
		return nil, errx.Wrap(errx.CodeStoreFailure, err, "迁移数据库失败")
	}
	return &Store{
		db:   gdb,
		repo: repo.NewEntryRepo(gdb),
		log:  l.With("component", "sqlstore"),
	}, nil
}

// Get 实现 store.Store
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out, err := s.repo.GetMany(ctx, keys)
	if err != nil {
		return nil, errx.Wrap(errx.CodeStoreFailure, err, "读取存储失败")
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

	var old map[string]string
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		old, err = s.repo.GetMany(ctx, keys, repo.WithTx(tx))
		if err != nil {
			return err
		}
		return s.repo.Upsert(ctx, tx, kvs)
	})
	if err != nil {
		s.log.Err(err, "写入存储失败", "keys", keys)
		return errx.Wrap(errx.CodeStoreFailure, err, "写入存储失败")
	}

	s.Notify(store.Diff(old, kvs), store.AreaLocal)
	return nil
}

// Remove 实现 store.Store
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	var old map[string]string
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		old, err = s.repo.GetMany(ctx, keys, repo.WithTx(tx))
		if err != nil {
			return err
		}
		_, err = s.repo.DeleteKeys(ctx, keys, repo.WithTx(tx))
		return err
	})
	if err != nil {
		s.log.Err(err, "删除存储键失败", "keys", keys)
		return errx.Wrap(errx.CodeStoreFailure, err, "删除存储键失败")
	}

	s.Notify(store.Removed(old), store.AreaLocal)
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.Store = (*Store)(nil)
