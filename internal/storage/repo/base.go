package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Filter 筛选器接口
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Order 排序参数
type Order struct {
	Field string
	Sort  string
}

// Orders 排序参数切片
type Orders []Order

// Option 单次操作选项
type Option func(*opConfig)

type opConfig struct {
	tx *gorm.DB
}

// WithTx 在给定事务中执行
func WithTx(tx *gorm.DB) Option {
	return func(c *opConfig) { c.tx = tx }
}

// BaseRepository 泛型 DAO 基础操作
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础 DAO
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{Db: db}
}

// session 应用选项，有事务时使用事务连接
func (r *BaseRepository[T]) session(ctx context.Context, opts []Option) *gorm.DB {
	cfg := opConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	db := r.Db
	if cfg.tx != nil {
		db = cfg.tx
	}
	return db.WithContext(ctx)
}

// Delete 按筛选器删除，返回删除行数
func (r *BaseRepository[T]) Delete(ctx context.Context, filter Filter, opts ...Option) (int64, error) {
	res := filter.Apply(r.session(ctx, opts)).Delete(new(T))
	return res.RowsAffected, res.Error
}

// FindAll 查询全部匹配记录，filter 可为空
func (r *BaseRepository[T]) FindAll(ctx context.Context, filter Filter, orders Orders, opts ...Option) ([]*T, error) {
	query := r.session(ctx, opts).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	for _, o := range orders {
		query = query.Order(o.Field + " " + o.Sort)
	}

	list := make([]*T, 0)
	if err := query.Find(&list).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return list, nil
}

// Count 统计匹配记录数
func (r *BaseRepository[T]) Count(ctx context.Context, filter Filter, opts ...Option) (int64, error) {
	query := r.session(ctx, opts).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	var n int64
	err := query.Count(&n).Error
	return n, err
}
