package repo

import (
	"context"
	"time"

	"zenstyle/internal/storage/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyIn 按键集合筛选
type KeyIn []string

// Apply 实现 Filter
func (k KeyIn) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("key IN ?", []string(k))
}

// EntryRepo 键值条目仓库
type EntryRepo struct {
	BaseRepository[model.Entry]
}

// NewEntryRepo 创建键值条目仓库
func NewEntryRepo(db *gorm.DB) *EntryRepo {
	return &EntryRepo{
		BaseRepository: *NewBaseRepository[model.Entry](db),
	}
}

// GetMany 读取多个键，不存在的键不出现在结果中
func (r *EntryRepo) GetMany(ctx context.Context, keys []string, opts ...Option) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := r.FindAll(ctx, KeyIn(keys), Orders{{Field: "key", Sort: "ASC"}}, opts...)
	if err != nil {
		return nil, err
	}
	for _, e := range rows {
		out[e.Key] = e.Value
	}
	return out, nil
}

// Upsert 在一个事务中写入多个键，存在则覆盖
func (r *EntryRepo) Upsert(ctx context.Context, tx *gorm.DB, kvs map[string]string) error {
	if len(kvs) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]model.Entry, 0, len(kvs))
	for k, v := range kvs {
		rows = append(rows, model.Entry{Key: k, Value: v, UpdatedAt: now})
	}
	db := tx
	if db == nil {
		db = r.Db
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// DeleteKeys 删除多个键，返回删除行数
func (r *EntryRepo) DeleteKeys(ctx context.Context, keys []string, opts ...Option) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.Delete(ctx, KeyIn(keys), opts...)
}

// Transaction 在事务中执行 fn
func (r *EntryRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.Db.WithContext(ctx).Transaction(fn)
}
