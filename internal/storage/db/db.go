package db

import (
	"os"
	"path/filepath"

	"zenstyle/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Options 数据库配置选项
type Options struct {
	// Name 数据库文件名，位于应用数据目录下
	Name string
	// FullPath 完整文件路径，优先于 Name
	FullPath string
	// Prefix 表前缀
	Prefix string
	// Logger GORM 日志实现，为空时静默
	Logger glog.Interface
}

// New 创建并初始化数据库连接
func New(opts Options) (*gorm.DB, error) {
	dbPath := opts.FullPath
	if dbPath == "" {
		p, err := GetDefaultPath(opts.Name)
		if err != nil {
			return nil, err
		}
		dbPath = p
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	gl := opts.Logger
	if gl == nil {
		gl = glog.Discard
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gl,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   opts.Prefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}

	// SQLite 单写者，串行化连接避免 SQLITE_BUSY
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate 执行数据库自动迁移
func Migrate(db *gorm.DB, models ...any) error {
	return db.AutoMigrate(models...)
}

// GetDefaultPath 获取平台相关的默认数据库文件路径，绝对路径原样返回
func GetDefaultPath(dbName string) (string, error) {
	if filepath.IsAbs(dbName) {
		return dbName, nil
	}
	dir, err := logger.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbName), nil
}
