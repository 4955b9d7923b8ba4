// Package setup 负责建立数据库与 Redis 连接以及数据库迁移。
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DBConfig 描述数据库连接参数
type DBConfig struct {
	Driver     string // mysql | sqlite
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string
	Debug      bool // 打印 SQL
}

// DSN 根据驱动构建连接字符串
func (c DBConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL, "":
		if c.User == "" {
			return "", fmt.Errorf("DB_USER environment variable not set")
		}
		host, port, name := c.Host, c.Port, c.Name
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "3306"
		}
		if name == "" {
			name = "collaborative_board"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, host, port, name), nil
	case DriverSQLite:
		if c.SQLitePath == "" {
			return "file:collaborative_board.db?_foreign_keys=on&_busy_timeout=5000", nil
		}
		return c.SQLitePath, nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

// InitDB 初始化数据库连接
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("failed to build DSN: %w", err)
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	if cfg.Driver == DriverSQLite {
		dialector = sqlite.Open(dsn)
	} else {
		dialector = mysql.Open(dsn)
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.driverName(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite 只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	logrus.WithField("driver", cfg.driverName()).Info("Database connected")
	return db, nil
}

func (c DBConfig) driverName() string {
	if c.Driver == "" {
		return DriverMySQL
	}
	return c.Driver
}

// InitRedis 初始化 Redis 连接并 Ping 验证
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute, // 连接最大存活时间
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client, nil
}
