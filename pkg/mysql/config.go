package mysql

import (
	"fmt"
	"time"
)

// Config 定義 MySQL 連線與連線池的配置
type Config struct {
	Host     string `yaml:"host" validate:"required"`           // 資料庫主機地址
	Port     int    `yaml:"port" validate:"required,min=1"`     // 資料庫埠號 (預設 3306)
	User     string `yaml:"user" validate:"required"`           // 使用者名稱
	Password string `yaml:"password"`                           // 密碼
	DBName   string `yaml:"dbname" validate:"required"`         // 資料庫名稱

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=0"`    // 最大開啟連線數
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`    // 最大閒置連線數
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"min=0"` // 連線最大存活時間

	// 連線重試
	MaxRetries    int           `yaml:"max_retries" validate:"min=0"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"min=0"`

	// GORM 設定
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=silent error warn info"` // Log 等級: "silent", "error", "warn", "info"
}

// SetDefaults 補全沒有設定的連線池與重試參數
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 2 * time.Second
	}
}

// DSN (Data Source Name) 產生連線字串
// 格式: user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}
