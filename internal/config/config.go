package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-account-ledger/pkg/logger"
	"github.com/JoeShih716/go-account-ledger/pkg/mysql"
	"github.com/JoeShih716/go-account-ledger/pkg/postgres"
)

// EnvPath 指定設定檔路徑的環境變數
const EnvPath = "LEDGER_CONFIG"

// DefaultPath 未指定時讀取的設定檔
const DefaultPath = "config/config.yaml"

// StoreKind 帳戶儲存的實作
type StoreKind string

const (
	StoreMySQL     StoreKind = "mysql"
	StorePostgres  StoreKind = "postgres"
	StoreMemory    StoreKind = "memory"    // MutexStore
	StoreSequenced StoreKind = "sequenced" // SequencedStore
)

// Config 服務設定
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      logger.Config   `yaml:"log"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	MySQL    mysql.Config    `yaml:"mysql" validate:"-"`
	Postgres postgres.Config `yaml:"postgres" validate:"-"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

type LedgerConfig struct {
	Store StoreKind `yaml:"store" validate:"required,oneof=mysql postgres memory sequenced"`
	// WALPath 記憶體 store 的 WAL 檔；空字串表示不落地
	WALPath string `yaml:"wal_path"`
	// PreloadFromMySQL 記憶體 store 啟動時先從 MySQL 載入全部帳戶
	PreloadFromMySQL bool `yaml:"preload_from_mysql"`
	QueueSize        int  `yaml:"queue_size" validate:"min=0"`
}

// InMemory 是否使用記憶體 store
func (c LedgerConfig) InMemory() bool {
	return c.Store == StoreMemory || c.Store == StoreSequenced
}

// NeedsMySQL 是否需要建立 MySQL 連線
func (c *Config) NeedsMySQL() bool {
	return c.Ledger.Store == StoreMySQL || (c.Ledger.InMemory() && c.Ledger.PreloadFromMySQL)
}

// SetDefaults 補全未設定的欄位
func (c *Config) SetDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":50051"
	}
	if c.Ledger.Store == "" {
		c.Ledger.Store = StoreMemory
	}
	if c.Ledger.QueueSize == 0 {
		c.Ledger.QueueSize = memory.DefaultQueueSize
	}
	c.Log.SetDefaults()
	c.MySQL.SetDefaults()
	c.Postgres.SetDefaults()
}

// Validate 檢查設定；資料庫區段只在實際會用到時檢查
func (c *Config) Validate() error {
	validate := validator.New()
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	if c.NeedsMySQL() {
		if err := validate.Struct(&c.MySQL); err != nil {
			errs = append(errs, fmt.Errorf("mysql: %w", err))
		}
	}
	if c.Ledger.Store == StorePostgres {
		if err := validate.Struct(&c.Postgres); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load 讀取設定檔
// 路徑取自 LEDGER_CONFIG，未設定時使用 config/config.yaml
// 檔案中的 ${VAR} 會先以環境變數展開
func Load() (*Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile 讀取指定設定檔，補上預設值並檢查
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 內容
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
