package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日誌設定
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// SetDefaults 補上未設定的欄位
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// New 依設定建立 zap logger
//
// 參數:
//
//	cfg: Config - level 為 debug|info|warn|error；format 為 json|console
//
// 回傳值:
//
//	*zap.Logger: 建立好的 logger
//	zap.AtomicLevel: 可於執行期間調整的日誌等級
//	error: 設定不合法時回傳錯誤
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	cfg.SetDefaults()

	parsed, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	level := zap.NewAtomicLevelAt(parsed)

	var base zap.Config
	switch cfg.Format {
	case "json":
		base = zap.NewProductionConfig()
		base.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "console":
		base = zap.NewDevelopmentConfig()
		base.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	base.Level = level
	base.DisableStacktrace = true
	base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := base.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to build logger: %w", err)
	}
	return built, level, nil
}

// SetLevel 依新的設定調整執行中 logger 的等級，未設定時為 info
func SetLevel(level zap.AtomicLevel, cfg Config) error {
	cfg.SetDefaults()
	parsed, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

func parseLevel(text string) (zapcore.Level, error) {
	var parsed zapcore.Level
	if err := parsed.Set(strings.TrimSpace(text)); err != nil {
		return parsed, fmt.Errorf("invalid log level %q: %w", text, err)
	}
	return parsed, nil
}
