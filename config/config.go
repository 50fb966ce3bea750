package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/moyu-x/file-transfer/internal"
	"github.com/moyu-x/file-transfer/pkg/conflict"
	"github.com/moyu-x/file-transfer/pkg/copier"
	"github.com/moyu-x/file-transfer/pkg/operations"
	"github.com/moyu-x/file-transfer/pkg/verifier"
)

type Config struct {
	Engine struct {
		MaxConcurrentOperations int `mapstructure:"max_concurrent_operations"`
		BatchConcurrency        int `mapstructure:"batch_concurrency"`
	} `mapstructure:"engine"`
	Copy struct {
		AdaptiveBuffer         bool          `mapstructure:"adaptive_buffer"`
		SameVolumeMultiplier   int           `mapstructure:"same_volume_multiplier"`
		MaxBufferSize          int           `mapstructure:"max_buffer_size"`
		RetryAttempts          int           `mapstructure:"retry_attempts"`
		RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay"`
		SampledVerifyThreshold int64         `mapstructure:"sampled_verify_threshold"`
	} `mapstructure:"copy"`
	Verify struct {
		Algorithm   string `mapstructure:"algorithm"`
		SampleCount int    `mapstructure:"sample_count"`
		SampleSize  int    `mapstructure:"sample_size"`
	} `mapstructure:"verify"`
	Conflict struct {
		DefaultAction     string `mapstructure:"default_action"`
		RenamePattern     string `mapstructure:"rename_pattern"`
		MaxRenameAttempts int    `mapstructure:"max_rename_attempts"`
	} `mapstructure:"conflict"`
	History struct {
		Enabled bool   `mapstructure:"enabled"`
		Backend string `mapstructure:"backend"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"history"`
	Logging struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

var cfg Config

// SetDefaults 注册所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_concurrent_operations", internal.DefaultMaxConcurrentOperations)
	v.SetDefault("engine.batch_concurrency", internal.DefaultBatchConcurrency)

	v.SetDefault("copy.adaptive_buffer", true)
	v.SetDefault("copy.same_volume_multiplier", internal.DefaultSameVolumeMultiplier)
	v.SetDefault("copy.max_buffer_size", internal.MaxBufferSize)
	v.SetDefault("copy.retry_attempts", internal.DefaultRetryAttempts)
	v.SetDefault("copy.retry_base_delay", internal.DefaultRetryBaseDelay)
	v.SetDefault("copy.sampled_verify_threshold", internal.DefaultSampledVerifyThreshold)

	v.SetDefault("verify.algorithm", string(internal.DefaultHashAlgorithm))
	v.SetDefault("verify.sample_count", internal.DefaultSampleCount)
	v.SetDefault("verify.sample_size", internal.DefaultSampleSize)

	v.SetDefault("conflict.default_action", string(internal.ConflictAsk))
	v.SetDefault("conflict.rename_pattern", internal.DefaultRenamePattern)
	v.SetDefault("conflict.max_rename_attempts", internal.DefaultMaxRenameAttempts)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.backend", "json")
	v.SetDefault("history.path", internal.DefaultHistoryPath)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetDefault("server.addr", "127.0.0.1:8089")
}

// Load 读取配置文件与环境变量，cfgFile 为空时按默认路径查找，找不到文件不算错误
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.GetViper(), cfgFile)
}

func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("$HOME/.file-transfer")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/file-transfer")
	}

	v.SetEnvPrefix("FILE_TRANSFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	return &cfg, nil
}

func Get() *Config {
	return &cfg
}

// Validate 检查枚举类配置项
func (c *Config) Validate() error {
	if _, err := internal.ParseHashAlgorithm(c.Verify.Algorithm); err != nil {
		return fmt.Errorf("verify.algorithm: %w", err)
	}
	if _, err := internal.ParseConflictAction(c.Conflict.DefaultAction); err != nil {
		return fmt.Errorf("conflict.default_action: %w", err)
	}
	if c.Engine.MaxConcurrentOperations < 1 {
		return fmt.Errorf("%w: engine.max_concurrent_operations must be at least 1", internal.ErrInvalidInput)
	}
	return nil
}

// EngineOptions 转换为 operations 包使用的参数
func (c *Config) EngineOptions() operations.Options {
	return operations.Options{
		MaxConcurrentOperations: c.Engine.MaxConcurrentOperations,
		BatchConcurrency:        c.Engine.BatchConcurrency,
		HistoryEnabled:          c.History.Enabled,
		SampledVerifyThreshold:  c.Copy.SampledVerifyThreshold,
		CopierOptions: []copier.Option{
			copier.WithAdaptiveBuffer(c.Copy.AdaptiveBuffer),
			copier.WithSameVolumeMultiplier(c.Copy.SameVolumeMultiplier),
			copier.WithMaxBufferSize(c.Copy.MaxBufferSize),
			copier.WithRetry(c.Copy.RetryAttempts, c.Copy.RetryBaseDelay),
			copier.WithSampledVerifyThreshold(c.Copy.SampledVerifyThreshold),
		},
		ResolverOptions: []conflict.Option{
			conflict.WithPattern(c.Conflict.RenamePattern),
			conflict.WithMaxAttempts(c.Conflict.MaxRenameAttempts),
		},
	}
}

// VerifierOptions 抽样校验参数
func (c *Config) VerifierOptions() []verifier.Option {
	return []verifier.Option{verifier.WithSampling(c.Verify.SampleCount, c.Verify.SampleSize)}
}

// OperationOptions 命令行未显式指定时使用的单次操作参数
func (c *Config) OperationOptions() internal.OperationOptions {
	opts := internal.DefaultOptions()
	if action, err := internal.ParseConflictAction(c.Conflict.DefaultAction); err == nil {
		opts.ConflictAction = action
	}
	if algo, err := internal.ParseHashAlgorithm(c.Verify.Algorithm); err == nil {
		opts.Algorithm = algo
	}
	return opts
}
