package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/objcache/pkg/cachefile"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有集合共享同一份参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	PrefsPath       string   `mapstructure:"PrefsPath"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// CollectionConfig 描述一个被缓存的集合：缓存文件、模式、Identity 字段与排序方式。
type CollectionConfig struct {
	Name       string   `mapstructure:"Name"`
	File       string   `mapstructure:"File"`
	Mode       string   `mapstructure:"Mode"`
	IDField    string   `mapstructure:"IDField"`
	SortField  string   `mapstructure:"SortField"`
	Descending bool     `mapstructure:"Descending"`
	Policies   []string `mapstructure:"Policies"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global      GlobalConfig       `mapstructure:",squash"`
	Collections []CollectionConfig `mapstructure:"Collection"`
}

// CacheMode 返回集合配置对应的缓存模式。
func (c CollectionConfig) CacheMode() (cachefile.Mode, error) {
	return cachefile.ParseMode(c.Mode)
}

// CachePolicies 将字符串策略解析为 cachefile.Policy 列表。
func (c CollectionConfig) CachePolicies() ([]cachefile.Policy, error) {
	result := make([]cachefile.Policy, 0, len(c.Policies))
	for _, raw := range c.Policies {
		p, err := cachefile.ParsePolicy(raw)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// FilePath 返回集合缓存文件的绝对路径；相对路径基于 StoragePath。
func (c *Config) FilePath(col CollectionConfig) string {
	if filepath.IsAbs(col.File) {
		return col.File
	}
	return filepath.Join(c.Global.StoragePath, col.File)
}

// CollectionNames 返回所有集合的 name:mode 摘要，供日志字段使用。
func CollectionNames(cols []CollectionConfig) []string {
	if len(cols) == 0 {
		return nil
	}
	result := make([]string, len(cols))
	for i, col := range cols {
		result[i] = fmt.Sprintf("%s:%s", col.Name, col.Mode)
	}
	return result
}
