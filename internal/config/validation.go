package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/any-hub/objcache/pkg/cachefile"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	switch strings.ToLower(strings.TrimSpace(g.LogFormat)) {
	case "", "json", "text":
	default:
		return newFieldError("Global.LogFormat", "仅支持 json|text")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ShutdownTimeout", "必须大于 0")
	}

	if len(c.Collections) == 0 {
		return errors.New("至少需要配置一个 Collection")
	}

	seenNames := map[string]struct{}{}
	seenFiles := map[string]struct{}{}
	for i := range c.Collections {
		col := &c.Collections[i]
		if col.Name == "" {
			return newFieldError("Collection[].Name", "不能为空")
		}
		if err := validateName(col.Name); err != nil {
			return fmt.Errorf("%s: %w", collectionField(col.Name, "Name"), err)
		}
		if _, exists := seenNames[col.Name]; exists {
			return newFieldError(collectionField(col.Name, "Name"), "重复")
		}
		seenNames[col.Name] = struct{}{}

		if strings.TrimSpace(col.File) == "" {
			return newFieldError(collectionField(col.Name, "File"), "不能为空")
		}
		fileKey := filepath.Clean(c.FilePath(*col))
		if _, exists := seenFiles[fileKey]; exists {
			return newFieldError(collectionField(col.Name, "File"), "与其它集合共用缓存文件")
		}
		seenFiles[fileKey] = struct{}{}

		if _, err := col.CacheMode(); err != nil {
			return newFieldError(collectionField(col.Name, "Mode"), "仅支持 memory|disk")
		}
		if strings.TrimSpace(col.IDField) == "" {
			return newFieldError(collectionField(col.Name, "IDField"), "不能为空")
		}
		if _, err := col.CachePolicies(); err != nil {
			return fmt.Errorf("%s: %w", collectionField(col.Name, "Policies"), err)
		}
		if col.Descending && col.SortField == "" {
			return newFieldError(collectionField(col.Name, "Descending"), "需要同时设置 SortField")
		}
	}

	return nil
}

// validateName 限制集合名只包含 URL 路径安全字符，集合名会直接出现在路由中。
func validateName(name string) error {
	if strings.HasPrefix(name, "-") {
		return errors.New("不能以 - 开头（保留给诊断接口）")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("包含非法字符 %q", r)
		}
	}
	return nil
}

// ModeOf 返回已通过校验的集合模式。
func ModeOf(col CollectionConfig) cachefile.Mode {
	mode, _ := col.CacheMode()
	return mode
}
