package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
ShutdownTimeout = "boom"

[[Collection]]
Name = "notes"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsNumericSeconds(t *testing.T) {
	cfg := `
StoragePath = "./data"
ShutdownTimeout = 3

[[Collection]]
Name = "notes"
Mode = "DISK"
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.ShutdownTimeout.DurationValue().Seconds() != 3 {
		t.Fatalf("纯数字应按秒解析: %v", loaded.Global.ShutdownTimeout.DurationValue())
	}
	if loaded.Collections[0].Mode != "disk" {
		t.Fatalf("Mode 应被标准化为小写: %s", loaded.Collections[0].Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(testConfigPath(t, "does-not-exist.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}
