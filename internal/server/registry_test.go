package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/any-hub/objcache/internal/config"
	"github.com/any-hub/objcache/internal/logging"
	"github.com/any-hub/objcache/internal/record"
	"github.com/any-hub/objcache/pkg/cachefile"
	"github.com/any-hub/objcache/pkg/prefs"
)

func TestRegistryOpensCollectionsInOrder(t *testing.T) {
	registry := newTestRegistry(t)

	list := registry.List()
	if len(list) != 2 || list[0].Config.Name != "contacts" || list[1].Config.Name != "orders" {
		t.Fatalf("unexpected collections: %+v", list)
	}
	orders, ok := registry.Lookup("orders")
	if !ok {
		t.Fatalf("orders should be registered")
	}
	if orders.Mode != cachefile.ModeDiskOnly {
		t.Fatalf("orders should be disk-only, got %s", orders.Mode)
	}
	if filepath.Base(orders.FilePath) != "orders.json" {
		t.Fatalf("unexpected file path %s", orders.FilePath)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatalf("unknown collection should not resolve")
	}
}

func TestRegistryUsesConfiguredIdentityAndOrder(t *testing.T) {
	registry := newTestRegistry(t)
	contacts, _ := registry.Lookup("contacts")

	for _, rec := range []record.Record{
		{"id": "2", "name": "bob"},
		{"id": "1", "name": "alice"},
	} {
		if err := contacts.Cache.Add(rec, nil); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	all, err := contacts.Cache.GetAll()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 || all[0]["name"] != "alice" {
		t.Fatalf("expected records sorted by name, got %v", all)
	}
}

func TestRegistryCountsWriteFailures(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Global:      config.GlobalConfig{StoragePath: dir},
		Collections: []config.CollectionConfig{{Name: "c", File: "c.json", Mode: "memory", IDField: "id"}},
	}
	registry, err := NewCollectionRegistry(cfg, logging.Discard(), prefs.NewMemory())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	col, _ := registry.Lookup("c")

	// 将缓存文件替换为目录，后续落盘必然失败。
	if err := os.Remove(col.FilePath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(col.FilePath, "blocker"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := col.Cache.Add(record.Record{"id": "x"}, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := col.Cache.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush to report the write failure")
	}
	if col.WriteFailures() != 1 {
		t.Fatalf("expected 1 write failure, got %d", col.WriteFailures())
	}
	_ = registry.Close(context.Background())
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{StoragePath: t.TempDir()},
		Collections: []config.CollectionConfig{
			{Name: "a", File: "a.json", Mode: "memory", IDField: "id"},
			{Name: "a", File: "b.json", Mode: "memory", IDField: "id"},
		},
	}
	if _, err := NewCollectionRegistry(cfg, logging.Discard(), nil); err == nil {
		t.Fatalf("expected duplicate collection error")
	}
}
