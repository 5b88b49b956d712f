package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/objcache/internal/config"
	"github.com/any-hub/objcache/internal/logging"
	"github.com/any-hub/objcache/internal/record"
	"github.com/any-hub/objcache/pkg/cachefile"
	"github.com/any-hub/objcache/pkg/prefs"
)

// RecordCache 是 daemon 使用的具体缓存类型。
type RecordCache = cachefile.Cache[record.Record, string]

// Collection 将集合配置与已打开的缓存实例聚合在一起，供路由层直接复用。
type Collection struct {
	// Config 是 config.toml 中声明的集合字段副本。
	Config config.CollectionConfig
	// FilePath 是解析后的缓存文件绝对路径。
	FilePath string
	Mode     cachefile.Mode
	Cache    *RecordCache
	// Serializer 同时负责 Identity 校验，路由层在写入前调用。
	Serializer record.Serializer

	writeFailures atomic.Int64
}

// WriteFailures 返回自启动以来后台落盘失败的次数。
func (c *Collection) WriteFailures() int64 {
	return c.writeFailures.Load()
}

// CollectionRegistry 提供集合名到 Collection 的查询能力，所有集合共享同一个 prefs.Store。
type CollectionRegistry struct {
	collections map[string]*Collection
	ordered     []*Collection
	logger      logrus.FieldLogger
}

// NewCollectionRegistry 根据配置打开所有集合的缓存文件。任一集合打开失败时，
// 已打开的集合会被关闭并返回错误。
func NewCollectionRegistry(cfg *config.Config, logger logrus.FieldLogger, store prefs.Store) (*CollectionRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if store == nil {
		store = prefs.NewMemory()
	}

	registry := &CollectionRegistry{
		collections: make(map[string]*Collection, len(cfg.Collections)),
		logger:      logger,
	}

	for _, colCfg := range cfg.Collections {
		if _, exists := registry.collections[colCfg.Name]; exists {
			registry.closeQuietly()
			return nil, fmt.Errorf("duplicate collection %s", colCfg.Name)
		}
		col, err := openCollection(cfg, colCfg, logger, store)
		if err != nil {
			registry.closeQuietly()
			return nil, fmt.Errorf("collection %s: %w", colCfg.Name, err)
		}
		registry.collections[colCfg.Name] = col
		registry.ordered = append(registry.ordered, col)
	}

	return registry, nil
}

func openCollection(cfg *config.Config, colCfg config.CollectionConfig, logger logrus.FieldLogger, store prefs.Store) (*Collection, error) {
	mode, err := colCfg.CacheMode()
	if err != nil {
		return nil, err
	}
	policies, err := colCfg.CachePolicies()
	if err != nil {
		return nil, err
	}

	col := &Collection{
		Config:     colCfg,
		FilePath:   cfg.FilePath(colCfg),
		Mode:       mode,
		Serializer: record.NewSerializer(colCfg.IDField),
	}
	colLogger := logger.WithFields(logrus.Fields{"collection": colCfg.Name})

	cache, err := cachefile.Open[record.Record, string](col.FilePath, col.Serializer, cachefile.Options[record.Record]{
		Mode:     mode,
		Compare:  record.NewComparator(colCfg.SortField, colCfg.Descending),
		Policies: policies,
		Metadata: store,
		Logger:   colLogger,
		Notifier: cachefile.NotifierFunc(func(err error) {
			col.writeFailures.Add(1)
		}),
	})
	if err != nil {
		return nil, err
	}
	col.Cache = cache

	colLogger.WithFields(logging.CollectionFields("collection_open", colCfg.Name, col.FilePath, mode.String())).
		Debug("collection registered")
	return col, nil
}

// Lookup 根据集合名查找 Collection。
func (r *CollectionRegistry) Lookup(name string) (*Collection, bool) {
	if r == nil {
		return nil, false
	}
	col, ok := r.collections[name]
	return col, ok
}

// List 返回按配置顺序排列的集合列表，用于 /-/collections 输出。
func (r *CollectionRegistry) List() []*Collection {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*Collection(nil), r.ordered...)
}

// Close 等待所有集合完成落盘并停止写入器，返回合并后的错误。
func (r *CollectionRegistry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, col := range r.ordered {
		if err := col.Cache.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collection %s: %w", col.Config.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *CollectionRegistry) closeQuietly() {
	if err := r.Close(context.Background()); err != nil {
		r.logger.WithError(err).Warn("close partially opened collections")
	}
}
