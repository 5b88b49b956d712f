package cachefile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/objcache/pkg/cachefile/index"
	"github.com/any-hub/objcache/pkg/prefs"
)

// Mode 决定缓存实例的读写路径，实例生命周期内不可更改。
type Mode int

const (
	// ModeMemoryIndexed 以内存索引为读权威，文件只用于持久化。
	ModeMemoryIndexed Mode = iota
	// ModeDiskOnly 每次调用都完整读取并解码缓存文件，不在调用之间保留索引。
	ModeDiskOnly
)

func (m Mode) String() string {
	switch m {
	case ModeMemoryIndexed:
		return "memory"
	case ModeDiskOnly:
		return "disk"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode 解析配置中的模式名：memory / memory-indexed / disk / disk-only。
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "memory", "memory-indexed":
		return ModeMemoryIndexed, nil
	case "disk", "disk-only":
		return ModeDiskOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// LastSyncSuffix 拼接在缓存文件名之后，作为最近同步时间在 prefs.Store 中的键。
const LastSyncSuffix = "_cache_last_sync"

// Options 控制缓存实例的行为，零值表示内存索引模式、无排序、无策略。
type Options[T any] struct {
	Mode Mode
	// Compare 定义读取时的全序；为 nil 时内存模式按插入顺序、磁盘模式按文件顺序返回。
	Compare func(a, b T) int
	// Policies 为初始失效策略，之后可通过 SetPolicy 替换。
	Policies []Policy
	// Metadata 保存最近同步时间，默认使用进程内存储。
	Metadata prefs.Store
	// Notifier 在单次调用未提供 Notifier 时接收后台写入错误。
	Notifier Notifier
	Logger   logrus.FieldLogger
	// Now 用于策略判断和同步时间戳，默认 time.Now。
	Now func() time.Time
}

// Cache 是文件支撑的对象缓存，所有方法都可以并发调用。
// 变更方法返回后，同一实例上的后续读取必定能观察到该变更，即使落盘仍在进行。
// 例外：磁盘模式的读取直接来自文件，若最近一次写入失败，读取会回退到文件中的旧内容，
// 失败的变更对读取不可见；失败通过 Notifier、Flush 与 LastError 报告。
type Cache[T any, K comparable] struct {
	file       *snapshotFile
	serializer Serializer[T, K]
	mode       Mode
	compare    func(a, b T) int
	logger     logrus.FieldLogger
	now        func() time.Time
	meta       prefs.Store
	metaKey    string
	writer     *snapshotWriter[T]
	loads      singleflight.Group

	mu        sync.RWMutex
	index     *index.Index[K, T]
	policies  []Policy
	lastSync  int64
	hasSynced bool
}

// Open 打开（必要时创建）path 处的缓存文件。内存模式下会立即加载并解码全部条目，
// 文件无法访问或内容损坏时返回错误。
func Open[T any, K comparable](path string, serializer Serializer[T, K], opts Options[T]) (*Cache[T, K], error) {
	if serializer == nil {
		return nil, ErrNilSerializer
	}
	if opts.Mode != ModeMemoryIndexed && opts.Mode != ModeDiskOnly {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(opts.Mode))
	}
	policies, err := normalizePolicies(opts.Policies)
	if err != nil {
		return nil, err
	}

	file, err := openSnapshotFile(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}

	c := &Cache[T, K]{
		file:       file,
		serializer: serializer,
		mode:       opts.Mode,
		compare:    opts.Compare,
		logger:     opts.Logger,
		now:        opts.Now,
		meta:       opts.Metadata,
		policies:   policies,
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.meta == nil {
		c.meta = prefs.NewMemory()
	}
	c.metaKey = file.name() + LastSyncSuffix
	c.lastSync = c.meta.Int64(c.metaKey, 0)

	if c.mode == ModeMemoryIndexed {
		items, err := c.readDisk()
		if err != nil {
			return nil, err
		}
		c.index = index.New[K](c.compare)
		for _, item := range items {
			c.index.Put(serializer.ObjectID(item), item)
		}
	}

	c.writer = newSnapshotWriter(file, serializer.Serialize, c.logger, opts.Notifier)

	c.logger.WithFields(c.fields("open")).Info("cache opened")
	return c, nil
}

// Path 返回缓存文件的绝对路径。
func (c *Cache[T, K]) Path() string {
	return c.file.path
}

func (c *Cache[T, K]) Mode() Mode {
	return c.mode
}

// SyncAll 用 items 整体替换缓存内容。items 中重复的 Identity 以最后一次出现为准，
// 位置保持首次出现处。无论写入结果如何，都会同步更新最近同步时间并标记本进程已同步；
// 写入失败只通过 sink（或 Options.Notifier）报告。返回的错误仅来自同步路径：
// 缓存已关闭或同步时间无法保存。
func (c *Cache[T, K]) SyncAll(items []T, sink Notifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer.isClosed() {
		return ErrClosed
	}

	unique := c.dedupe(items)
	if c.index != nil {
		c.index.Clear()
		for _, item := range unique {
			c.index.Put(c.serializer.ObjectID(item), item)
		}
	}

	err := c.syncLocked(unique, sink)

	fields := c.fields("sync_all")
	fields["entries"] = len(unique)
	c.logger.WithFields(fields).Info("cache synced")
	return err
}

// Update 替换 Identity 与 obj 相同的已有条目，返回是否找到。
// 条目不存在时不做任何修改，只记录一条警告。磁盘模式下等同于用修改后的集合调用 SyncAll，
// 会刷新同步时间。
func (c *Cache[T, K]) Update(obj T, sink Notifier) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer.isClosed() {
		return false, ErrClosed
	}

	id := c.serializer.ObjectID(obj)
	if c.index != nil {
		if !c.index.ContainsKey(id) {
			c.warnMissing("update", id)
			return false, nil
		}
		c.index.Put(id, obj)
		return true, c.persistIndex(sink)
	}

	items, err := c.loadDisk()
	if err != nil {
		return false, err
	}
	pos := c.position(items, id)
	if pos < 0 {
		c.warnMissing("update", id)
		return false, nil
	}
	items[pos] = obj
	return true, c.syncLocked(items, sink)
}

// Add 插入 obj；Identity 已存在时原位替换，保证每个 Identity 只有一个条目。
// 磁盘模式下会刷新同步时间。
func (c *Cache[T, K]) Add(obj T, sink Notifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer.isClosed() {
		return ErrClosed
	}

	id := c.serializer.ObjectID(obj)
	if c.index != nil {
		c.index.Put(id, obj)
		return c.persistIndex(sink)
	}

	items, err := c.loadDisk()
	if err != nil {
		return err
	}
	if pos := c.position(items, id); pos >= 0 {
		items[pos] = obj
	} else {
		items = append(items, obj)
	}
	return c.syncLocked(items, sink)
}

// Remove 删除 Identity 与 obj 相同的条目，返回是否找到。磁盘模式下找到时会刷新同步时间。
func (c *Cache[T, K]) Remove(obj T, sink Notifier) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writer.isClosed() {
		return false, ErrClosed
	}

	id := c.serializer.ObjectID(obj)
	if c.index != nil {
		if _, ok := c.index.Remove(id); !ok {
			c.warnMissing("remove", id)
			return false, nil
		}
		return true, c.persistIndex(sink)
	}

	items, err := c.loadDisk()
	if err != nil {
		return false, err
	}
	pos := c.position(items, id)
	if pos < 0 {
		c.warnMissing("remove", id)
		return false, nil
	}
	items = slices.Delete(items, pos, pos+1)
	return true, c.syncLocked(items, sink)
}

// Get 按 Identity 查找对象。
func (c *Cache[T, K]) Get(id K) (T, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.index != nil {
		v, ok := c.index.Get(id)
		return v, ok, nil
	}

	var zero T
	items, err := c.loadDisk()
	if err != nil {
		return zero, false, err
	}
	if pos := c.position(items, id); pos >= 0 {
		return items[pos], true, nil
	}
	return zero, false, nil
}

// GetAll 按比较器顺序返回全部对象。
func (c *Cache[T, K]) GetAll() ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

// GetRange 返回有序视图中 [start, finish] 闭区间的对象，
// 要求 0 <= start <= finish < Size()，否则返回 ErrOutOfRange。
func (c *Cache[T, K]) GetRange(start, finish int) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.index != nil {
		if err := checkRange(start, finish, c.index.Len()); err != nil {
			return nil, err
		}
		return c.index.Range(start, finish), nil
	}

	all, err := c.sortedLocked()
	if err != nil {
		return nil, err
	}
	if err := checkRange(start, finish, len(all)); err != nil {
		return nil, err
	}
	return slices.Clone(all[start : finish+1]), nil
}

func (c *Cache[T, K]) Size() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.index != nil {
		return c.index.Len(), nil
	}
	items, err := c.loadDisk()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// IsCached reports whether an object with obj's identity is cached.
func (c *Cache[T, K]) IsCached(obj T) (bool, error) {
	_, ok, err := c.Get(c.serializer.ObjectID(obj))
	return ok, err
}

// SetPolicy 替换失效策略集合；包含未知策略时返回 ErrUnknownPolicy 且保持原集合。
func (c *Cache[T, K]) SetPolicy(policies ...Policy) error {
	normalized, err := normalizePolicies(policies)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.policies = normalized
	c.mu.Unlock()
	return nil
}

// Policies 返回当前策略集合的副本。
func (c *Cache[T, K]) Policies() []Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.policies)
}

// IsCacheValid 当且仅当所有策略都成立时返回 true。
func (c *Cache[T, K]) IsCacheValid() bool {
	c.mu.RLock()
	meta := SyncMetadata{LastSyncMillis: c.lastSync, HasSynced: c.hasSynced}
	policies := c.policies
	c.mu.RUnlock()
	return IsValid(policies, meta, c.now())
}

// LastSync 返回最近一次 SyncAll 的时间（从未同步时为零值），以及本进程是否已同步。
func (c *Cache[T, K]) LastSync() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var at time.Time
	if c.lastSync > 0 {
		at = time.UnixMilli(c.lastSync)
	}
	return at, c.hasSynced
}

// Flush 等待此前提交的所有写入落盘，并返回最近一次写入的错误。
func (c *Cache[T, K]) Flush(ctx context.Context) error {
	return c.writer.flush(ctx)
}

// LastError 返回最近一次后台写入的错误；最近一次写入成功时为 nil。
func (c *Cache[T, K]) LastError() error {
	return c.writer.lastError()
}

// Close 停止写入器并等待剩余写入完成。关闭后的变更返回 ErrClosed 且不修改任何状态，读取仍可用。
func (c *Cache[T, K]) Close(ctx context.Context) error {
	// 在写锁内关闭，变更方法的关闭检查与提交之间不会插入 Close。
	c.mu.Lock()
	c.writer.shutdown()
	c.mu.Unlock()

	err := c.writer.close(ctx)
	c.logger.WithFields(c.fields("close")).Info("cache closed")
	return err
}

// syncLocked 提交整体写入，并同步记录本次同步时间；调用方需持有写锁。
// 同步时间在写入结果返回前就已更新，表示“已尝试同步”。
func (c *Cache[T, K]) syncLocked(items []T, sink Notifier) error {
	writeErr := c.writer.submit(items, sink)

	nowMillis := c.now().UnixMilli()
	c.lastSync = nowMillis
	c.hasSynced = true
	metaErr := c.meta.SetInt64(c.metaKey, nowMillis)
	if metaErr != nil {
		metaErr = fmt.Errorf("save last sync time: %w", metaErr)
	}
	return errors.Join(writeErr, metaErr)
}

func (c *Cache[T, K]) persistIndex(sink Notifier) error {
	return c.writer.submit(c.index.Values(), sink)
}

func (c *Cache[T, K]) sortedLocked() ([]T, error) {
	if c.index != nil {
		return c.index.Values(), nil
	}
	items, err := c.loadDisk()
	if err != nil {
		return nil, err
	}
	if c.compare != nil {
		slices.SortStableFunc(items, c.compare)
	}
	return items, nil
}

// loadDisk 等待挂起的写入完成后读取文件，保证磁盘模式下读到最近一次提交的结果。
// 并发读取同一文件时共享一次解码，返回给调用方的是独立副本。
func (c *Cache[T, K]) loadDisk() ([]T, error) {
	if err := c.writer.flush(context.Background()); err != nil {
		c.logger.WithFields(c.fields("load")).WithError(err).Warn("reading cache file after failed write")
	}

	v, err, _ := c.loads.Do(c.file.path, func() (interface{}, error) {
		return c.readDisk()
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]T)), nil
}

func (c *Cache[T, K]) readDisk() ([]T, error) {
	raws, err := c.file.read()
	if err != nil {
		return nil, err
	}

	fields := c.fields("read")
	if len(raws) == 0 {
		c.logger.WithFields(fields).Debug("cache file empty")
		return []T{}, nil
	}

	items := make([]T, 0, len(raws))
	for i, raw := range raws {
		item, err := c.serializer.Deserialize(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s entry %d: %w", ErrCorruptSnapshot, c.file.name(), i, err)
		}
		items = append(items, item)
	}

	fields["entries"] = len(items)
	c.logger.WithFields(fields).Debug("cache file read")
	return items, nil
}

func (c *Cache[T, K]) position(items []T, id K) int {
	return slices.IndexFunc(items, func(item T) bool {
		return c.serializer.ObjectID(item) == id
	})
}

func (c *Cache[T, K]) dedupe(items []T) []T {
	positions := make(map[K]int, len(items))
	result := make([]T, 0, len(items))
	for _, item := range items {
		id := c.serializer.ObjectID(item)
		if pos, ok := positions[id]; ok {
			result[pos] = item
			continue
		}
		positions[id] = len(result)
		result = append(result, item)
	}
	return result
}

func (c *Cache[T, K]) warnMissing(action string, id K) {
	fields := c.fields(action)
	fields["id"] = id
	c.logger.WithFields(fields).Warn("object not found in cache")
}

func (c *Cache[T, K]) fields(action string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"cache_file": c.file.name(),
		"mode":       c.mode.String(),
	}
}

func checkRange(start, finish, size int) error {
	if start < 0 || finish < start || finish >= size {
		return fmt.Errorf("%w: [%d, %d] with size %d", ErrOutOfRange, start, finish, size)
	}
	return nil
}
