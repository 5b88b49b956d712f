// Package prefs provides the small key/value preference stores that caches
// use to remember their last sync time across process restarts. The file
// store keeps every key in one JSON object written atomically; reads accept
// JWCC (comments and trailing commas) so operators can edit the file by hand.
package prefs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// Store 是缓存元数据使用的最小键值接口。
type Store interface {
	// Int64 返回 key 对应的整数值，不存在或无法解析时返回 def。
	Int64(key string, def int64) int64
	// SetInt64 写入 key 对应的整数值。
	SetInt64(key string, value int64) error
}

// File 将所有键值保存在单个 JSON 对象文件中，每次写入整体替换。
type File struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
}

// OpenFile 读取（或准备创建）path 处的偏好文件。
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("prefs path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve prefs path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}

	values, err := readValues(abs)
	if err != nil {
		return nil, err
	}
	return &File{path: abs, values: values}, nil
}

func readValues(path string) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &values); err != nil {
		return nil, fmt.Errorf("decode prefs %s: %w", path, err)
	}
	return values, nil
}

// Path 返回偏好文件的绝对路径。
func (f *File) Path() string {
	return f.path
}

func (f *File) Int64(key string, def int64) int64 {
	f.mu.Lock()
	raw, ok := f.values[key]
	f.mu.Unlock()
	if !ok {
		return def
	}

	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

func (f *File) SetInt64(key string, value int64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.values[key]
	f.values[key] = raw
	if err := f.persistLocked(); err != nil {
		if existed {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

// Keys 返回按字典序排列的所有键。
func (f *File) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *File) persistLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write prefs %s: %w", f.path, err)
	}
	return nil
}

// Memory 是仅存在于进程内的 Store，适合测试或不需要跨进程保留同步时间的场景。
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

func (m *Memory) Int64(key string, def int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

func (m *Memory) SetInt64(key string, value int64) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}
