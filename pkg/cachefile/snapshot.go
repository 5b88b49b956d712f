package cachefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// snapshotFile 管理单个缓存文件：内容为一个 JSON 数组，每个元素是一个对象的序列化结果。
// 写入通过临时文件 + rename 完成，读者不会看到半写入的文件。
type snapshotFile struct {
	path string
}

// openSnapshotFile 解析绝对路径，并在文件不存在时创建空文件。
func openSnapshotFile(path string) (*snapshotFile, error) {
	if path == "" {
		return nil, errors.New("cache file path required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, fmt.Errorf("cache path %s is a directory", abs)
		}
	case errors.Is(err, fs.ErrNotExist):
		f, createErr := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY, 0o644)
		if createErr != nil {
			return nil, fmt.Errorf("create cache file: %w", createErr)
		}
		if closeErr := f.Close(); closeErr != nil {
			return nil, closeErr
		}
	default:
		return nil, err
	}

	return &snapshotFile{path: abs}, nil
}

// name 返回文件名，用于派生同步元数据的键。
func (f *snapshotFile) name() string {
	return filepath.Base(f.path)
}

// read 返回文件中的原始元素。空文件或仅含一个字符的文件视为没有缓存条目。
func (f *snapshotFile) read() ([]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) <= 1 {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, f.name(), err)
	}
	return raws, nil
}

// write 以原子方式整体覆盖文件；文件或目录被外部删除时会重新创建。
func (f *snapshotFile) write(raws []json.RawMessage) error {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	data, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write cache file %s: %w", f.name(), err)
	}
	return nil
}
