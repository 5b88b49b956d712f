package cachefile

import "errors"

var (
	// ErrOutOfRange 表示 GetRange 的边界不满足 0 <= start <= finish < Size()。
	ErrOutOfRange = errors.New("range out of bounds")
	// ErrCorruptSnapshot 表示缓存文件内容无法解码。
	ErrCorruptSnapshot = errors.New("corrupt cache snapshot")
	// ErrClosed 表示缓存已关闭，写入器不再接受任务。
	ErrClosed = errors.New("cache closed")
	// ErrUnknownPolicy 表示策略不在已知集合内。
	ErrUnknownPolicy = errors.New("unknown caching policy")
	// ErrNilSerializer 表示构造缓存时缺少序列化契约。
	ErrNilSerializer = errors.New("serializer required")
	// ErrInvalidMode 表示缓存模式非法。
	ErrInvalidMode = errors.New("invalid cache mode")
)

// Notifier 接收后台持久化过程中产生的错误。
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(err error)

// Notify makes NotifierFunc satisfy Notifier.
func (f NotifierFunc) Notify(err error) {
	if f != nil {
		f(err)
	}
}
