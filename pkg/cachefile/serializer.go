package cachefile

import "encoding/json"

// Serializer 定义对象与持久化 JSON 之间的双向映射，以及稳定 Identity 的提取。
// ObjectID 必须在对象生命周期内稳定，且在同一缓存内唯一；没有基于哈希的默认实现。
type Serializer[T any, K comparable] interface {
	Serialize(obj T) (json.RawMessage, error)
	Deserialize(raw json.RawMessage) (T, error)
	ObjectID(obj T) K
}

// JSONSerializer 直接用 encoding/json 编解码 T，Identity 由 ID 函数显式给出。
type JSONSerializer[T any, K comparable] struct {
	ID func(T) K
}

// NewJSONSerializer 构造 JSONSerializer；id 为 nil 属于编程错误，直接 panic。
func NewJSONSerializer[T any, K comparable](id func(T) K) JSONSerializer[T, K] {
	if id == nil {
		panic("cachefile: identity extractor is required")
	}
	return JSONSerializer[T, K]{ID: id}
}

func (s JSONSerializer[T, K]) Serialize(obj T) (json.RawMessage, error) {
	return json.Marshal(obj)
}

func (s JSONSerializer[T, K]) Deserialize(raw json.RawMessage) (T, error) {
	var obj T
	err := json.Unmarshal(raw, &obj)
	return obj, err
}

func (s JSONSerializer[T, K]) ObjectID(obj T) K {
	return s.ID(obj)
}
