// Package record defines the schemaless JSON object stored by the objcache
// daemon. Each configured collection names the field that carries a record's
// identity and, optionally, the field used for ordering.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingID 表示记录缺少 Identity 字段，或该字段的类型无法作为 Identity。
var ErrMissingID = errors.New("record identity missing")

// ErrNotObject 表示输入不是 JSON 对象。
var ErrNotObject = errors.New("record must be a JSON object")

// Record 是一条任意结构的 JSON 对象；数字以 json.Number 保存，避免精度丢失。
type Record map[string]any

// Serializer 将 Record 映射到缓存文件中的 JSON 对象，并以 idField 的值作为 Identity。
type Serializer struct {
	idField string
}

// NewSerializer 构造 Serializer，idField 为空时回退为 "id"。
func NewSerializer(idField string) Serializer {
	if idField == "" {
		idField = "id"
	}
	return Serializer{idField: idField}
}

// IDField 返回 Identity 字段名。
func (s Serializer) IDField() string {
	return s.idField
}

func (s Serializer) Serialize(rec Record) (json.RawMessage, error) {
	return json.Marshal(rec)
}

func (s Serializer) Deserialize(raw json.RawMessage) (Record, error) {
	return DecodeOne(raw)
}

// ObjectID 将 Identity 字段规范化为字符串；数字保留原始文本，因此 1 与 "1" 视为同一条记录。
func (s Serializer) ObjectID(rec Record) string {
	id, _ := identity(rec[s.idField])
	return id
}

// Validate 确认记录带有可用的 Identity。
func (s Serializer) Validate(rec Record) error {
	if _, ok := identity(rec[s.idField]); !ok {
		return fmt.Errorf("%w: field %q", ErrMissingID, s.idField)
	}
	return nil
}

func identity(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// DecodeOne 解析单个 JSON 对象。
func DecodeOne(raw []byte) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var rec Record
	if err := newDecoder(trimmed).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// DecodeMany 解析 JSON 数组，数组元素必须全部是对象。
func DecodeMany(raw []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("records must be a JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	result := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := DecodeOne(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		result = append(result, rec)
	}
	return result, nil
}

func newDecoder(raw []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec
}
