package record

import (
	"bytes"
	"encoding/json"
	"strings"
)

// NewComparator 根据字段构造排序函数；field 为空时返回 nil，缓存退回插入顺序。
// 比较顺序：数字按数值、字符串按字典序；类型不同时按 null < bool < number < string < 其它 排序。
func NewComparator(field string, descending bool) func(a, b Record) int {
	if field == "" {
		return nil
	}
	return func(a, b Record) int {
		c := compareValues(a[field], b[field])
		if descending {
			return -c
		}
		return c
	}
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	case json.Number, float64:
		return compareNumbers(a, b)
	default:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return bytes.Compare(ja, jb)
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case json.Number, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareNumbers(a, b any) int {
	fa, fb := toFloat(a), toFloat(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	default:
		return 0
	}
}
