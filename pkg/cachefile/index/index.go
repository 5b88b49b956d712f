// Package index implements the ordered in-memory index used by memory-indexed
// caches. Entries are reachable by identity through a hash map and by position
// through a B-tree ordered by a caller-supplied comparator. The ordered side is
// a stable multiset: values that compare equal are kept in insertion order
// instead of collapsing into one entry.
package index

import (
	"github.com/google/btree"
)

const degree = 16

// Index 以 Identity 为键维护当前值，同时按比较器维护有序视图。
// 调用方不得在值入索引后原地修改其参与排序的字段，否则 B-tree 无法再定位旧条目。
// Index 本身不加锁，并发访问由上层负责。
type Index[K comparable, V any] struct {
	compare func(a, b V) int
	items   map[K]*entry[K, V]
	tree    *btree.BTreeG[*entry[K, V]]
	seq     uint64
}

// entry 的 seq 记录首次插入顺序，用于打破比较器相等的平局。
type entry[K comparable, V any] struct {
	key   K
	value V
	seq   uint64
}

// New 创建索引；compare 为 nil 时按首次插入顺序排列。
func New[K comparable, V any](compare func(a, b V) int) *Index[K, V] {
	idx := &Index[K, V]{
		compare: compare,
		items:   make(map[K]*entry[K, V]),
	}
	idx.tree = btree.NewG(degree, idx.less)
	return idx
}

func (x *Index[K, V]) less(a, b *entry[K, V]) bool {
	if x.compare != nil {
		if c := x.compare(a.value, b.value); c != 0 {
			return c < 0
		}
	}
	return a.seq < b.seq
}

// Put 插入或替换 key 对应的值，返回被替换的旧值。
// 替换时先从 B-tree 删除旧条目再按新值重新插入，保留原插入序号。
func (x *Index[K, V]) Put(key K, value V) (V, bool) {
	if existing, ok := x.items[key]; ok {
		prev := existing.value
		x.tree.Delete(existing)
		existing.value = value
		x.tree.ReplaceOrInsert(existing)
		return prev, true
	}

	x.seq++
	e := &entry[K, V]{key: key, value: value, seq: x.seq}
	x.items[key] = e
	x.tree.ReplaceOrInsert(e)

	var zero V
	return zero, false
}

// Get 返回 key 对应的值。
func (x *Index[K, V]) Get(key K) (V, bool) {
	if e, ok := x.items[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Remove 删除 key 对应的条目，并返回被删除的值。
func (x *Index[K, V]) Remove(key K) (V, bool) {
	e, ok := x.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	x.tree.Delete(e)
	delete(x.items, key)
	return e.value, true
}

// ContainsKey reports whether key has a live entry.
func (x *Index[K, V]) ContainsKey(key K) bool {
	_, ok := x.items[key]
	return ok
}

func (x *Index[K, V]) Len() int {
	return len(x.items)
}

// Clear 清空哈希映射与 B-tree，插入序号继续递增。
func (x *Index[K, V]) Clear() {
	x.items = make(map[K]*entry[K, V])
	x.tree.Clear(false)
}

// Values 按比较器升序返回所有值的副本切片。
func (x *Index[K, V]) Values() []V {
	result := make([]V, 0, x.tree.Len())
	x.tree.Ascend(func(e *entry[K, V]) bool {
		result = append(result, e.value)
		return true
	})
	return result
}

// Keys 按有序视图的顺序返回所有 Identity。
func (x *Index[K, V]) Keys() []K {
	result := make([]K, 0, x.tree.Len())
	x.tree.Ascend(func(e *entry[K, V]) bool {
		result = append(result, e.key)
		return true
	})
	return result
}

// Range 返回有序视图中 [start, finish] 闭区间内的值。
// 边界由调用方校验；越界部分会被忽略。
func (x *Index[K, V]) Range(start, finish int) []V {
	if start < 0 || finish < start {
		return nil
	}
	result := make([]V, 0, finish-start+1)
	pos := 0
	x.tree.Ascend(func(e *entry[K, V]) bool {
		if pos > finish {
			return false
		}
		if pos >= start {
			result = append(result, e.value)
		}
		pos++
		return true
	})
	return result
}
