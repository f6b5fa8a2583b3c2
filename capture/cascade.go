package capture

import "sort"

// templateKey 作用域内的键类型，与其他标记互不冲突
type templateKey int64

// CascadeScope 一次顶层删除调用的级联状态。
//
// 删除某模板的最后一个变体时，该变体的记录被改写为模板记录并在这里标记模板；
// 宿主随后级联删除模板时，经同一作用域看到标记，不再重复记录。
// 作用域随 product.UnlinkFunc 显式传递，只在单次请求内使用，不做并发保护。
type CascadeScope struct {
	marked map[templateKey]struct{}
}

// NewCascadeScope 创建空作用域
func NewCascadeScope() *CascadeScope {
	return &CascadeScope{marked: make(map[templateKey]struct{})}
}

// MarkTemplate 标记模板的删除已由变体记录表示
func (s *CascadeScope) MarkTemplate(templateID int64) {
	s.marked[templateKey(templateID)] = struct{}{}
}

// Accounted 模板删除是否已被记录
func (s *CascadeScope) Accounted(templateID int64) bool {
	_, ok := s.marked[templateKey(templateID)]
	return ok
}

// Templates 返回已标记的模板 id（升序）
func (s *CascadeScope) Templates() []int64 {
	out := make([]int64, 0, len(s.marked))
	for k := range s.marked {
		out = append(out, int64(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
