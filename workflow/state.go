package workflow

import (
	"sort"
	"sync"
)

// State 是单次查询执行的共享键值上下文。
// 生命周期由一个执行器独占, 不跨请求共享; 并行组成员拿到的是组前快照,
// 因此锁只在并行窗口内真正竞争。
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewState 创建状态, initial 可为 nil。
func NewState(initial map[string]any) *State {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &State{data: data}
}

// Get 读取键值。
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// GetString 读取字符串键值, 类型不符时返回 false。
func (s *State) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Set 写入键值。
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Has 报告键是否存在。
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Len 返回键数量。
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys 返回全部键, 排序稳定。
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MissingKeys 返回 required 中不存在于状态的键, 保持给定顺序。
func (s *State) MissingKeys(required []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, k := range required {
		if _, ok := s.data[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// MergeDelta 合并增量并返回实际写入的键, 排序稳定。nil 值也会写入。
func (s *State) MergeDelta(delta map[string]any) []string {
	if len(delta) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(delta))
	for k, v := range delta {
		s.data[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot 返回当前数据的浅拷贝。
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Clone 返回独立副本, 供并行组成员读取组前状态。
func (s *State) Clone() *State {
	return NewState(s.Snapshot())
}
