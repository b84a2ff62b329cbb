package game

// artistRing 按稳定身份记录画手轮换顺序。
// 离开的玩家直接从环中移除，不影响其他人的相对顺序；
// 如果离开的是当前画手，下一次轮换落在其后继者身上。
type artistRing struct {
	keys    []string
	current int
	vacated bool
}

func newArtistRing(keys []string, start int) *artistRing {
	r := &artistRing{keys: append([]string(nil), keys...)}
	if len(r.keys) > 0 {
		r.current = ((start % len(r.keys)) + len(r.keys)) % len(r.keys)
	}
	return r
}

// Current 当前画手，画手已离开时返回空串
func (r *artistRing) Current() string {
	if r == nil || r.vacated || len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.current]
}

// Advance 轮换到下一位画手
func (r *artistRing) Advance() string {
	if len(r.keys) == 0 {
		return ""
	}
	if r.vacated {
		// current 已指向离开者原位置上的后继
		r.vacated = false
		r.current %= len(r.keys)
	} else {
		r.current = (r.current + 1) % len(r.keys)
	}
	return r.keys[r.current]
}

// Remove 移除离开的玩家
func (r *artistRing) Remove(key string) {
	if r == nil {
		return
	}
	pos := -1
	for i, k := range r.keys {
		if k == key {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}

	r.keys = append(r.keys[:pos], r.keys[pos+1:]...)
	switch {
	case pos < r.current:
		r.current--
	case pos == r.current && !r.vacated:
		r.vacated = true
	case pos == r.current && r.vacated:
		// 连续离开，current 继续指向新的后继
	}
	if len(r.keys) == 0 {
		r.current = 0
	}
}

// Len 环中玩家数量
func (r *artistRing) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}
