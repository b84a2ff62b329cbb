package game

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RoundTimer 回合倒计时。每个间隔减一并回调 onTick，归零时停止并回调一次 onExpire。
// 回调在计时协程里执行，并带上计时器自身，调用方据此忽略已被替换的旧计时器。
type RoundTimer struct {
	duration int
	interval time.Duration
	onTick   func(t *RoundTimer, remaining int)
	onExpire func(t *RoundTimer)

	remaining atomic.Int32
	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRoundTimer 创建倒计时，duration 单位为秒
func NewRoundTimer(duration int, interval time.Duration, onTick func(*RoundTimer, int), onExpire func(*RoundTimer)) *RoundTimer {
	if interval <= 0 {
		interval = time.Second
	}
	t := &RoundTimer{
		duration: duration,
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}
	t.remaining.Store(int32(duration))
	return t
}

// Start 启动倒计时，重复调用无效
func (t *RoundTimer) Start() {
	t.startOnce.Do(func() {
		go t.run()
	})
}

func (t *RoundTimer) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			left := t.remaining.Add(-1)
			if left < 0 {
				left = 0
				t.remaining.Store(0)
			}
			if t.stopped() {
				return
			}
			if t.onTick != nil {
				t.onTick(t, int(left))
			}
			if left == 0 {
				t.Stop()
				if t.onExpire != nil {
					t.onExpire(t)
				}
				return
			}
		}
	}
}

// Stop 停止倒计时，幂等且不等待计时协程
func (t *RoundTimer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

func (t *RoundTimer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// Remaining 剩余秒数
func (t *RoundTimer) Remaining() int {
	return int(t.remaining.Load())
}

// Duration 总秒数
func (t *RoundTimer) Duration() int {
	return t.duration
}

// HintCheckpoints 提示揭示时刻（以剩余秒数计）
func HintCheckpoints(duration int) []int {
	switch {
	case duration >= 60:
		return []int{duration * 2 / 3, duration / 3}
	case duration >= 30:
		return []int{duration / 2}
	default:
		return nil
	}
}

// 每个检查点揭示的字母数
const hintsPerCheckpoint = 2

// hintReveal 逐步揭示目标词。可揭示位置在回合开始时打乱一次，
// 首尾字母和空格永远不揭示。
type hintReveal struct {
	word        []rune
	order       []int
	revealed    map[int]bool
	checkpoints map[int]bool
}

func newHintReveal(word string, duration int, enabled bool) *hintReveal {
	h := &hintReveal{
		word:        []rune(word),
		revealed:    make(map[int]bool),
		checkpoints: make(map[int]bool),
	}
	for i := 1; i < len(h.word)-1; i++ {
		if h.word[i] != ' ' {
			h.order = append(h.order, i)
		}
	}
	rand.Shuffle(len(h.order), func(i, j int) {
		h.order[i], h.order[j] = h.order[j], h.order[i]
	})
	if enabled {
		for _, c := range HintCheckpoints(duration) {
			h.checkpoints[c] = true
		}
	}
	return h
}

// At 剩余时间到达检查点时揭示一批字母，返回是否有新揭示
func (h *hintReveal) At(remaining int) bool {
	if h == nil || !h.checkpoints[remaining] {
		return false
	}
	delete(h.checkpoints, remaining)

	n := 0
	for _, pos := range h.order {
		if n == hintsPerCheckpoint {
			break
		}
		if !h.revealed[pos] {
			h.revealed[pos] = true
			n++
		}
	}
	return n > 0
}

// Pattern 当前提示，未揭示的字母显示为下划线，空格保留
func (h *hintReveal) Pattern() string {
	if h == nil {
		return ""
	}
	var b strings.Builder
	for i, r := range h.word {
		switch {
		case r == ' ':
			b.WriteRune(' ')
		case h.revealed[i]:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Revealed 已揭示数量
func (h *hintReveal) Revealed() int {
	if h == nil {
		return 0
	}
	return len(h.revealed)
}
