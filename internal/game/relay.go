package game

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// StrokeTypeClear 清屏标记
const StrokeTypeClear = "clear"

// Stroke 一段笔画，坐标缺失的笔画会被丢弃
type Stroke struct {
	X0    *float64 `json:"x0,omitempty"`
	Y0    *float64 `json:"y0,omitempty"`
	X1    *float64 `json:"x1,omitempty"`
	Y1    *float64 `json:"y1,omitempty"`
	Color string   `json:"color,omitempty"`
	Size  float64  `json:"size,omitempty"`
	Type  string   `json:"type,omitempty"`
}

// Valid 四个坐标都存在且是有限数
func (s *Stroke) Valid() bool {
	if s == nil {
		return false
	}
	for _, c := range []*float64{s.X0, s.Y0, s.X1, s.Y1} {
		if c == nil || math.IsNaN(*c) || math.IsInf(*c, 0) {
			return false
		}
	}
	return true
}

// StrokeRelay 房间画板：回放日志、撤销栈与画手限速，由房间锁保护
type StrokeRelay struct {
	log     []Stroke
	redo    []Stroke
	limiter *rate.Limiter

	interval time.Duration
	burst    int
}

// NewStrokeRelay 创建画板，interval 为两笔之间的最小间隔
func NewStrokeRelay(interval time.Duration, burst int) *StrokeRelay {
	if burst <= 0 {
		burst = 1
	}
	r := &StrokeRelay{interval: interval, burst: burst}
	r.limiter = r.newLimiter()
	return r
}

func (r *StrokeRelay) newLimiter() *rate.Limiter {
	if r.interval <= 0 {
		return rate.NewLimiter(rate.Inf, r.burst)
	}
	return rate.NewLimiter(rate.Every(r.interval), r.burst)
}

// Draw 追加一笔，限速或坐标非法时返回 false
func (r *StrokeRelay) Draw(s Stroke) bool {
	if !s.Valid() {
		return false
	}
	if !r.limiter.Allow() {
		return false
	}
	s.Type = ""
	r.log = append(r.log, s)
	r.redo = r.redo[:0]
	return true
}

// Clear 清屏，日志里留一个清屏标记以便回放
func (r *StrokeRelay) Clear() {
	r.log = append(r.log[:0], Stroke{Type: StrokeTypeClear})
	r.redo = r.redo[:0]
}

// Undo 撤销最后一笔，最后一项是清屏标记时不处理
func (r *StrokeRelay) Undo() bool {
	n := len(r.log)
	if n == 0 || r.log[n-1].Type == StrokeTypeClear {
		return false
	}
	last := r.log[n-1]
	r.log = r.log[:n-1]
	r.redo = append(r.redo, last)
	return true
}

// Redo 重做一笔：优先使用客户端给出的笔画（与 Draw 共用限速），否则弹出撤销栈
func (r *StrokeRelay) Redo(s *Stroke) (Stroke, bool) {
	var out Stroke
	switch {
	case s.Valid():
		if !r.limiter.Allow() {
			return Stroke{}, false
		}
		out = *s
		out.Type = ""
		if n := len(r.redo); n > 0 {
			r.redo = r.redo[:n-1]
		}
	case len(r.redo) > 0:
		n := len(r.redo)
		out = r.redo[n-1]
		r.redo = r.redo[:n-1]
	default:
		return Stroke{}, false
	}
	r.log = append(r.log, out)
	return out, true
}

// Replay 回放日志副本，从最后一次清屏之后开始
func (r *StrokeRelay) Replay() []Stroke {
	start := 0
	for i := len(r.log) - 1; i >= 0; i-- {
		if r.log[i].Type == StrokeTypeClear {
			start = i + 1
			break
		}
	}
	out := make([]Stroke, len(r.log)-start)
	copy(out, r.log[start:])
	return out
}

// Len 日志条数（含清屏标记）
func (r *StrokeRelay) Len() int {
	return len(r.log)
}

// Reset 新回合清空画板和限速状态
func (r *StrokeRelay) Reset() {
	r.log = nil
	r.redo = nil
	r.limiter = r.newLimiter()
}
