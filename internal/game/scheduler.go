package game

import (
	"sync/atomic"
	"time"
)

// Task 可取消的延迟任务。回调带上任务本身，调用方在房间锁内核对它是否仍是当前任务。
type Task struct {
	timer    *time.Timer
	canceled atomic.Bool
}

// Schedule 在 delay 之后执行 fn
func Schedule(delay time.Duration, fn func(*Task)) *Task {
	t := &Task{}
	t.timer = time.AfterFunc(delay, func() {
		if t.canceled.Load() {
			return
		}
		fn(t)
	})
	return t
}

// Cancel 取消任务，已在执行的回调会通过 Canceled 看到取消标记
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.canceled.Store(true)
	t.timer.Stop()
}

// Canceled 是否已取消
func (t *Task) Canceled() bool {
	return t == nil || t.canceled.Load()
}
