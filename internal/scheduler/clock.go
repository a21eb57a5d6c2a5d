package scheduler

import "time"

// Timer 可取消的单次定时器。
type Timer interface {
	Stop() bool
}

// Clock 把「现在是几点 / 多久之后回调」抽象出来，
// 测试里用虚拟时钟推进，不必真等延迟。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool { return rt.t.Stop() }

// RealClock 进程内默认时钟。
func RealClock() Clock { return realClock{} }
