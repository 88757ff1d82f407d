package index

import (
	"container/heap"
)

// Timer is a scheduled (time, id) entry. Timers fire in ascending time,
// equal times in ascending id.
type Timer struct {
	Time uint64
	ID   uint64
}

func (t Timer) less(other Timer) bool {
	if t.Time != other.Time {
		return t.Time < other.Time
	}
	return t.ID < other.ID
}

// timerQueue is a priority queue sorted by (Time, ID), an id is queued at most once.
// If timers are inserted in this order
// +-----+     +-----+     +-----+     +-----+     +-------------+
// | 5/a | --> | 3/b | --> | 3/c | --> | 7/d | --> | 4/b (moved) |
// +-----+     +-----+     +-----+     +-----+     +-------------+
// items:
// +-----+     +-----+     +-----+     +-----+
// | 3/c | --> | 4/b | --> | 5/a | --> | 7/d |
// +-----+     +-----+     +-----+     +-----+
type timerQueue struct {
	items     []Timer
	positions map[uint64]int
}

func newTimerQueue() *timerQueue {
	return &timerQueue{positions: map[uint64]int{}}
}

//---------------------------------------------------------------------------------
//Warning: Do not call directly, expose the function only for the heap package to use
//---------------------------------------------------------------------------------

func (t *timerQueue) Less(i, j int) bool {
	return t.items[i].less(t.items[j])
}

func (t *timerQueue) Swap(i, j int) {
	t.items[i], t.items[j] = t.items[j], t.items[i]
	t.positions[t.items[i].ID] = i
	t.positions[t.items[j].ID] = j
}

func (t *timerQueue) Push(x any) {
	item := x.(Timer)
	t.positions[item.ID] = len(t.items)
	t.items = append(t.items, item)
}

func (t *timerQueue) Pop() any {
	old := t.items
	n := len(old)
	x := old[n-1]
	t.items = old[0 : n-1]
	delete(t.positions, x.ID)
	return x
}

//---------------------------------------------------------------------------------

func (t *timerQueue) Len() int {
	return len(t.items)
}

// PushTimer queues item, replacing a queued timer with the same id.
func (t *timerQueue) PushTimer(item Timer) {
	if index, ok := t.positions[item.ID]; ok {
		t.items[index] = item
		heap.Fix(t, index)
		return
	}
	heap.Push(t, item)
}

func (t *timerQueue) PopTimer() (Timer, bool) {
	if len(t.items) == 0 {
		return Timer{}, false
	}
	return heap.Pop(t).(Timer), true
}

func (t *timerQueue) PeekTimer() (Timer, bool) {
	if len(t.items) == 0 {
		return Timer{}, false
	}
	return t.items[0], true
}

func (t *timerQueue) Get(id uint64) (Timer, bool) {
	if index, ok := t.positions[id]; ok {
		return t.items[index], true
	}
	return Timer{}, false
}

func (t *timerQueue) Remove(id uint64) bool {
	index, ok := t.positions[id]
	if !ok {
		return false
	}
	heap.Remove(t, index)
	return true
}

// Timers returns the queued timers in firing order.
func (t *timerQueue) Timers() []Timer {
	timers := make([]Timer, len(t.items))
	copy(timers, t.items)
	sortTimers(timers)
	return timers
}

func (t *timerQueue) Reset() {
	t.items = nil
	t.positions = map[uint64]int{}
}
