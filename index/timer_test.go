package index

import (
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"math"
	"testing"
)

const (
	timerA uint64 = iota + 1
	timerB
	timerC
	timerD
)

func scheduleExample(t *testing.T, timers *TimerIndex) {
	require.Nil(t, timers.Schedule(5, timerA))
	require.Nil(t, timers.Schedule(3, timerB))
	require.Nil(t, timers.Schedule(3, timerC))
	require.Nil(t, timers.Schedule(7, timerD))
}

func TestTimerFiringOrder(t *testing.T) {
	timers := NewTimer("timers", newMemoryStore(t), nil)
	scheduleExample(t, timers)

	fired, err := timers.FireUpto(3)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 3, ID: timerB}, {Time: 3, ID: timerC}}, fired)
	size, _ := timers.Len()
	assert.Equal(t, 2, size)
	fired, err = timers.FireUpto(3)
	assert.Nil(t, err)
	assert.Empty(t, fired)

	fired, err = timers.FireUpto(math.MaxUint64)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 5, ID: timerA}, {Time: 7, ID: timerD}}, fired)
}

func TestTimerFiringOrderFromStore(t *testing.T) {
	s := newMemoryStore(t)
	timers := NewTimer("timers", s, nil)
	require.Nil(t, timers.Schedule(5, timerA))
	require.Nil(t, timers.Schedule(3, timerC))
	_, err := timers.Persist(1)
	require.Nil(t, err)

	restored := NewTimer("timers", s, nil)
	require.Nil(t, restored.Restore())
	require.Nil(t, restored.Schedule(3, timerB))
	require.Nil(t, restored.Schedule(7, timerD))

	fired, err := restored.FireUpto(3)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 3, ID: timerB}, {Time: 3, ID: timerC}}, fired)

	committed, err := restored.Committed(math.MaxUint64)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 3, ID: timerC}, {Time: 5, ID: timerA}}, committed)

	report, err := restored.Persist(2)
	assert.Nil(t, err)
	assert.Equal(t, 2, report.Deleted)
	committed, err = restored.Committed(math.MaxUint64)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 5, ID: timerA}, {Time: 7, ID: timerD}}, committed)
	size, _ := restored.Len()
	assert.Equal(t, 2, size)
}

func TestTimerCancelAndReschedule(t *testing.T) {
	s := newMemoryStore(t)
	timers := NewTimer("timers", s, nil)
	scheduleExample(t, timers)
	_, err := timers.Persist(1)
	require.Nil(t, err)

	cancelled, err := timers.Cancel(timerA)
	assert.Nil(t, err)
	assert.True(t, cancelled)
	cancelled, err = timers.Cancel(timerA)
	assert.Nil(t, err)
	assert.False(t, cancelled)

	require.Nil(t, timers.Schedule(9, timerB))
	fireTime, ok, err := timers.Lookup(timerB)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), fireTime)
	_, ok, _ = timers.Lookup(timerA)
	assert.False(t, ok)

	fired, err := timers.FireUpto(8)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 3, ID: timerC}, {Time: 7, ID: timerD}}, fired)

	_, err = timers.Persist(2)
	require.Nil(t, err)
	restored := NewTimer("timers", s, nil)
	require.Nil(t, restored.Restore())
	size, _ := restored.Len()
	assert.Equal(t, 1, size)
	fireTime, ok, err = restored.Lookup(timerB)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), fireTime)
	assert.Len(t, dump(t, s, "timers"), 3)
}

func TestTimerPersistIsMinimal(t *testing.T) {
	s := newMemoryStore(t)
	timers := NewTimer("timers", s, nil)
	require.Nil(t, timers.Schedule(5, timerA))
	report, err := timers.Persist(1)
	require.Nil(t, err)
	assert.Equal(t, 3, report.Written)

	fired, err := timers.FireUpto(5)
	require.Nil(t, err)
	require.Len(t, fired, 1)
	require.Nil(t, timers.Schedule(5, timerA))
	report, err = timers.Persist(2)
	assert.Nil(t, err)
	assert.True(t, report.Noop())
	assert.False(t, timers.IsDirty())

	require.Nil(t, timers.Schedule(6, timerA))
	report, err = timers.Persist(3)
	assert.Nil(t, err)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 1, report.Deleted)

	require.Nil(t, timers.Schedule(1, timerB))
	_, err = timers.Cancel(timerB)
	require.Nil(t, err)
	report, err = timers.Persist(4)
	assert.Nil(t, err)
	assert.True(t, report.Noop())
}

func TestTimerFailedPersistCanRefire(t *testing.T) {
	backing := newMemoryStore(t)
	mock := delegatingMock(t, backing)
	gomock.InOrder(
		mock.EXPECT().WriteBatch(gomock.Any()).DoAndReturn(backing.WriteBatch),
		mock.EXPECT().WriteBatch(gomock.Any()).Return(&store.Error{Op: "write batch", Err: assert.AnError}),
	)
	timers := NewTimer("timers", mock, nil)
	scheduleExample(t, timers)
	_, err := timers.Persist(1)
	require.Nil(t, err)

	fired, err := timers.FireUpto(3)
	require.Nil(t, err)
	assert.Len(t, fired, 2)
	_, err = timers.Persist(2)
	assert.NotNil(t, err)
	assert.True(t, timers.IsDirty())
	fired, err = timers.FireUpto(3)
	assert.Nil(t, err)
	assert.Empty(t, fired)

	restarted := NewTimer("timers", backing, nil)
	require.Nil(t, restarted.Restore())
	fired, err = restarted.FireUpto(3)
	assert.Nil(t, err)
	assert.Equal(t, []Timer{{Time: 3, ID: timerB}, {Time: 3, ID: timerC}}, fired)
}

func TestTimerQueue(t *testing.T) {
	queue := newTimerQueue()
	queue.PushTimer(Timer{Time: 5, ID: timerA})
	queue.PushTimer(Timer{Time: 3, ID: timerB})
	queue.PushTimer(Timer{Time: 3, ID: timerC})
	queue.PushTimer(Timer{Time: 7, ID: timerD})
	queue.PushTimer(Timer{Time: 4, ID: timerB})
	assert.Equal(t, 4, queue.Len())
	peek, ok := queue.PeekTimer()
	assert.True(t, ok)
	assert.Equal(t, Timer{Time: 3, ID: timerC}, peek)
	assert.Equal(t, []Timer{{3, timerC}, {4, timerB}, {5, timerA}, {7, timerD}}, queue.Timers())

	assert.True(t, queue.Remove(timerA))
	assert.False(t, queue.Remove(timerA))
	var popped []Timer
	for {
		timer, ok := queue.PopTimer()
		if !ok {
			break
		}
		popped = append(popped, timer)
	}
	assert.Equal(t, []Timer{{3, timerC}, {4, timerB}, {7, timerD}}, popped)
	_, ok = queue.Get(timerB)
	assert.False(t, ok)
}
