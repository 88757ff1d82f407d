package index

import (
	"encoding/binary"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"math"
	"sort"
)

var (
	timerMetaKey = []byte{metaTag}
	// presence marker stored under every timer by time key
	timerMarker = []byte{1}
)

func sortTimers(timers []Timer) {
	sort.Slice(timers, func(i, j int) bool {
		return timers[i].less(timers[j])
	})
}

func timerTimeKey(t Timer) []byte {
	key := uint64Key(timerTimeTag, t.Time)
	return binary.BigEndian.AppendUint64(key, t.ID)
}

func timerIDKey(id uint64) []byte {
	return uint64Key(timerIDTag, id)
}

func parseTimerTimeKey(key []byte) (Timer, error) {
	if len(key) != 17 || key[0] != timerTimeTag {
		return Timer{}, formatError("timer", errors.Errorf("malformed timer key %x", key))
	}
	return Timer{Time: binary.BigEndian.Uint64(key[1:9]), ID: binary.BigEndian.Uint64(key[9:])}, nil
}

// TimerIndex is a set of timers unique by id, fired in (time, id) order.
//
// Durable timers are kept twice in the store, by (time, id) for firing and
// by id for lookups. Firing scans the store in key order and merges the
// timers scheduled since the last persist, nothing is loaded eagerly.
// The store always holds the committed view, so the index behaves the same
// in both write modes.
type TimerIndex struct {
	base
	// pending holds timers scheduled since the last persist
	pending *timerQueue
	// removed holds durable timers fired or cancelled since the last persist
	removed map[uint64]uint64
	// durable caches the id lookups answered by the store
	durable map[uint64]slot[uint64]

	countLoaded bool
	stored      uint64

	firedCounter tally.Counter
}

func NewTimer(name string, s store.Store, options *Options) *TimerIndex {
	b := newBase(name, s, options)
	return &TimerIndex{
		base:         b,
		pending:      newTimerQueue(),
		removed:      map[uint64]uint64{},
		durable:      map[uint64]slot[uint64]{},
		firedCounter: b.scope.Counter("timer_fired"),
	}
}

// durableTime returns the fire time of a timer as the store knows it.
func (t *TimerIndex) durableTime(id uint64) (uint64, bool, error) {
	if s, ok := t.durable[id]; ok {
		t.cacheHit.Inc(1)
		return s.value, s.present, nil
	}
	data, ok, err := t.read(timerIDKey(id))
	if err != nil {
		return 0, false, err
	}
	s := slot[uint64]{}
	if ok {
		if len(data) != 8 {
			return 0, false, formatError("timer", errors.Errorf("malformed fire time of timer %d", id))
		}
		s = slot[uint64]{value: binary.BigEndian.Uint64(data), present: true}
	}
	t.durable[id] = s
	return s.value, s.present, nil
}

// live returns the durable fire time of id unless it was fired or cancelled.
func (t *TimerIndex) live(id uint64) (uint64, bool, error) {
	if _, ok := t.removed[id]; ok {
		return 0, false, nil
	}
	return t.durableTime(id)
}

// Schedule registers a timer, an already scheduled id is moved to the new time.
func (t *TimerIndex) Schedule(fireTime uint64, id uint64) error {
	if _, ok := t.pending.Get(id); ok {
		t.pending.PushTimer(Timer{Time: fireTime, ID: id})
		return nil
	}
	durableTime, ok, err := t.live(id)
	if err != nil {
		return err
	}
	if ok {
		t.removed[id] = durableTime
	}
	t.pending.PushTimer(Timer{Time: fireTime, ID: id})
	return nil
}

// Cancel removes the timer with id, it reports whether one was scheduled.
func (t *TimerIndex) Cancel(id uint64) (bool, error) {
	if t.pending.Remove(id) {
		return true, nil
	}
	durableTime, ok, err := t.live(id)
	if err != nil || !ok {
		return false, err
	}
	t.removed[id] = durableTime
	return true, nil
}

// Lookup returns the fire time of the timer with id.
func (t *TimerIndex) Lookup(id uint64) (uint64, bool, error) {
	if timer, ok := t.pending.Get(id); ok {
		return timer.Time, true, nil
	}
	return t.live(id)
}

// scan returns the durable timers with time <= threshold in firing order.
func (t *TimerIndex) scan(threshold uint64, skipRemoved bool) ([]Timer, error) {
	lo := []byte{timerTimeTag}
	hi := []byte{timerTimeTag + 1}
	if threshold < math.MaxUint64 {
		hi = uint64Key(timerTimeTag, threshold+1)
	}
	iter, err := t.store.Scan(t.name, lo, hi)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to scan timers of index %s", t.name)
	}
	defer iter.Release()
	var timers []Timer
	for iter.Next() {
		timer, err := parseTimerTimeKey(iter.Key())
		if err != nil {
			return nil, err
		}
		if skipRemoved {
			if _, ok := t.removed[timer.ID]; ok {
				continue
			}
		}
		timers = append(timers, timer)
	}
	if err = iter.Err(); err != nil {
		return nil, errors.WithMessagef(err, "failed to scan timers of index %s", t.name)
	}
	return timers, nil
}

// FireUpto removes and returns every timer with time <= threshold in
// ascending (time, id) order. A timer is never returned twice.
func (t *TimerIndex) FireUpto(threshold uint64) ([]Timer, error) {
	durable, err := t.scan(threshold, true)
	if err != nil {
		return nil, err
	}
	fired := make([]Timer, 0, len(durable))
	i := 0
	for {
		next, ok := t.pending.PeekTimer()
		pendingDue := ok && next.Time <= threshold
		if i < len(durable) && (!pendingDue || durable[i].less(next)) {
			t.removed[durable[i].ID] = durable[i].Time
			fired = append(fired, durable[i])
			i++
			continue
		}
		if !pendingDue {
			break
		}
		t.pending.PopTimer()
		fired = append(fired, next)
	}
	if len(fired) > 0 {
		t.firedCounter.Inc(int64(len(fired)))
	}
	return fired, nil
}

// Committed lists the durable timers with time <= threshold as of the last
// persist without firing them.
func (t *TimerIndex) Committed(threshold uint64) ([]Timer, error) {
	return t.scan(threshold, false)
}

func (t *TimerIndex) ensureCount() error {
	if t.countLoaded {
		return nil
	}
	data, ok, err := t.read(timerMetaKey)
	if err != nil {
		return err
	}
	t.stored = 0
	if ok {
		count, n := binary.Uvarint(data)
		if n <= 0 {
			return formatError("timer meta", errors.New("malformed timer count"))
		}
		t.stored = count
	}
	t.countLoaded = true
	return nil
}

// Len is the number of scheduled timers.
func (t *TimerIndex) Len() (int, error) {
	if err := t.ensureCount(); err != nil {
		return 0, err
	}
	return int(t.stored) - len(t.removed) + t.pending.Len(), nil
}

func (t *TimerIndex) IsDirty() bool {
	return len(t.removed) > 0 || t.pending.Len() > 0
}

// Stage emits the minimal puts and deletes: a timer removed and scheduled
// again at the same time produces nothing, one moved to another time only
// rewrites its keys.
func (t *TimerIndex) Stage(batch *store.Batch, epoch uint64) (Report, error) {
	staged := store.NewBatch()
	if !t.IsDirty() {
		return newReport(t.name, epoch, staged), nil
	}
	if err := t.ensureCount(); err != nil {
		return Report{}, err
	}
	removedIDs := maps.Keys(t.removed)
	slices.Sort(removedIDs)
	for _, id := range removedIDs {
		oldTime := t.removed[id]
		if timer, ok := t.pending.Get(id); ok {
			if timer.Time != oldTime {
				staged.Delete(t.name, timerTimeKey(Timer{Time: oldTime, ID: id}))
			}
			continue
		}
		staged.Delete(t.name, timerTimeKey(Timer{Time: oldTime, ID: id}))
		staged.Delete(t.name, timerIDKey(id))
	}
	for _, timer := range t.pending.Timers() {
		if oldTime, ok := t.removed[timer.ID]; ok && oldTime == timer.Time {
			continue
		}
		staged.Put(t.name, timerTimeKey(timer), timerMarker)
		staged.Put(t.name, timerIDKey(timer.ID), binary.BigEndian.AppendUint64(nil, timer.Time))
	}
	if count, _ := t.Len(); uint64(count) != t.stored {
		staged.Put(t.name, timerMetaKey, binary.AppendUvarint(nil, uint64(count)))
	}
	batch.Append(staged)
	return newReport(t.name, epoch, staged), nil
}

func (t *TimerIndex) Commit() {
	if !t.IsDirty() {
		return
	}
	if count, err := t.Len(); err == nil {
		t.stored = uint64(count)
	}
	for id := range t.removed {
		t.durable[id] = slot[uint64]{}
	}
	for _, timer := range t.pending.items {
		t.durable[timer.ID] = slot[uint64]{value: timer.Time, present: true}
	}
	t.removed = map[uint64]uint64{}
	t.pending.Reset()
}

func (t *TimerIndex) Persist(epoch uint64) (Report, error) {
	return persist(&t.base, t, epoch)
}

func (t *TimerIndex) Restore() error {
	t.pending.Reset()
	t.removed = map[uint64]uint64{}
	t.durable = map[uint64]slot[uint64]{}
	t.countLoaded = false
	return t.ensureCount()
}
